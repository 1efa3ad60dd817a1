// Package catalog holds the fixed set of recommendable meal plans.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownPlanID is returned when a plan identifier is not part of the catalog.
var ErrUnknownPlanID = errors.New("unknown plan id")

// Meal slots, in serving order.
const (
	Breakfast = "breakfast"
	Lunch     = "lunch"
	Dinner    = "dinner"
)

// Slots lists the meal slots every plan must describe.
var Slots = []string{Breakfast, Lunch, Dinner}

// slotShare is the fraction of the daily calories and protein served per slot.
var slotShare = map[string]float64{
	Breakfast: 0.25,
	Lunch:     0.35,
	Dinner:    0.40,
}

// Meals describes what is served at each slot.
type Meals struct {
	Breakfast string `json:"breakfast"`
	Lunch     string `json:"lunch"`
	Dinner    string `json:"dinner"`
}

// Macros is the daily macro target in grams.
type Macros struct {
	Protein int `json:"protein"`
	Carbs   int `json:"carbs"`
	Fats    int `json:"fats"`
}

// MealMacros is the share of calories and protein served at one slot.
type MealMacros struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
}

// PlanRecord is one recommendable meal plan.
type PlanRecord struct {
	ID         int                   `json:"id"`
	Name       string                `json:"name"`
	Meals      Meals                 `json:"meals"`
	Calories   int                   `json:"calories"`
	Macros     Macros                `json:"macros"`
	MealMacros map[string]MealMacros `json:"meal_macros"`
}

// Meal returns the description served at the given slot.
func (p PlanRecord) Meal(slot string) string {
	switch slot {
	case Breakfast:
		return p.Meals.Breakfast
	case Lunch:
		return p.Meals.Lunch
	case Dinner:
		return p.Meals.Dinner
	}
	return ""
}

// Catalog is an immutable, validated set of plans keyed by ID.
type Catalog struct {
	plans map[int]PlanRecord
	ids   []int
}

// New validates the given plans and builds a Catalog from them.
// Per-meal macros are derived here so every record leaves with the same shape.
func New(plans []PlanRecord) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.New("catalog must contain at least one plan")
	}

	c := &Catalog{plans: make(map[int]PlanRecord, len(plans))}
	for _, p := range plans {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("invalid plan %d: %w", p.ID, err)
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %d", p.ID)
		}
		p.MealMacros = splitMacros(p)
		c.plans[p.ID] = p
		c.ids = append(c.ids, p.ID)
	}
	sort.Ints(c.ids)
	return c, nil
}

// Default returns the catalog built from the bundled plan table.
func Default() *Catalog {
	c, err := New(defaultPlans)
	if err != nil {
		panic(fmt.Sprintf("bundled plan table is invalid: %v", err))
	}
	return c
}

func validate(p PlanRecord) error {
	if p.ID < 0 {
		return errors.New("id must be non-negative")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	for _, slot := range Slots {
		if strings.TrimSpace(p.Meal(slot)) == "" {
			return fmt.Errorf("meal %q is required", slot)
		}
	}
	if p.Calories <= 0 {
		return errors.New("calories must be positive")
	}
	if p.Macros.Protein < 0 || p.Macros.Carbs < 0 || p.Macros.Fats < 0 {
		return errors.New("macros must not be negative")
	}
	return nil
}

func splitMacros(p PlanRecord) map[string]MealMacros {
	out := make(map[string]MealMacros, len(Slots))
	for _, slot := range Slots {
		share := slotShare[slot]
		out[slot] = MealMacros{
			Calories: int(float64(p.Calories)*share + 0.5),
			Protein:  int(float64(p.Macros.Protein)*share + 0.5),
		}
	}
	return out
}

// Lookup returns the plan with the given ID.
func (c *Catalog) Lookup(id int) (PlanRecord, error) {
	p, ok := c.plans[id]
	if !ok {
		return PlanRecord{}, fmt.Errorf("%w: %d", ErrUnknownPlanID, id)
	}
	return p, nil
}

// Has reports whether id is a catalog key.
func (c *Catalog) Has(id int) bool {
	_, ok := c.plans[id]
	return ok
}

// IDs returns the plan identifiers in ascending order.
func (c *Catalog) IDs() []int {
	out := make([]int, len(c.ids))
	copy(out, c.ids)
	return out
}

// Len returns the number of plans.
func (c *Catalog) Len() int {
	return len(c.ids)
}
