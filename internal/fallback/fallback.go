// Package fallback maps a (diet, goal) pair to a single plan without a model.
package fallback

import "nutrition-planner/internal/catalog"

// DefaultPlanID is served when no rule matches.
const DefaultPlanID = 0

// Source tells which branch of the decision table produced a plan.
type Source string

const (
	SourceRule    Source = "rules"
	SourceDefault Source = "default"
)

type pair struct {
	diet string
	goal string
}

var rules = map[pair]int{
	{"vegetarian", "weight-loss"}:     0,
	{"vegetarian", "muscle-gain"}:     17,
	{"vegetarian", "maintenance"}:     18,
	{"vegetarian", "endurance"}:       18,
	{"vegetarian", "heart-health"}:    0,
	{"vegan", "weight-loss"}:          3,
	{"vegan", "muscle-gain"}:          4,
	{"vegan", "maintenance"}:          3,
	{"vegan", "endurance"}:            4,
	{"vegan", "heart-health"}:         3,
	{"high-protein", "weight-loss"}:   19,
	{"high-protein", "muscle-gain"}:   1,
	{"high-protein", "maintenance"}:   2,
	{"high-protein", "endurance"}:     1,
	{"high-protein", "heart-health"}:  19,
	{"low-carb", "weight-loss"}:       9,
	{"low-carb", "muscle-gain"}:       10,
	{"low-carb", "maintenance"}:       10,
	{"low-carb", "endurance"}:         10,
	{"low-carb", "heart-health"}:      9,
	{"keto", "weight-loss"}:           5,
	{"keto", "muscle-gain"}:           6,
	{"keto", "maintenance"}:           6,
	{"keto", "endurance"}:             6,
	{"keto", "heart-health"}:          5,
	{"paleo", "weight-loss"}:          8,
	{"paleo", "muscle-gain"}:          7,
	{"paleo", "maintenance"}:          8,
	{"paleo", "endurance"}:            7,
	{"paleo", "heart-health"}:         8,
	{"mediterranean", "weight-loss"}:  11,
	{"mediterranean", "muscle-gain"}:  12,
	{"mediterranean", "maintenance"}:  12,
	{"mediterranean", "endurance"}:    12,
	{"mediterranean", "heart-health"}: 11,
	{"gluten-free", "weight-loss"}:    15,
	{"gluten-free", "muscle-gain"}:    15,
	{"gluten-free", "maintenance"}:    15,
	{"gluten-free", "endurance"}:      15,
	{"gluten-free", "heart-health"}:   15,
	{"pescatarian", "weight-loss"}:    13,
	{"pescatarian", "muscle-gain"}:    14,
	{"pescatarian", "maintenance"}:    13,
	{"pescatarian", "endurance"}:      14,
	{"pescatarian", "heart-health"}:   13,
	{"balanced", "weight-loss"}:       2,
	{"balanced", "muscle-gain"}:       1,
	{"balanced", "maintenance"}:       2,
	{"balanced", "endurance"}:         16,
	{"balanced", "heart-health"}:      11,
}

// Table resolves plans against a catalog.
type Table struct {
	catalog *catalog.Catalog
}

// New creates a Table backed by c.
func New(c *catalog.Catalog) *Table {
	return &Table{catalog: c}
}

// Plan returns exactly one plan for any input. Inputs that match no rule,
// or whose rule points outside the catalog, resolve to DefaultPlanID.
func (t *Table) Plan(diet, goal string) (catalog.PlanRecord, Source) {
	key := pair{catalog.Normalize(diet), catalog.Normalize(goal)}
	if id, ok := rules[key]; ok {
		if p, err := t.catalog.Lookup(id); err == nil {
			return p, SourceRule
		}
	}
	return t.defaultPlan(), SourceDefault
}

func (t *Table) defaultPlan() catalog.PlanRecord {
	if p, err := t.catalog.Lookup(DefaultPlanID); err == nil {
		return p
	}
	// A catalog without plan 0 still has a lowest ID.
	p, _ := t.catalog.Lookup(t.catalog.IDs()[0])
	return p
}

// Default returns the hardcoded default plan.
func (t *Table) Default() catalog.PlanRecord {
	return t.defaultPlan()
}
