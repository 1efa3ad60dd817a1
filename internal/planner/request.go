package planner

import (
	"strings"

	"nutrition-planner/internal/catalog"
	"nutrition-planner/internal/validation"
)

// maxNameRunes bounds the name kept in the submission log.
const maxNameRunes = 200

// Request asks for plan recommendations. Only the first diet is consulted.
type Request struct {
	Name string   `json:"name"`
	Diet []string `json:"diet" validate:"required,min=1"`
	Goal string   `json:"goal" validate:"required,notblank"`
}

// Validate checks the request shape. Entries after the first diet are ignored.
func (r Request) Validate() error {
	if err := validation.ValidateStruct(r); err != nil {
		return err
	}
	return checkPrimaryDiet(r.Diet)
}

func checkPrimaryDiet(diet []string) error {
	if strings.TrimSpace(diet[0]) == "" {
		return validation.New("diet", "diet[0] must not be blank")
	}
	return nil
}

// truncateName shortens name to maxNameRunes runes.
func truncateName(name string) string {
	r := []rune(name)
	if len(r) <= maxNameRunes {
		return name
	}
	return string(r[:maxNameRunes])
}

// PrimaryDiet returns the diet used for prediction.
func (r Request) PrimaryDiet() string {
	if len(r.Diet) == 0 {
		return ""
	}
	return r.Diet[0]
}

// Selection records the plan a user picked.
type Selection struct {
	Name           string   `json:"name"`
	Diet           []string `json:"diet" validate:"required,min=1"`
	Goal           string   `json:"goal" validate:"required,notblank"`
	SelectedPlanID *int     `json:"selected_plan_id" validate:"required"`
}

// Validate checks the selection shape. Catalog membership is checked separately.
func (s Selection) Validate() error {
	if err := validation.ValidateStruct(s); err != nil {
		return err
	}
	return checkPrimaryDiet(s.Diet)
}

// Source names the branch of the fallback chain that answered a request.
type Source string

const (
	SourceModel   Source = "model"
	SourceRules   Source = "rules"
	SourceDefault Source = "default"
)

// RankedPlan is a catalog plan with the confidence it was recommended with.
type RankedPlan struct {
	catalog.PlanRecord
	Confidence float64 `json:"confidence"`
}

// Recommendation is the answer to a Request.
type Recommendation struct {
	Plans        []RankedPlan `json:"plans"`
	Source       Source       `json:"source"`
	ModelVersion int          `json:"model_version,omitempty"`
}

// SelectionResult reports how far a selection got.
type SelectionResult struct {
	Saved        bool `json:"saved"`
	Retrained    bool `json:"retrained"`
	ModelVersion int  `json:"model_version,omitempty"`
}
