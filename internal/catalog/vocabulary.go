package catalog

import "strings"

// Diets are the diet preferences the system knows about.
var Diets = []string{
	"vegetarian",
	"vegan",
	"high-protein",
	"low-carb",
	"keto",
	"paleo",
	"mediterranean",
	"gluten-free",
	"pescatarian",
	"balanced",
}

// Goals are the health goals the system knows about.
var Goals = []string{
	"weight-loss",
	"muscle-gain",
	"maintenance",
	"endurance",
	"heart-health",
}

// Normalize canonicalizes a user-supplied diet or goal label.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", "-")
}

// KnownDiet reports whether d is in Diets after normalization.
func KnownDiet(d string) bool {
	return contains(Diets, Normalize(d))
}

// KnownGoal reports whether g is in Goals after normalization.
func KnownGoal(g string) bool {
	return contains(Goals, Normalize(g))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
