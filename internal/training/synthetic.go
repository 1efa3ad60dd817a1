package training

import (
	"math/rand"

	"nutrition-planner/internal/catalog"
)

// Row is one labeled training example.
type Row struct {
	Diet   string
	Goal   string
	PlanID int
}

type pairKey struct {
	diet string
	goal string
}

// candidatePlans maps a (diet, goal) pair to the plans that suit it. Pairs
// missing here are labeled uniformly over the whole catalog.
var candidatePlans = map[pairKey][]int{
	{"vegetarian", "weight-loss"}:     {0},
	{"vegetarian", "muscle-gain"}:     {17},
	{"vegetarian", "maintenance"}:     {18, 2},
	{"vegetarian", "heart-health"}:    {0, 11},
	{"vegan", "weight-loss"}:          {3},
	{"vegan", "muscle-gain"}:          {4},
	{"vegan", "maintenance"}:          {3, 4},
	{"vegan", "heart-health"}:         {3, 11},
	{"high-protein", "weight-loss"}:   {19, 9},
	{"high-protein", "muscle-gain"}:   {1},
	{"high-protein", "maintenance"}:   {2, 1},
	{"high-protein", "endurance"}:     {1, 16},
	{"low-carb", "weight-loss"}:       {9, 5},
	{"low-carb", "maintenance"}:       {10},
	{"keto", "weight-loss"}:           {5},
	{"keto", "muscle-gain"}:           {6},
	{"keto", "maintenance"}:           {6, 10},
	{"paleo", "weight-loss"}:          {8},
	{"paleo", "muscle-gain"}:          {7},
	{"paleo", "maintenance"}:          {8},
	{"mediterranean", "weight-loss"}:  {11},
	{"mediterranean", "maintenance"}:  {12},
	{"mediterranean", "heart-health"}: {11},
	{"gluten-free", "maintenance"}:    {15},
	{"gluten-free", "weight-loss"}:    {15, 9},
	{"pescatarian", "weight-loss"}:    {13},
	{"pescatarian", "muscle-gain"}:    {14},
	{"pescatarian", "endurance"}:      {14, 16},
	{"pescatarian", "heart-health"}:   {13, 11},
	{"balanced", "maintenance"}:       {2},
	{"balanced", "endurance"}:         {16},
	{"balanced", "weight-loss"}:       {2, 0},
}

// dietBias weights diet sampling per goal. Diets not listed weigh 1.
var dietBias = map[string]map[string]int{
	"weight-loss":  {"vegetarian": 3, "vegan": 2, "low-carb": 3, "keto": 2},
	"muscle-gain":  {"high-protein": 4, "paleo": 3, "keto": 2},
	"maintenance":  {"balanced": 3, "mediterranean": 2},
	"endurance":    {"balanced": 2, "pescatarian": 2, "high-protein": 2},
	"heart-health": {"mediterranean": 4, "pescatarian": 2, "vegan": 2},
}

// Synthesize generates n labeled rows from a fixed seed. Goals are drawn
// uniformly, diets with goal-conditioned weights, and labels from the
// candidate table.
func Synthesize(c *catalog.Catalog, n int, seed int64) []Row {
	rng := rand.New(rand.NewSource(seed))
	ids := c.IDs()

	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		goal := catalog.Goals[rng.Intn(len(catalog.Goals))]
		diet := sampleDiet(rng, goal)
		rows = append(rows, Row{Diet: diet, Goal: goal, PlanID: pickPlan(rng, c, ids, diet, goal)})
	}
	return rows
}

func sampleDiet(rng *rand.Rand, goal string) string {
	weights := make([]int, len(catalog.Diets))
	total := 0
	for i, d := range catalog.Diets {
		w := 1
		if bias, ok := dietBias[goal][d]; ok {
			w = bias
		}
		weights[i] = w
		total += w
	}
	r := rng.Intn(total)
	for i, w := range weights {
		if r < w {
			return catalog.Diets[i]
		}
		r -= w
	}
	return catalog.Diets[len(catalog.Diets)-1]
}

func pickPlan(rng *rand.Rand, c *catalog.Catalog, ids []int, diet, goal string) int {
	var valid []int
	for _, id := range candidatePlans[pairKey{diet, goal}] {
		if c.Has(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return ids[rng.Intn(len(ids))]
	}
	return valid[rng.Intn(len(valid))]
}

// candidates returns the rule-table plans for a pair, or nil when the pair
// is labeled uniformly.
func candidates(diet, goal string) []int {
	return candidatePlans[pairKey{catalog.Normalize(diet), catalog.Normalize(goal)}]
}
