package training

import (
	"math/rand"
	"sort"

	"nutrition-planner/internal/catalog"
	"nutrition-planner/internal/submission"
)

// FromSubmissions converts logged selections into training rows. Records with
// a plan outside the catalog or a diet or goal outside the known vocabularies
// are skipped and counted.
func FromSubmissions(c *catalog.Catalog, subs []submission.Submission) ([]Row, int) {
	rows := make([]Row, 0, len(subs))
	skipped := 0
	for _, s := range subs {
		diet := catalog.Normalize(s.Diet)
		goal := catalog.Normalize(s.Goal)
		if !c.Has(s.SelectedPlanID) || !catalog.KnownDiet(diet) || !catalog.KnownGoal(goal) {
			skipped++
			continue
		}
		rows = append(rows, Row{Diet: diet, Goal: goal, PlanID: s.SelectedPlanID})
	}
	return rows, skipped
}

// StratifiedSplit holds out about fraction of each label's rows for
// validation. Labels with a single row stay entirely in the training set.
func StratifiedSplit(rows []Row, fraction float64, seed int64) (train, validation []Row) {
	if fraction <= 0 {
		return rows, nil
	}

	byLabel := make(map[int][]int)
	for i, r := range rows {
		byLabel[r.PlanID] = append(byLabel[r.PlanID], i)
	}
	labels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	rng := rand.New(rand.NewSource(seed))
	for _, l := range labels {
		idx := byLabel[l]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		hold := int(float64(len(idx)) * fraction)
		if hold >= len(idx) {
			hold = len(idx) - 1
		}
		for k, i := range idx {
			if k < hold {
				validation = append(validation, rows[i])
			} else {
				train = append(train, rows[i])
			}
		}
	}
	return train, validation
}
