// Package classifier implements a random-forest classifier over one-hot
// feature vectors and ranks plan identifiers by predicted probability.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrModelUnavailable is returned when no trained forest is loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrPredictionFailed is returned when an input does not fit the loaded forest.
	ErrPredictionFailed = errors.New("prediction failed")
)

// Params are the forest hyperparameters.
type Params struct {
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	// MaxFeatures is the number of features tried per split; 0 means sqrt(dim).
	MaxFeatures int
	Seed        int64
}

// DefaultParams returns the hyperparameters used for production training.
func DefaultParams() Params {
	return Params{
		Trees:          100,
		MaxDepth:       12,
		MinSamplesLeaf: 1,
		Seed:           42,
	}
}

// Forest is a fitted random forest. Classes holds the plan ID for each
// position of a leaf distribution.
type Forest struct {
	Classes []int
	Dim     int
	Trees   []Tree
}

// Prediction is a ranked plan identifier with its probability.
type Prediction struct {
	PlanID     int
	Confidence float64
}

// Fit trains a forest on x (one row per sample) against labels y. Each tree
// is grown on a bootstrap sample with its own seed, so the result does not
// depend on scheduling.
func Fit(ctx context.Context, x [][]float64, y []int, p Params) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("cannot fit on an empty dataset")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and labels (%d) differ", len(x), len(y))
	}
	dim := len(x[0])
	if dim == 0 {
		return nil, errors.New("feature vectors are empty")
	}
	for i, row := range x {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d has dimension %d, expected %d", i, len(row), dim)
		}
	}
	if p.Trees < 1 {
		return nil, errors.New("forest needs at least one tree")
	}
	if p.MaxDepth < 1 {
		p.MaxDepth = 1
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures < 1 {
		p.MaxFeatures = int(math.Max(1, math.Round(math.Sqrt(float64(dim)))))
	}

	classes, classIdx := indexClasses(y)
	labels := make([]int, len(y))
	for i, v := range y {
		labels[i] = classIdx[v]
	}

	f := &Forest{Classes: classes, Dim: dim, Trees: make([]Tree, p.Trees)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < p.Trees; t++ {
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(p.Seed + int64(t)))
			b := &treeBuilder{
				x:           x,
				y:           labels,
				numClasses:  len(classes),
				maxDepth:    p.MaxDepth,
				minLeaf:     p.MinSamplesLeaf,
				maxFeatures: p.MaxFeatures,
				rng:         rng,
			}
			b.build(bootstrap(rng, len(x)), 0)
			f.Trees[t] = Tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fit forest: %w", err)
	}
	return f, nil
}

func indexClasses(y []int) ([]int, map[int]int) {
	seen := make(map[int]bool)
	var classes []int
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Ints(classes)
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return classes, idx
}

func bootstrap(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

// Probabilities returns the averaged class distribution for x, aligned with
// f.Classes. The values sum to 1.
func (f *Forest) Probabilities(ctx context.Context, x []float64) ([]float64, error) {
	if f == nil || len(f.Trees) == 0 {
		return nil, ErrModelUnavailable
	}
	if len(x) != f.Dim {
		return nil, fmt.Errorf("%w: input has dimension %d, model expects %d", ErrPredictionFailed, len(x), f.Dim)
	}

	probs := make([]float64, len(f.Classes))
	for i := range f.Trees {
		if i%16 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		dist := f.Trees[i].predict(x)
		if len(dist) != len(probs) {
			return nil, fmt.Errorf("%w: tree %d is inconsistent with the class set", ErrPredictionFailed, i)
		}
		for c, v := range dist {
			probs[c] += v
		}
	}
	n := float64(len(f.Trees))
	for c := range probs {
		probs[c] /= n
	}
	return probs, nil
}

// Classify returns the k most probable plan IDs, highest confidence first.
// Equal confidences are ordered by plan ID ascending.
func (f *Forest) Classify(ctx context.Context, x []float64, k int) ([]Prediction, error) {
	probs, err := f.Probabilities(ctx, x)
	if err != nil {
		return nil, err
	}
	return Rank(f.Classes, probs, k), nil
}

// Rank pairs classes with probabilities, sorts them and keeps the first k.
func Rank(classes []int, probs []float64, k int) []Prediction {
	preds := make([]Prediction, len(classes))
	for i, c := range classes {
		preds[i] = Prediction{PlanID: c, Confidence: probs[i]}
	}
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Confidence != preds[j].Confidence {
			return preds[i].Confidence > preds[j].Confidence
		}
		return preds[i].PlanID < preds[j].PlanID
	})
	if k > 0 && len(preds) > k {
		preds = preds[:k]
	}
	return preds
}

// Predict returns the single most probable plan ID.
func (f *Forest) Predict(ctx context.Context, x []float64) (int, error) {
	top, err := f.Classify(ctx, x, 1)
	if err != nil {
		return 0, err
	}
	return top[0].PlanID, nil
}
