// Package features turns categorical user inputs into one-hot vectors.
package features

import (
	"errors"
	"fmt"
	"sort"

	"nutrition-planner/internal/catalog"
)

var (
	// ErrUnknownCategory is returned under PolicyReject for unseen values.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrEmptyInput is returned when diet or goal is blank.
	ErrEmptyInput = errors.New("diet and goal must be non-empty")
	// ErrNotFitted is returned when the encoder has no vocabulary.
	ErrNotFitted = errors.New("encoder is not fitted")
)

// UnknownPolicy decides what happens to values not seen during fitting.
type UnknownPolicy string

const (
	// PolicyOther maps unseen values to a per-column "other" slot.
	PolicyOther UnknownPolicy = "other"
	// PolicyReject fails encoding with ErrUnknownCategory.
	PolicyReject UnknownPolicy = "reject"
)

// Column names, in vector order.
const (
	ColumnDiet     = "diet"
	ColumnGoal     = "goal"
	ColumnDietGoal = "diet_goal"
)

// Sample is one categorical input row.
type Sample struct {
	Diet string
	Goal string
}

// Options control fitting.
type Options struct {
	// Categories seen fewer times than MinFrequency are folded into "other".
	MinFrequency int
	Policy       UnknownPolicy
}

// Column is the fitted vocabulary of one categorical column. The slot at
// Offset+len(Categories) is the "other" bucket.
type Column struct {
	Name       string
	Categories []string
	Index      map[string]int
	Offset     int
}

// Encoder is the fitted state. It is serialized as-is into the model artifact.
type Encoder struct {
	Columns []Column
	Policy  UnknownPolicy
	Dim     int
}

// Fit learns the vocabulary of each column from samples.
func Fit(samples []Sample, opts Options) (*Encoder, error) {
	if len(samples) == 0 {
		return nil, errors.New("cannot fit encoder on an empty dataset")
	}
	if opts.Policy == "" {
		opts.Policy = PolicyOther
	}
	if opts.Policy != PolicyOther && opts.Policy != PolicyReject {
		return nil, fmt.Errorf("unsupported unknown-category policy %q", opts.Policy)
	}
	if opts.MinFrequency < 1 {
		opts.MinFrequency = 1
	}

	counts := map[string]map[string]int{
		ColumnDiet:     {},
		ColumnGoal:     {},
		ColumnDietGoal: {},
	}
	for i, s := range samples {
		values, err := columnValues(s)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		for name, v := range values {
			counts[name][v]++
		}
	}

	enc := &Encoder{Policy: opts.Policy}
	offset := 0
	for _, name := range []string{ColumnDiet, ColumnGoal, ColumnDietGoal} {
		var cats []string
		for v, n := range counts[name] {
			if n >= opts.MinFrequency {
				cats = append(cats, v)
			}
		}
		sort.Strings(cats)

		col := Column{Name: name, Categories: cats, Index: make(map[string]int, len(cats)), Offset: offset}
		for i, v := range cats {
			col.Index[v] = i
		}
		enc.Columns = append(enc.Columns, col)
		offset += len(cats) + 1
	}
	enc.Dim = offset
	return enc, nil
}

func columnValues(s Sample) (map[string]string, error) {
	diet := catalog.Normalize(s.Diet)
	goal := catalog.Normalize(s.Goal)
	if diet == "" || goal == "" {
		return nil, ErrEmptyInput
	}
	return map[string]string{
		ColumnDiet:     diet,
		ColumnGoal:     goal,
		ColumnDietGoal: diet + "_" + goal,
	}, nil
}

// Encode returns the one-hot vector for the given diet and goal.
func (e *Encoder) Encode(diet, goal string) ([]float64, error) {
	if e == nil || len(e.Columns) == 0 {
		return nil, ErrNotFitted
	}
	values, err := columnValues(Sample{Diet: diet, Goal: goal})
	if err != nil {
		return nil, err
	}

	vec := make([]float64, e.Dim)
	for _, col := range e.Columns {
		v := values[col.Name]
		i, ok := col.Index[v]
		if !ok {
			if e.Policy == PolicyReject {
				return nil, fmt.Errorf("%w: %s=%q", ErrUnknownCategory, col.Name, v)
			}
			i = len(col.Categories)
		}
		vec[col.Offset+i] = 1
	}
	return vec, nil
}

// EncodeAll encodes every sample, failing on the first error.
func (e *Encoder) EncodeAll(samples []Sample) ([][]float64, error) {
	out := make([][]float64, len(samples))
	for i, s := range samples {
		v, err := e.Encode(s.Diet, s.Goal)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// FeatureNames lists a label per vector position, e.g. "diet=vegan" or "goal=other".
func (e *Encoder) FeatureNames() []string {
	names := make([]string, 0, e.Dim)
	for _, col := range e.Columns {
		for _, c := range col.Categories {
			names = append(names, col.Name+"="+c)
		}
		names = append(names, col.Name+"=other")
	}
	return names
}
