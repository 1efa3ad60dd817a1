// Package training assembles the dataset and fits the encoder and forest.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nutrition-planner/internal/catalog"
	"nutrition-planner/internal/classifier"
	"nutrition-planner/internal/features"
	"nutrition-planner/internal/submission"
)

// Config controls one training run.
type Config struct {
	SyntheticRows      int
	Seed               int64
	ValidationFraction float64
	IncludeSubmissions bool
	Encoder            features.Options
	Forest             classifier.Params
}

// DefaultConfig returns the production training settings.
func DefaultConfig() Config {
	return Config{
		SyntheticRows:      1000,
		Seed:               42,
		ValidationFraction: 0.2,
		IncludeSubmissions: true,
		Encoder:            features.Options{MinFrequency: 1, Policy: features.PolicyOther},
		Forest:             classifier.DefaultParams(),
	}
}

// SubmissionSource supplies logged selections for training.
type SubmissionSource interface {
	ReadAll(ctx context.Context) ([]submission.Submission, int, error)
}

// Report summarizes a finished run.
type Report struct {
	RunID              string
	SyntheticRows      int
	SubmissionRows     int
	SubmissionsSkipped int
	TrainRows          int
	ValidationRows     int
	// Features labels each encoded vector position.
	Features           []string
	Accuracy           float64
	Duration           time.Duration
}

// Result is the output of a successful run. Encoder and Forest come from the
// same run and must be published together.
type Result struct {
	Encoder *features.Encoder
	Forest  *classifier.Forest
	Report  Report
}

// Job runs the training pipeline.
type Job struct {
	catalog *catalog.Catalog
	source  SubmissionSource
	cfg     Config
	logger  zerolog.Logger
}

// NewJob creates a Job. source may be nil when submissions are not used.
func NewJob(c *catalog.Catalog, source SubmissionSource, cfg Config, logger zerolog.Logger) *Job {
	return &Job{catalog: c, source: source, cfg: cfg, logger: logger}
}

// Run builds the dataset, fits the encoder on all of it, then fits the forest
// on the training split and scores it on the held-out split.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	report := Report{RunID: uuid.NewString()}

	if j.cfg.SyntheticRows < 1 {
		return nil, errors.New("synthetic dataset size must be positive")
	}
	rows := Synthesize(j.catalog, j.cfg.SyntheticRows, j.cfg.Seed)
	report.SyntheticRows = len(rows)

	if j.cfg.IncludeSubmissions && j.source != nil {
		subs, malformed, err := j.source.ReadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read submissions: %w", err)
		}
		extra, invalid := FromSubmissions(j.catalog, subs)
		rows = append(rows, extra...)
		report.SubmissionRows = len(extra)
		report.SubmissionsSkipped = malformed + invalid
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples := make([]features.Sample, len(rows))
	for i, r := range rows {
		samples[i] = features.Sample{Diet: r.Diet, Goal: r.Goal}
	}
	enc, err := features.Fit(samples, j.cfg.Encoder)
	if err != nil {
		return nil, fmt.Errorf("failed to fit encoder: %w", err)
	}

	report.Features = enc.FeatureNames()

	train, validation := StratifiedSplit(rows, j.cfg.ValidationFraction, j.cfg.Seed)
	report.TrainRows = len(train)
	report.ValidationRows = len(validation)

	x, y, err := encodeRows(enc, train)
	if err != nil {
		return nil, err
	}
	forest, err := classifier.Fit(ctx, x, y, j.cfg.Forest)
	if err != nil {
		return nil, err
	}

	report.Accuracy, err = accuracy(ctx, enc, forest, validation)
	if err != nil {
		return nil, fmt.Errorf("failed to score validation split: %w", err)
	}
	report.Duration = time.Since(start)

	j.logger.Info().
		Str("run_id", report.RunID).
		Int("synthetic_rows", report.SyntheticRows).
		Int("submission_rows", report.SubmissionRows).
		Int("submissions_skipped", report.SubmissionsSkipped).
		Int("validation_rows", report.ValidationRows).
		Int("features", len(report.Features)).
		Float64("accuracy", report.Accuracy).
		Dur("duration", report.Duration).
		Msg("training run finished")

	return &Result{Encoder: enc, Forest: forest, Report: report}, nil
}

func encodeRows(enc *features.Encoder, rows []Row) ([][]float64, []int, error) {
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, r := range rows {
		v, err := enc.Encode(r.Diet, r.Goal)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		x[i] = v
		y[i] = r.PlanID
	}
	return x, y, nil
}

func accuracy(ctx context.Context, enc *features.Encoder, f *classifier.Forest, rows []Row) (float64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	correct := 0
	for _, r := range rows {
		v, err := enc.Encode(r.Diet, r.Goal)
		if err != nil {
			return 0, err
		}
		got, err := f.Predict(ctx, v)
		if err != nil {
			return 0, err
		}
		if got == r.PlanID {
			correct++
		}
	}
	return float64(correct) / float64(len(rows)), nil
}
