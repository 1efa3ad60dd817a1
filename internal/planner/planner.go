// Package planner serves meal-plan recommendations and folds user selections
// back into the model.
//
// Recommendations degrade from ranked model output, to the single rule-based
// plan, to the hardcoded default plan. A well-formed request never fails.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"nutrition-planner/internal/catalog"
	"nutrition-planner/internal/classifier"
	"nutrition-planner/internal/fallback"
	"nutrition-planner/internal/features"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/storage"
	"nutrition-planner/internal/submission"
	"nutrition-planner/internal/training"
)

// ArtifactStore publishes and loads encoder/classifier pairs.
type ArtifactStore interface {
	Publish(ctx context.Context, enc *features.Encoder, forest *classifier.Forest, m storage.Manifest) (storage.Manifest, error)
	LoadCurrent(ctx context.Context) (*storage.Bundle, error)
}

// SubmissionLog appends user selections.
type SubmissionLog interface {
	Append(ctx context.Context, s submission.Submission) error
}

// Trainer runs one training pass.
type Trainer interface {
	Run(ctx context.Context) (*training.Result, error)
}

// RunRecorder keeps the training run history.
type RunRecorder interface {
	Record(ctx context.Context, r metrics.TrainingRun) error
}

// Config tunes inference and retraining.
type Config struct {
	TopK               int
	PredictionTimeout  time.Duration
	TrainingTimeout    time.Duration
	RetrainOnSelection bool
	BreakerFailures    uint32
	BreakerCooldown    time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		TopK:               5,
		PredictionTimeout:  2 * time.Second,
		TrainingTimeout:    2 * time.Minute,
		RetrainOnSelection: true,
		BreakerFailures:    5,
		BreakerCooldown:    30 * time.Second,
	}
}

// Planner owns the live model and the selection flow.
type Planner struct {
	catalog  *catalog.Catalog
	rules    *fallback.Table
	store    ArtifactStore
	subs     SubmissionLog
	trainer  Trainer
	runs     RunRecorder
	cfg      Config
	logger   zerolog.Logger
	breaker  *gobreaker.CircuitBreaker[[]classifier.Prediction]
	bundle   atomic.Pointer[storage.Bundle]
	trainSem chan struct{}
	training atomic.Bool
}

// NewPlanner creates a Planner. runs may be nil.
func NewPlanner(
	c *catalog.Catalog,
	store ArtifactStore,
	subs SubmissionLog,
	trainer Trainer,
	runs RunRecorder,
	cfg Config,
	logger zerolog.Logger,
) *Planner {
	if cfg.TopK < 1 {
		cfg.TopK = 5
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	p := &Planner{
		catalog:  c,
		rules:    fallback.New(c),
		store:    store,
		subs:     subs,
		trainer:  trainer,
		runs:     runs,
		cfg:      cfg,
		logger:   logger,
		trainSem: make(chan struct{}, 1),
	}

	p.breaker = gobreaker.NewCircuitBreaker[[]classifier.Prediction](gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return p
}

// Catalog returns the plan catalog.
func (p *Planner) Catalog() *catalog.Catalog {
	return p.catalog
}

// DefaultPlan returns the plan served when everything else fails.
func (p *Planner) DefaultPlan() catalog.PlanRecord {
	return p.rules.Default()
}

// Recommend ranks plans for req. The only error it returns is a validation
// error; model problems are absorbed by the fallback chain.
func (p *Planner) Recommend(ctx context.Context, req Request) (*Recommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	diet, goal := req.PrimaryDiet(), req.Goal

	rec, err := p.rankWithModel(ctx, diet, goal)
	if err == nil {
		metrics.PlanRecommendations.WithLabelValues(string(SourceModel)).Inc()
		return rec, nil
	}

	reason := fallbackReason(err)
	metrics.FallbackReasons.WithLabelValues(reason).Inc()
	evt := p.logger.Warn()
	if errors.Is(err, classifier.ErrModelUnavailable) {
		evt = p.logger.Debug()
	}
	evt.Err(err).Str("reason", reason).Str("diet", diet).Str("goal", goal).Msg("serving rule-based plan")

	plan, src := p.rules.Plan(diet, goal)
	out := &Recommendation{Source: SourceRules, Plans: []RankedPlan{{PlanRecord: plan, Confidence: 1}}}
	if src == fallback.SourceDefault {
		out.Source = SourceDefault
		out.Plans[0].Confidence = 0
	}
	metrics.PlanRecommendations.WithLabelValues(string(out.Source)).Inc()
	return out, nil
}

func (p *Planner) rankWithModel(ctx context.Context, diet, goal string) (*Recommendation, error) {
	b := p.bundle.Load()
	if b == nil {
		return nil, classifier.ErrModelUnavailable
	}

	vec, err := b.Encoder.Encode(diet, goal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", classifier.ErrPredictionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PredictionTimeout)
	defer cancel()

	preds, err := p.breaker.Execute(func() ([]classifier.Prediction, error) {
		return b.Classifier.Classify(ctx, vec, p.cfg.TopK)
	})
	if err != nil {
		return nil, err
	}

	rec := &Recommendation{Source: SourceModel, ModelVersion: b.Manifest.Version}
	for _, pr := range preds {
		plan, err := p.catalog.Lookup(pr.PlanID)
		if err != nil {
			p.logger.Warn().Int("plan_id", pr.PlanID).Int("model_version", b.Manifest.Version).Msg("model predicted a plan outside the catalog")
			continue
		}
		rec.Plans = append(rec.Plans, RankedPlan{PlanRecord: plan, Confidence: pr.Confidence})
	}
	if len(rec.Plans) == 0 {
		return nil, fmt.Errorf("%w: no predicted plan is in the catalog", classifier.ErrPredictionFailed)
	}
	return rec, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, classifier.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "prediction_failed"
	}
}

// Select appends the selection to the submission log and, when configured,
// retrains. A failed retrain returns a result with Saved set together with an
// error wrapping ErrTrainingFailed.
func (p *Planner) Select(ctx context.Context, sel Selection) (*SelectionResult, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	id := *sel.SelectedPlanID
	if !p.catalog.Has(id) {
		metrics.Selections.WithLabelValues("unknown_plan").Inc()
		return nil, fmt.Errorf("%w: %d", catalog.ErrUnknownPlanID, id)
	}

	err := p.subs.Append(ctx, submission.Submission{
		Name:           truncateName(sel.Name),
		Diet:           sel.Diet[0],
		Goal:           sel.Goal,
		SelectedPlanID: id,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownPlanID) {
			return nil, err
		}
		metrics.Selections.WithLabelValues("persist_failed").Inc()
		p.logger.Error().Err(err).Int("plan_id", id).Msg("failed to append submission")
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	res := &SelectionResult{Saved: true}
	if !p.cfg.RetrainOnSelection {
		metrics.Selections.WithLabelValues("saved").Inc()
		return res, nil
	}

	// The run outlives a disconnected client; it is bounded by TrainingTimeout.
	m, err := p.Retrain(context.WithoutCancel(ctx), TriggerSelection)
	if err != nil {
		metrics.Selections.WithLabelValues("retrain_failed").Inc()
		return res, err
	}
	metrics.Selections.WithLabelValues("retrained").Inc()
	res.Retrained = true
	res.ModelVersion = m.Version
	return res, nil
}

// Retrain runs the training job, publishes the result and swaps it in. Runs
// are serialized; a call waits for any run in progress before starting.
func (p *Planner) Retrain(ctx context.Context, trigger string) (storage.Manifest, error) {
	select {
	case p.trainSem <- struct{}{}:
	case <-ctx.Done():
		return storage.Manifest{}, fmt.Errorf("%w: waiting for running job: %w", ErrTrainingFailed, ctx.Err())
	}
	defer func() { <-p.trainSem }()

	p.training.Store(true)
	defer p.training.Store(false)

	if p.cfg.TrainingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TrainingTimeout)
		defer cancel()
	}

	start := time.Now()
	run := metrics.TrainingRun{Trigger: trigger, StartedAt: start.UTC()}

	m, err := p.trainAndPublish(ctx, &run)
	run.Duration = time.Since(start)
	if err != nil {
		run.Status = metrics.StatusFailed
		run.Error = err.Error()
	} else {
		run.Status = metrics.StatusSuccess
		run.Version = m.Version
		metrics.TrainingDuration.Observe(run.Duration.Seconds())
	}
	metrics.TrainingRuns.WithLabelValues(trigger, run.Status).Inc()
	p.recordRun(run)

	if err != nil {
		p.logger.Error().Err(err).Str("trigger", trigger).Str("run_id", run.RunID).Msg("training run failed")
		return storage.Manifest{}, fmt.Errorf("%w: %w", ErrTrainingFailed, err)
	}
	p.logger.Info().Str("trigger", trigger).Str("run_id", m.RunID).Int("version", m.Version).
		Float64("accuracy", m.Accuracy).Dur("duration", run.Duration).Msg("model updated")
	return m, nil
}

func (p *Planner) trainAndPublish(ctx context.Context, run *metrics.TrainingRun) (storage.Manifest, error) {
	res, err := p.trainer.Run(ctx)
	if err != nil {
		return storage.Manifest{}, err
	}
	r := res.Report
	run.RunID = r.RunID
	run.SyntheticRows = r.SyntheticRows
	run.SubmissionRows = r.SubmissionRows
	run.SubmissionsSkipped = r.SubmissionsSkipped
	run.Accuracy = r.Accuracy

	m, err := p.store.Publish(ctx, res.Encoder, res.Forest, storage.Manifest{
		RunID:          r.RunID,
		TrainedAt:      run.StartedAt,
		SyntheticRows:  r.SyntheticRows,
		SubmissionRows: r.SubmissionRows,
		Accuracy:       r.Accuracy,
		Features:       r.Features,
	})
	if err != nil {
		return storage.Manifest{}, fmt.Errorf("failed to publish artifacts: %w", err)
	}

	p.swap(&storage.Bundle{Encoder: res.Encoder, Classifier: res.Forest, Manifest: m})
	return m, nil
}

func (p *Planner) recordRun(run metrics.TrainingRun) {
	if p.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.runs.Record(ctx, run); err != nil {
		p.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("failed to record training run")
	}
}

// Reload swaps in the currently published pair. On error the loaded pair is
// left untouched.
func (p *Planner) Reload(ctx context.Context) error {
	// Holding the training slot keeps a reload from swapping in a version
	// older than one a concurrent run is about to publish.
	select {
	case p.trainSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.trainSem }()

	b, err := p.store.LoadCurrent(ctx)
	if err != nil {
		return err
	}
	p.swap(b)
	return nil
}

func (p *Planner) swap(b *storage.Bundle) {
	p.bundle.Store(b)
	metrics.ModelVersion.Set(float64(b.Manifest.Version))
	metrics.ModelAccuracy.Set(b.Manifest.Accuracy)
}

// Bootstrap loads the published model. When nothing is published and
// trainIfMissing is set, it trains one first.
func (p *Planner) Bootstrap(ctx context.Context, trainIfMissing bool) error {
	err := p.Reload(ctx)
	missing := errors.Is(err, storage.ErrNoArtifacts)
	switch {
	case err == nil:
		return nil
	case !trainIfMissing && missing:
		p.logger.Info().Msg("no published model; serving rule-based plans")
		return nil
	case !trainIfMissing:
		return err
	case !missing:
		p.logger.Warn().Err(err).Msg("published model is unreadable; retraining")
	}
	_, err = p.Retrain(ctx, TriggerStartup)
	return err
}

// Health is a point-in-time view of the planner.
type Health struct {
	Status             string     `json:"status"`
	ModelLoaded        bool       `json:"model_loaded"`
	ModelVersion       int        `json:"model_version"`
	RunID              string     `json:"run_id,omitempty"`
	TrainedAt          *time.Time `json:"trained_at,omitempty"`
	Accuracy           float64    `json:"accuracy"`
	CatalogSize        int        `json:"catalog_size"`
	TrainingInProgress bool       `json:"training_in_progress"`
	BreakerState       string     `json:"breaker_state"`
}

// Health reports the model state. It never fails.
func (p *Planner) Health() Health {
	h := Health{
		Status:             "healthy",
		CatalogSize:        p.catalog.Len(),
		TrainingInProgress: p.training.Load(),
		BreakerState:       p.breaker.State().String(),
	}
	if b := p.bundle.Load(); b != nil {
		h.ModelLoaded = true
		h.ModelVersion = b.Manifest.Version
		h.RunID = b.Manifest.RunID
		h.Accuracy = b.Manifest.Accuracy
		trained := b.Manifest.TrainedAt
		h.TrainedAt = &trained
	}
	return h
}
