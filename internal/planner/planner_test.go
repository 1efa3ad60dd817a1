package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nutrition-planner/internal/catalog"
	"nutrition-planner/internal/classifier"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/storage"
	"nutrition-planner/internal/submission"
	"nutrition-planner/internal/training"
	"nutrition-planner/internal/validation"
)

type recorder struct {
	mu   sync.Mutex
	runs []metrics.TrainingRun
}

func (r *recorder) Record(ctx context.Context, run metrics.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

type failingTrainer struct{}

func (failingTrainer) Run(ctx context.Context) (*training.Result, error) {
	return nil, errors.New("out of memory")
}

type failingLog struct{}

func (failingLog) Append(ctx context.Context, s submission.Submission) error {
	return errors.New("disk full")
}

// trackingTrainer records how many runs overlap.
type trackingTrainer struct {
	inner     Trainer
	active    atomic.Int32
	maxActive atomic.Int32
}

func (t *trackingTrainer) Run(ctx context.Context) (*training.Result, error) {
	n := t.active.Add(1)
	defer t.active.Add(-1)
	for {
		m := t.maxActive.Load()
		if n <= m || t.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return t.inner.Run(ctx)
}

type fixture struct {
	planner *Planner
	log     *submission.Log
	store   *storage.ArtifactStore
	runs    *recorder
}

func testTrainingConfig() training.Config {
	cfg := training.DefaultConfig()
	cfg.SyntheticRows = 600
	cfg.Forest.Trees = 30
	return cfg
}

func newFixture(t *testing.T, cfg Config, trainer func(c *catalog.Catalog, log *submission.Log) Trainer) *fixture {
	t.Helper()
	dir := t.TempDir()
	c := catalog.Default()

	log, err := submission.NewLog(filepath.Join(dir, "submissions.jsonl"), c)
	if err != nil {
		t.Fatalf("Failed to open submission log: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	store, err := storage.NewArtifactStore(filepath.Join(dir, "model"), 3)
	if err != nil {
		t.Fatalf("Failed to create artifact store: %v", err)
	}

	var tr Trainer = training.NewJob(c, log, testTrainingConfig(), zerolog.Nop())
	if trainer != nil {
		tr = trainer(c, log)
	}

	runs := &recorder{}
	return &fixture{
		planner: NewPlanner(c, store, log, tr, runs, cfg, zerolog.Nop()),
		log:     log,
		store:   store,
		runs:    runs,
	}
}

func lineCount(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return strings.Count(string(data), "\n")
}

func intPtr(v int) *int { return &v }

func TestRecommendWithoutModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), nil)

	tests := []struct {
		name       string
		req        Request
		wantID     int
		wantSource Source
		wantConf   float64
	}{
		{"RuleMatch", Request{Name: "Alice", Diet: []string{"vegetarian"}, Goal: "weight-loss"}, 0, SourceRules, 1},
		{"OtherRule", Request{Diet: []string{"high-protein", "vegan"}, Goal: "muscle-gain"}, 1, SourceRules, 1},
		{"Nonsense", Request{Diet: []string{"xyz"}, Goal: "xyz"}, 0, SourceDefault, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := f.planner.Recommend(ctx, tt.req)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Source != tt.wantSource {
				t.Errorf("Expected source %s, got %s", tt.wantSource, rec.Source)
			}
			if len(rec.Plans) != 1 || rec.Plans[0].ID != tt.wantID {
				t.Fatalf("Expected single plan %d, got %+v", tt.wantID, rec.Plans)
			}
			if rec.Plans[0].Confidence != tt.wantConf {
				t.Errorf("Expected confidence %v, got %v", tt.wantConf, rec.Plans[0].Confidence)
			}
		})
	}
}

func TestRecommendValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), nil)

	bad := []Request{
		{Goal: "weight-loss"},
		{Diet: []string{}, Goal: "weight-loss"},
		{Diet: []string{"vegan"}},
		{Diet: []string{""}, Goal: "weight-loss"},
	}
	for i, req := range bad {
		if _, err := f.planner.Recommend(ctx, req); !validation.IsValidationError(err) {
			t.Errorf("Request %d: expected validation error, got %v", i, err)
		}
	}
}

func TestBootstrapAndRecommendWithModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), nil)

	if err := f.planner.Bootstrap(ctx, false); err != nil {
		t.Fatalf("Bootstrap without training failed: %v", err)
	}
	if f.planner.Health().ModelLoaded {
		t.Fatal("Expected no model before training")
	}

	if err := f.planner.Bootstrap(ctx, true); err != nil {
		t.Fatalf("Bootstrap with training failed: %v", err)
	}
	h := f.planner.Health()
	if !h.ModelLoaded || h.ModelVersion != 1 {
		t.Fatalf("Expected model version 1 to be loaded, got %+v", h)
	}
	if f.runs.count() != 1 || f.runs.runs[0].Trigger != TriggerStartup {
		t.Errorf("Expected one startup run to be recorded, got %+v", f.runs.runs)
	}

	rec, err := f.planner.Recommend(ctx, Request{Name: "Alice", Diet: []string{"vegetarian"}, Goal: "weight-loss"})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if rec.Source != SourceModel || rec.ModelVersion != 1 {
		t.Errorf("Expected model source at version 1, got %s at %d", rec.Source, rec.ModelVersion)
	}
	if len(rec.Plans) == 0 || len(rec.Plans) > 5 {
		t.Fatalf("Expected 1 to 5 plans, got %d", len(rec.Plans))
	}

	var planZero *RankedPlan
	for i, p := range rec.Plans {
		if p.Confidence < 0 || p.Confidence > 1 {
			t.Errorf("Confidence out of range: %f", p.Confidence)
		}
		if i > 0 && p.Confidence > rec.Plans[i-1].Confidence {
			t.Errorf("Plans not sorted by confidence at %d", i)
		}
		if p.ID == 0 {
			planZero = &rec.Plans[i]
		}
	}
	if planZero == nil {
		t.Fatalf("Expected plan 0 in the top-5, got %+v", rec.Plans)
	}
	if planZero.Name != "Vegetarian Weight Loss" {
		t.Errorf("Expected catalog record to be joined, got '%s'", planZero.Name)
	}
	if planZero.Confidence < rec.Plans[0].Confidence-0.1 {
		t.Errorf("Expected plan 0 near the top, got %.2f against %.2f", planZero.Confidence, rec.Plans[0].Confidence)
	}

	// A second bootstrap loads what is on disk instead of training again.
	if err := f.planner.Bootstrap(ctx, true); err != nil {
		t.Fatalf("Second bootstrap failed: %v", err)
	}
	if f.runs.count() != 1 {
		t.Errorf("Expected no extra training run, got %d runs", f.runs.count())
	}
}

func TestSelectRetrains(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), nil)

	res, err := f.planner.Select(ctx, Selection{Name: "Alice", Diet: []string{"vegetarian"}, Goal: "weight-loss", SelectedPlanID: intPtr(0)})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if !res.Saved || !res.Retrained || res.ModelVersion != 1 {
		t.Errorf("Expected saved and retrained at version 1, got %+v", res)
	}
	if n := lineCount(t, f.log.Path()); n != 1 {
		t.Errorf("Expected one submission line, got %d", n)
	}

	b, err := f.store.LoadCurrent(ctx)
	if err != nil {
		t.Fatalf("Expected published artifacts, got %v", err)
	}
	if b.Encoder.Dim != b.Classifier.Dim {
		t.Errorf("Published pair is inconsistent: encoder %d, classifier %d", b.Encoder.Dim, b.Classifier.Dim)
	}
	if len(b.Manifest.Features) != b.Encoder.Dim {
		t.Errorf("Expected the manifest to label %d features, got %d", b.Encoder.Dim, len(b.Manifest.Features))
	}
	if b.Manifest.SubmissionRows != 1 {
		t.Errorf("Expected the new submission to be trained on, got %d rows", b.Manifest.SubmissionRows)
	}
	if h := f.planner.Health(); h.RunID != b.Manifest.RunID {
		t.Errorf("Expected live model to be run %s, got %s", b.Manifest.RunID, h.RunID)
	}
}

func TestSelectUnknownPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), nil)

	_, err := f.planner.Select(ctx, Selection{Diet: []string{"vegetarian"}, Goal: "weight-loss", SelectedPlanID: intPtr(999)})
	if !errors.Is(err, catalog.ErrUnknownPlanID) {
		t.Fatalf("Expected ErrUnknownPlanID, got %v", err)
	}
	if n := lineCount(t, f.log.Path()); n != 0 {
		t.Errorf("Expected no submission lines, got %d", n)
	}
	if f.runs.count() != 0 {
		t.Error("Expected no training run")
	}
}

func TestSelectMissingPlanID(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	_, err := f.planner.Select(context.Background(), Selection{Diet: []string{"vegan"}, Goal: "weight-loss"})
	if !validation.IsValidationError(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestSelectTrainingFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), func(c *catalog.Catalog, log *submission.Log) Trainer {
		return failingTrainer{}
	})

	res, err := f.planner.Select(ctx, Selection{Diet: []string{"keto"}, Goal: "weight-loss", SelectedPlanID: intPtr(5)})
	if !errors.Is(err, ErrTrainingFailed) {
		t.Fatalf("Expected ErrTrainingFailed, got %v", err)
	}
	if res == nil || !res.Saved || res.Retrained {
		t.Errorf("Expected the selection to be saved without retraining, got %+v", res)
	}
	if n := lineCount(t, f.log.Path()); n != 1 {
		t.Errorf("Expected the submission to be kept, got %d lines", n)
	}
	if f.planner.Health().ModelLoaded {
		t.Error("Expected no model after a failed run")
	}
	if f.runs.count() != 1 || f.runs.runs[0].Status != metrics.StatusFailed {
		t.Errorf("Expected one failed run to be recorded, got %+v", f.runs.runs)
	}
}

func TestSelectPersistenceFailure(t *testing.T) {
	dir := t.TempDir()
	c := catalog.Default()
	store, _ := storage.NewArtifactStore(dir, 1)
	p := NewPlanner(c, store, failingLog{}, failingTrainer{}, nil, DefaultConfig(), zerolog.Nop())

	_, err := p.Select(context.Background(), Selection{Diet: []string{"keto"}, Goal: "weight-loss", SelectedPlanID: intPtr(5)})
	if !errors.Is(err, ErrPersistenceFailed) {
		t.Errorf("Expected ErrPersistenceFailed, got %v", err)
	}
}

func TestSelectWithoutRetrain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetrainOnSelection = false
	f := newFixture(t, cfg, nil)

	res, err := f.planner.Select(context.Background(), Selection{Diet: []string{"paleo"}, Goal: "muscle-gain", SelectedPlanID: intPtr(7)})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if !res.Saved || res.Retrained {
		t.Errorf("Expected saved without retrain, got %+v", res)
	}
}

func TestRetrainSerialized(t *testing.T) {
	ctx := context.Background()
	var tracker *trackingTrainer
	f := newFixture(t, DefaultConfig(), func(c *catalog.Catalog, log *submission.Log) Trainer {
		tracker = &trackingTrainer{inner: training.NewJob(c, log, testTrainingConfig(), zerolog.Nop())}
		return tracker
	})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.planner.Retrain(ctx, TriggerAdmin); err != nil {
				t.Errorf("Retrain failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := tracker.maxActive.Load(); got != 1 {
		t.Errorf("Expected at most one concurrent run, got %d", got)
	}
	if h := f.planner.Health(); h.ModelVersion != 3 || h.TrainingInProgress {
		t.Errorf("Expected version 3 and no run in progress, got %+v", h)
	}
}

func TestRetrainQueueRespectsContext(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.planner.trainSem <- struct{}{}
	defer func() { <-f.planner.trainSem }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.planner.Retrain(ctx, TriggerAdmin); !errors.Is(err, ErrTrainingFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected queued run to give up with the context, got %v", err)
	}
}

func TestPredictionFailureFallsBackAndTripsBreaker(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Hour
	f := newFixture(t, cfg, nil)

	if err := f.planner.Bootstrap(ctx, true); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	good := f.planner.bundle.Load()

	// A classifier that disagrees with the encoder on dimensionality.
	stale := &classifier.Forest{
		Classes: []int{0},
		Dim:     good.Encoder.Dim + 1,
		Trees:   []classifier.Tree{{Nodes: []classifier.Node{{Leaf: true, Dist: []float64{1}}}}},
	}
	f.planner.bundle.Store(&storage.Bundle{Encoder: good.Encoder, Classifier: stale, Manifest: good.Manifest})

	for i := 0; i < 3; i++ {
		rec, err := f.planner.Recommend(ctx, Request{Diet: []string{"high-protein"}, Goal: "muscle-gain"})
		if err != nil {
			t.Fatalf("Expected fallback instead of error, got %v", err)
		}
		if rec.Source != SourceRules || rec.Plans[0].ID != 1 {
			t.Errorf("Expected rule-based plan 1, got %s %+v", rec.Source, rec.Plans)
		}
	}
	if state := f.planner.Health().BreakerState; state != "open" {
		t.Errorf("Expected breaker to be open, got %s", state)
	}
}

func TestHealthIdempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	a := f.planner.Health()
	b := f.planner.Health()
	if a.ModelLoaded != b.ModelLoaded || a.Status != "healthy" {
		t.Errorf("Expected stable healthy status, got %+v and %+v", a, b)
	}
	if a.CatalogSize != 20 {
		t.Errorf("Expected catalog size 20, got %d", a.CatalogSize)
	}
}

func TestValidationConsultsFirstDietOnly(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.RetrainOnSelection = false
	f := newFixture(t, cfg, nil)
	longName := strings.Repeat("é", 300)

	rec, err := f.planner.Recommend(ctx, Request{Name: longName, Diet: []string{"vegan", ""}, Goal: "weight-loss"})
	if err != nil {
		t.Fatalf("Expected trailing diets and long names to be accepted, got %v", err)
	}
	if rec.Source != SourceRules {
		t.Errorf("Expected the vegan rule to answer, got %s", rec.Source)
	}

	if _, err := f.planner.Recommend(ctx, Request{Diet: []string{" ", "vegan"}, Goal: "weight-loss"}); !validation.IsValidationError(err) {
		t.Errorf("Expected a blank first diet to be rejected, got %v", err)
	}

	_, err = f.planner.Select(ctx, Selection{Name: longName, Diet: []string{"vegan", ""}, Goal: "weight-loss", SelectedPlanID: intPtr(3)})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	subs, _, err := f.log.ReadAll(ctx)
	if err != nil || len(subs) != 1 {
		t.Fatalf("Expected one submission, got %d, %v", len(subs), err)
	}
	if got := len([]rune(subs[0].Name)); got != maxNameRunes {
		t.Errorf("Expected the stored name to be cut to %d runes, got %d", maxNameRunes, got)
	}
}

// pausingStore holds LoadCurrent open after the bundle has been read.
type pausingStore struct {
	*storage.ArtifactStore
	loaded  chan struct{}
	release chan struct{}
}

func (s *pausingStore) LoadCurrent(ctx context.Context) (*storage.Bundle, error) {
	b, err := s.ArtifactStore.LoadCurrent(ctx)
	close(s.loaded)
	<-s.release
	return b, err
}

func TestReloadCannotRollBackConcurrentRetrain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), nil)

	if _, err := f.planner.Retrain(ctx, TriggerAdmin); err != nil {
		t.Fatalf("Initial retrain failed: %v", err)
	}

	ps := &pausingStore{ArtifactStore: f.store, loaded: make(chan struct{}), release: make(chan struct{})}
	f.planner.store = ps

	reloadErr := make(chan error, 1)
	go func() { reloadErr <- f.planner.Reload(ctx) }()
	<-ps.loaded

	retrainDone := make(chan error, 1)
	go func() {
		_, err := f.planner.Retrain(ctx, TriggerAdmin)
		retrainDone <- err
	}()

	select {
	case err := <-retrainDone:
		t.Fatalf("Expected retrain to wait for the reload, it finished with %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(ps.release)
	if err := <-reloadErr; err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if err := <-retrainDone; err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}

	current, err := f.store.CurrentVersion()
	if err != nil {
		t.Fatalf("Failed to read current version: %v", err)
	}
	if live := f.planner.Health().ModelVersion; live != 2 || current != 2 {
		t.Errorf("Expected live and published version 2, got live %d, published %d", live, current)
	}
}
