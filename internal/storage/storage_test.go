package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"nutrition-planner/internal/classifier"
	"nutrition-planner/internal/features"
)

func fitPair(t *testing.T) (*features.Encoder, *classifier.Forest) {
	t.Helper()
	samples := []features.Sample{
		{Diet: "vegetarian", Goal: "weight-loss"},
		{Diet: "vegan", Goal: "muscle-gain"},
		{Diet: "keto", Goal: "weight-loss"},
		{Diet: "vegetarian", Goal: "weight-loss"},
	}
	labels := []int{0, 4, 5, 0}

	enc, err := features.Fit(samples, features.Options{})
	if err != nil {
		t.Fatalf("Failed to fit encoder: %v", err)
	}
	x, err := enc.EncodeAll(samples)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	forest, err := classifier.Fit(context.Background(), x, labels, classifier.Params{Trees: 5, MaxDepth: 4, Seed: 1})
	if err != nil {
		t.Fatalf("Failed to fit forest: %v", err)
	}
	return enc, forest
}

func TestPublishAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := NewArtifactStore(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if _, err := store.LoadCurrent(ctx); !errors.Is(err, ErrNoArtifacts) {
		t.Fatalf("Expected ErrNoArtifacts on an empty store, got %v", err)
	}

	enc, forest := fitPair(t)
	m, err := store.Publish(ctx, enc, forest, Manifest{RunID: "run-1", Accuracy: 0.9})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("Expected version 1, got %d", m.Version)
	}

	b, err := store.LoadCurrent(ctx)
	if err != nil {
		t.Fatalf("LoadCurrent failed: %v", err)
	}
	if b.Manifest.RunID != "run-1" || b.Manifest.Accuracy != 0.9 {
		t.Errorf("Unexpected manifest: %+v", b.Manifest)
	}

	vec, _ := b.Encoder.Encode("vegetarian", "weight-loss")
	want, _ := forest.Classify(ctx, vec, 5)
	got, err := b.Classifier.Classify(ctx, vec, 5)
	if err != nil {
		t.Fatalf("Classify on loaded forest failed: %v", err)
	}
	if len(got) != len(want) || got[0] != want[0] {
		t.Errorf("Loaded forest disagrees with the published one: %+v vs %+v", got, want)
	}
}

func TestPublishIncrementsAndPrunes(t *testing.T) {
	ctx := context.Background()
	store, _ := NewArtifactStore(t.TempDir(), 2)
	enc, forest := fitPair(t)

	for i, id := range []string{"a", "b", "c", "d"} {
		m, err := store.Publish(ctx, enc, forest, Manifest{RunID: id})
		if err != nil {
			t.Fatalf("Publish %s failed: %v", id, err)
		}
		if m.Version != i+1 {
			t.Errorf("Expected version %d, got %d", i+1, m.Version)
		}
	}

	versions, _ := store.Versions()
	if len(versions) != 2 || versions[0] != 3 || versions[1] != 4 {
		t.Errorf("Expected versions [3 4] after pruning, got %v", versions)
	}
	if v, _ := store.CurrentVersion(); v != 4 {
		t.Errorf("Expected current version 4, got %d", v)
	}
}

func TestLoadCurrentDuringPublishAndPrune(t *testing.T) {
	ctx := context.Background()
	store, _ := NewArtifactStore(t.TempDir(), 1)
	enc, forest := fitPair(t)
	if _, err := store.Publish(ctx, enc, forest, Manifest{RunID: "seed"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 20; i++ {
			if _, err := store.Publish(ctx, enc, forest, Manifest{RunID: "run"}); err != nil {
				t.Errorf("Publish %d failed: %v", i, err)
				return
			}
		}
	}()

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		if _, err := store.LoadCurrent(ctx); err != nil {
			t.Errorf("LoadCurrent failed while versions were pruned: %v", err)
			break
		}
	}
	wg.Wait()
}

func TestFailedPublishLeavesCurrentUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, _ := NewArtifactStore(dir, 3)
	enc, forest := fitPair(t)

	if _, err := store.Publish(ctx, enc, forest, Manifest{RunID: "good"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if _, err := store.Publish(ctx, enc, nil, Manifest{RunID: "bad"}); err == nil {
		t.Fatal("Expected publish without a classifier to fail")
	}
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.Publish(canceled, enc, forest, Manifest{RunID: "late"}); err == nil {
		t.Fatal("Expected publish with a canceled context to fail")
	}

	b, err := store.LoadCurrent(ctx)
	if err != nil || b.Manifest.RunID != "good" {
		t.Fatalf("Expected the previous run to stay current, got %v, %v", b, err)
	}
	versions, _ := store.Versions()
	if len(versions) != 1 {
		t.Errorf("Expected no extra versions, got %v", versions)
	}
	stale, _ := filepath.Glob(filepath.Join(dir, stagingPrefix+"*"))
	if len(stale) != 0 {
		t.Errorf("Expected staging directories to be cleaned up, found %v", stale)
	}
}

func TestLoadRejectsMixedRuns(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, _ := NewArtifactStore(dir, 5)
	enc, forest := fitPair(t)

	store.Publish(ctx, enc, forest, Manifest{RunID: "first"})
	store.Publish(ctx, enc, forest, Manifest{RunID: "second"})

	data, err := os.ReadFile(filepath.Join(dir, versionName(1), encoderFile))
	if err != nil {
		t.Fatalf("Failed to read v1 encoder: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, versionName(2), encoderFile), data, 0644); err != nil {
		t.Fatalf("Failed to overwrite v2 encoder: %v", err)
	}

	if _, err := store.LoadCurrent(ctx); err == nil {
		t.Error("Expected an error loading an encoder from a different run")
	}
}

func TestNewArtifactStoreCleansStaging(t *testing.T) {
	dir := t.TempDir()
	leftover := filepath.Join(dir, stagingPrefix+"123")
	os.MkdirAll(leftover, 0755)

	if _, err := NewArtifactStore(dir, 1); err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Error("Expected leftover staging directory to be removed")
	}
}

func TestCurrentVersionMalformed(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewArtifactStore(dir, 1)
	os.WriteFile(filepath.Join(dir, currentFile), []byte("latest"), 0644)

	if _, err := store.CurrentVersion(); err == nil || errors.Is(err, ErrNoArtifacts) {
		t.Errorf("Expected a malformed pointer error, got %v", err)
	}
}
