// Package storage publishes and loads trained model artifacts on disk.
//
// Each training run is written to a versioned directory:
//
//	<base>/v000007/encoder.gob.gz
//	<base>/v000007/classifier.gob.gz
//	<base>/v000007/manifest.json
//	<base>/CURRENT                      -> "v000007"
//
// A run is staged in a temporary directory, renamed into place, and only then
// made visible by atomically replacing CURRENT. Readers therefore always see a
// complete encoder/classifier pair from one run.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"nutrition-planner/internal/classifier"
	"nutrition-planner/internal/features"
)

const (
	encoderFile    = "encoder.gob.gz"
	classifierFile = "classifier.gob.gz"
	manifestFile   = "manifest.json"
	currentFile    = "CURRENT"
	stagingPrefix  = ".staging-"
)

// ErrNoArtifacts is returned when nothing has been published yet.
var ErrNoArtifacts = errors.New("no published model artifacts")

// Manifest describes one published training run.
type Manifest struct {
	RunID              string    `json:"run_id"`
	Version            int       `json:"version"`
	TrainedAt          time.Time `json:"trained_at"`
	PublishedAt        time.Time `json:"published_at"`
	SyntheticRows      int       `json:"synthetic_rows"`
	SubmissionRows     int       `json:"submission_rows"`
	Accuracy           float64   `json:"accuracy"`
	EncoderChecksum    string    `json:"encoder_checksum"`
	ClassifierChecksum string    `json:"classifier_checksum"`
	Features           []string  `json:"features,omitempty"`
}

// Bundle is an encoder and classifier loaded from the same run.
type Bundle struct {
	Encoder    *features.Encoder
	Classifier *classifier.Forest
	Manifest   Manifest
}

type storedArtifact struct {
	RunID    string
	Kind     string
	Checksum string
	Payload  []byte
}

// ArtifactStore manages the model directory.
type ArtifactStore struct {
	basePath string
	retain   int
	// mu is held for writing by Publish and for reading by loads, so prune
	// never removes a version a load has resolved.
	mu sync.RWMutex
}

// NewArtifactStore creates the store and removes staging directories left
// behind by interrupted runs. retain is the number of versions kept on disk.
func NewArtifactStore(basePath string, retain int) (*ArtifactStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory %s: %w", basePath, err)
	}
	if retain < 1 {
		retain = 1
	}

	stale, _ := filepath.Glob(filepath.Join(basePath, stagingPrefix+"*"))
	for _, dir := range stale {
		_ = os.RemoveAll(dir)
	}
	return &ArtifactStore{basePath: basePath, retain: retain}, nil
}

// Path returns the model directory.
func (s *ArtifactStore) Path() string {
	return s.basePath
}

func versionName(v int) string {
	return fmt.Sprintf("v%06d", v)
}

func parseVersion(name string) (int, bool) {
	if !strings.HasPrefix(name, "v") || len(name) != 7 {
		return 0, false
	}
	var v int
	if _, err := fmt.Sscanf(name[1:], "%d", &v); err != nil {
		return 0, false
	}
	return v, true
}

// Versions lists the published version numbers in ascending order.
func (s *ArtifactStore) Versions() ([]int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}
	var out []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if v, ok := parseVersion(e.Name()); ok {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Publish writes enc and forest as a new version and makes it current.
// On any error nothing becomes visible and the previous version stays current.
func (s *ArtifactStore) Publish(ctx context.Context, enc *features.Encoder, forest *classifier.Forest, m Manifest) (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enc == nil || forest == nil {
		return Manifest{}, errors.New("encoder and classifier are both required")
	}
	if m.RunID == "" {
		return Manifest{}, errors.New("manifest run id is required")
	}

	versions, err := s.Versions()
	if err != nil {
		return Manifest{}, err
	}
	m.Version = 1
	if len(versions) > 0 {
		m.Version = versions[len(versions)-1] + 1
	}

	staging, err := os.MkdirTemp(s.basePath, stagingPrefix)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
		}
	}()

	if m.EncoderChecksum, err = writeArtifact(filepath.Join(staging, encoderFile), m.RunID, "encoder", enc); err != nil {
		return Manifest{}, err
	}
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}
	if m.ClassifierChecksum, err = writeArtifact(filepath.Join(staging, classifierFile), m.RunID, "classifier", forest); err != nil {
		return Manifest{}, err
	}
	m.PublishedAt = time.Now().UTC()
	if err := writeManifest(filepath.Join(staging, manifestFile), m); err != nil {
		return Manifest{}, err
	}
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}

	final := filepath.Join(s.basePath, versionName(m.Version))
	if err := os.Rename(staging, final); err != nil {
		return Manifest{}, fmt.Errorf("failed to move staged artifacts into place: %w", err)
	}
	published = true

	if err := s.writeCurrent(m.Version); err != nil {
		_ = os.RemoveAll(final)
		return Manifest{}, err
	}

	// A failed prune only leaves extra versions behind.
	_ = s.prune(m.Version)
	return m, nil
}

func (s *ArtifactStore) writeCurrent(version int) error {
	tmp, err := os.CreateTemp(s.basePath, currentFile+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create pointer file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(versionName(version) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pointer file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync pointer file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close pointer file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.basePath, currentFile)); err != nil {
		return fmt.Errorf("failed to publish pointer file: %w", err)
	}
	return nil
}

// prune removes the oldest versions beyond the retention count. The current
// version is never removed.
func (s *ArtifactStore) prune(current int) error {
	versions, err := s.Versions()
	if err != nil {
		return err
	}
	if len(versions) <= s.retain {
		return nil
	}
	for _, v := range versions[:len(versions)-s.retain] {
		if v == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.basePath, versionName(v))); err != nil {
			return fmt.Errorf("failed to remove stale version %d: %w", v, err)
		}
	}
	return nil
}

// CurrentVersion returns the version CURRENT points at.
func (s *ArtifactStore) CurrentVersion() (int, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoArtifacts
		}
		return 0, fmt.Errorf("failed to read pointer file: %w", err)
	}
	v, ok := parseVersion(strings.TrimSpace(string(data)))
	if !ok {
		return 0, fmt.Errorf("malformed pointer file content %q", strings.TrimSpace(string(data)))
	}
	return v, nil
}

// LoadCurrent loads the bundle CURRENT points at.
func (s *ArtifactStore) LoadCurrent(ctx context.Context) (*Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.CurrentVersion()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, v)
}

// Load reads one version and checks that both artifacts belong to the run
// recorded in its manifest.
func (s *ArtifactStore) Load(ctx context.Context, version int) (*Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx, version)
}

func (s *ArtifactStore) load(ctx context.Context, version int) (*Bundle, error) {
	dir := filepath.Join(s.basePath, versionName(version))

	m, err := readManifest(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}

	var enc features.Encoder
	if err := readArtifact(filepath.Join(dir, encoderFile), m.RunID, m.EncoderChecksum, &enc); err != nil {
		return nil, fmt.Errorf("failed to load encoder for version %d: %w", version, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var forest classifier.Forest
	if err := readArtifact(filepath.Join(dir, classifierFile), m.RunID, m.ClassifierChecksum, &forest); err != nil {
		return nil, fmt.Errorf("failed to load classifier for version %d: %w", version, err)
	}
	if forest.Dim != enc.Dim {
		return nil, fmt.Errorf("version %d: classifier expects %d features, encoder produces %d", version, forest.Dim, enc.Dim)
	}

	return &Bundle{Encoder: &enc, Classifier: &forest, Manifest: m}, nil
}

func writeArtifact(path, runID, kind string, value any) (string, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(value); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	sum := sha256.Sum256(payload.Bytes())
	checksum := hex.EncodeToString(sum[:])

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s file: %w", kind, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	art := storedArtifact{RunID: runID, Kind: kind, Checksum: checksum, Payload: payload.Bytes()}
	if err := gob.NewEncoder(gz).Encode(art); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", kind, err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to compress %s file: %w", kind, err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync %s file: %w", kind, err)
	}
	return checksum, nil
}

func readArtifact(path, runID, checksum string, target any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to decompress: %w", err)
	}
	defer gz.Close()

	var art storedArtifact
	if err := gob.NewDecoder(gz).Decode(&art); err != nil {
		return fmt.Errorf("failed to decode artifact: %w", err)
	}
	if art.RunID != runID {
		return fmt.Errorf("artifact belongs to run %s, manifest names %s", art.RunID, runID)
	}

	sum := sha256.Sum256(art.Payload)
	if got := hex.EncodeToString(sum[:]); got != checksum || got != art.Checksum {
		return fmt.Errorf("checksum mismatch: manifest %s, artifact %s, computed %s", checksum, art.Checksum, got)
	}

	if err := gob.NewDecoder(bytes.NewReader(art.Payload)).Decode(target); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return m, nil
}
