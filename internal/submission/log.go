// Package submission persists user plan selections as newline-delimited JSON.
package submission

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"nutrition-planner/internal/catalog"
)

// Submission is one logged plan selection.
type Submission struct {
	Timestamp      time.Time `json:"timestamp"`
	Name           string    `json:"name"`
	Diet           string    `json:"diet"`
	Goal           string    `json:"goal"`
	SelectedPlanID int       `json:"selected_plan_id"`
}

// Log is an append-only submission file. Each record is written with a
// single write call on an O_APPEND descriptor, so concurrent appends never
// interleave.
type Log struct {
	path    string
	catalog *catalog.Catalog

	mu   sync.Mutex
	file *os.File
}

// NewLog opens (or creates) the log at path and ensures its directory exists.
func NewLog(path string, c *catalog.Catalog) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create submission directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open submission log %s: %w", path, err)
	}
	return &Log{path: path, catalog: c, file: f}, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Append writes s as one line. The selected plan must exist in the catalog.
func (l *Log) Append(ctx context.Context, s Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.catalog.Has(s.SelectedPlanID) {
		return fmt.Errorf("%w: %d", catalog.ErrUnknownPlanID, s.SelectedPlanID)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return errors.New("submission log is closed")
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("failed to append submission: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync submission log: %w", err)
	}
	return nil
}

// ReadAll returns every well-formed record. Lines that fail to decode are
// skipped and counted.
func (l *Log) ReadAll(ctx context.Context) ([]Submission, int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open submission log: %w", err)
	}
	defer f.Close()

	var subs []Submission
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var s Submission
		if err := json.Unmarshal(line, &s); err != nil {
			skipped++
			continue
		}
		subs = append(subs, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read submission log: %w", err)
	}
	return subs, skipped, nil
}

// Close releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
