// Package progress implements durable, resumable job state. One Record per
// job maps item keys (URLs or chapter slugs) to their status and source
// hash, enabling idempotent skip-on-unchanged across process restarts.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle state of one tracked item.
type Status string

// Item state machine: pending -> completed | failed | skipped, and
// failed -> pending again via ResetFailed.
const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ErrNotFound reports that no progress file exists for a job key.
var ErrNotFound = errors.New("progress record not found")

// Item records the outcome of one tracked work unit.
type Item struct {
	SourceHash string    `json:"sourceHash,omitempty"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
	OutputPath string    `json:"outputPath,omitempty"`
}

// Record is the durable state of one job instance.
type Record struct {
	JobKey    string          `json:"jobKey"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Items     map[string]Item `json:"items"`
}

// Tracker owns the progress file for one job and is the only writer to it.
// All state transitions go through Mark* operations, which persist
// immediately so a crash loses at most one in-flight item.
type Tracker struct {
	path   string
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

// NewTracker builds a Tracker for the progress file at path.
func NewTracker(path string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		path:   path,
		now:    time.Now,
		logger: logger,
	}
}

// Load reads the progress file. It returns ErrNotFound when none exists.
func (t *Tracker) Load(jobKey string) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(jobKey)
}

func (t *Tracker) loadLocked(jobKey string) (*Record, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read progress %s: %w", t.path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", t.path, err)
	}
	if rec.Items == nil {
		rec.Items = make(map[string]Item)
	}
	if jobKey != "" && rec.JobKey != jobKey {
		t.logger.Warn("progress file belongs to a different job, reinitializing",
			zap.String("path", t.path),
			zap.String("have", rec.JobKey),
			zap.String("want", jobKey))
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Save writes the record atomically: marshal to a temp file in the target
// directory, then rename over the destination so a crash leaves the prior
// file intact.
func (t *Tracker) Save(rec *Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked(rec)
}

func (t *Tracker) saveLocked(rec *Record) error {
	rec.UpdatedAt = t.now().UTC()
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create progress dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".progress-*.tmp")
	if err != nil {
		return fmt.Errorf("create progress temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write progress temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close progress temp file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename progress file: %w", err)
	}
	return nil
}

// MarkCompleted transitions an item to completed and persists immediately.
func (t *Tracker) MarkCompleted(rec *Record, itemKey, sourceHash, outputPath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec.Items[itemKey] = Item{
		SourceHash: sourceHash,
		Status:     StatusCompleted,
		Timestamp:  t.now().UTC(),
		OutputPath: outputPath,
	}
	return t.saveLocked(rec)
}

// MarkFailed records an item failure with its reason. The item stays in the
// record so ResetFailed can requeue it later; it is never silently dropped.
func (t *Tracker) MarkFailed(rec *Record, itemKey, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := rec.Items[itemKey]
	rec.Items[itemKey] = Item{
		SourceHash: prev.SourceHash,
		Status:     StatusFailed,
		Timestamp:  t.now().UTC(),
		Error:      reason,
	}
	return t.saveLocked(rec)
}

// MarkSkipped records that an item was deliberately not processed.
func (t *Tracker) MarkSkipped(rec *Record, itemKey, sourceHash string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := rec.Items[itemKey]
	item := Item{
		SourceHash: sourceHash,
		Status:     StatusSkipped,
		Timestamp:  t.now().UTC(),
		OutputPath: prev.OutputPath,
	}
	rec.Items[itemKey] = item
	return t.saveLocked(rec)
}

// Resume loads or initializes the record for jobKey, prunes entries whose
// keys are absent from candidates, persists the merged record, and returns
// the subset of candidates that still need processing (missing or pending).
// Failed entries are not returned; they require an explicit ResetFailed.
func (t *Tracker) Resume(jobKey string, candidates []string) (*Record, []string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.loadLocked(jobKey)
	if errors.Is(err, ErrNotFound) {
		rec = &Record{JobKey: jobKey, Items: make(map[string]Item)}
	} else if err != nil {
		return nil, nil, err
	}

	current := make(map[string]bool, len(candidates))
	for _, key := range candidates {
		current[key] = true
	}
	for key := range rec.Items {
		if !current[key] {
			t.logger.Debug("pruning stale progress entry",
				zap.String("job", jobKey),
				zap.String("item", key))
			delete(rec.Items, key)
		}
	}
	if err := t.saveLocked(rec); err != nil {
		return nil, nil, err
	}

	var pending []string
	for _, key := range candidates {
		item, ok := rec.Items[key]
		if !ok || item.Status == StatusPending {
			pending = append(pending, key)
		}
	}
	return rec, pending, nil
}

// ResetFailed transitions every failed entry back to pending and persists.
// It returns the number of entries reset.
func (t *Tracker) ResetFailed(jobKey string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.loadLocked(jobKey)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	reset := 0
	for key, item := range rec.Items {
		if item.Status != StatusFailed {
			continue
		}
		item.Status = StatusPending
		item.Error = ""
		item.Timestamp = t.now().UTC()
		rec.Items[key] = item
		reset++
	}
	if reset == 0 {
		return 0, nil
	}
	if err := t.saveLocked(rec); err != nil {
		return 0, err
	}
	return reset, nil
}

// ShouldSkip reports whether an item can be skipped on re-run: it is
// completed with a matching source hash and overwrite was not requested.
func (rec *Record) ShouldSkip(itemKey, sourceHash string, overwrite bool) bool {
	if overwrite {
		return false
	}
	item, ok := rec.Items[itemKey]
	return ok && item.Status == StatusCompleted && item.SourceHash == sourceHash
}
