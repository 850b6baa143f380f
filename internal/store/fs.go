// Package store persists harvested and translated works: a filesystem
// layout of JSON records, plus an optional Postgres publication sink.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/novel"
)

const (
	// IndexFile is the per-work index filename.
	IndexFile = "index.json"
	// TranslatedDir holds the translated mirror of a work.
	TranslatedDir = "translated"
	// ProgressFile is the translation progress ledger inside TranslatedDir.
	ProgressFile = ".progress.json"

	volumeFilePattern = "volume-%03d.json"
)

// FileStore lays works out under a base directory:
//
//	<base>/<work-slug>/index.json
//	<base>/<work-slug>/volume-001.json
//	<base>/<work-slug>/translated/index.json
//	<base>/<work-slug>/translated/volume-001.json
//	<base>/<work-slug>/translated/.progress.json
type FileStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewFileStore validates the base directory and returns a store rooted there.
func NewFileStore(baseDir string, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{baseDir: baseDir, logger: logger}, nil
}

// VolumeFile returns the filename for a volume number, e.g. volume-001.json.
func VolumeFile(number int) string {
	return fmt.Sprintf(volumeFilePattern, number)
}

// WorkDir returns the directory for one work.
func (s *FileStore) WorkDir(slug string) string {
	return filepath.Join(s.baseDir, slug)
}

// ProgressPath returns the progress ledger path for one work.
func (s *FileStore) ProgressPath(slug string) string {
	return filepath.Join(s.baseDir, slug, TranslatedDir, ProgressFile)
}

// WriteIndex persists a work index.
func (s *FileStore) WriteIndex(slug string, idx *novel.WorkIndex) error {
	return s.writeJSON(filepath.Join(slug, IndexFile), idx)
}

// WriteVolume persists one volume record.
func (s *FileStore) WriteVolume(slug string, vol *novel.VolumeRecord) error {
	return s.writeJSON(filepath.Join(slug, VolumeFile(vol.Number)), vol)
}

// WriteTranslatedIndex persists the translated mirror's index.
func (s *FileStore) WriteTranslatedIndex(slug string, idx *novel.WorkIndex) error {
	return s.writeJSON(filepath.Join(slug, TranslatedDir, IndexFile), idx)
}

// WriteTranslatedVolume persists one translated volume record.
func (s *FileStore) WriteTranslatedVolume(slug string, vol *novel.VolumeRecord) error {
	return s.writeJSON(filepath.Join(slug, TranslatedDir, VolumeFile(vol.Number)), vol)
}

// ReadIndex loads a work index.
func (s *FileStore) ReadIndex(slug string) (*novel.WorkIndex, error) {
	var idx novel.WorkIndex
	if err := s.readJSON(filepath.Join(slug, IndexFile), &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// ReadVolume loads one volume record.
func (s *FileStore) ReadVolume(slug string, number int) (*novel.VolumeRecord, error) {
	var vol novel.VolumeRecord
	if err := s.readJSON(filepath.Join(slug, VolumeFile(number)), &vol); err != nil {
		return nil, err
	}
	return &vol, nil
}

// ReadTranslatedIndex loads the translated mirror's index, if present.
func (s *FileStore) ReadTranslatedIndex(slug string) (*novel.WorkIndex, error) {
	var idx novel.WorkIndex
	if err := s.readJSON(filepath.Join(slug, TranslatedDir, IndexFile), &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// ReadTranslatedVolume loads one translated volume record, if present.
func (s *FileStore) ReadTranslatedVolume(slug string, number int) (*novel.VolumeRecord, error) {
	var vol novel.VolumeRecord
	if err := s.readJSON(filepath.Join(slug, TranslatedDir, VolumeFile(number)), &vol); err != nil {
		return nil, err
	}
	return &vol, nil
}

// ListWorks returns the slugs of all works with an index, sorted.
func (s *FileStore) ListWorks() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading output directory: %w", err)
	}
	var slugs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.baseDir, e.Name(), IndexFile)); err != nil {
			continue
		}
		slugs = append(slugs, e.Name())
	}
	sort.Strings(slugs)
	return slugs, nil
}

// writeJSON writes v atomically: a temp file in the destination directory
// followed by a rename, so readers never observe a partial record.
func (s *FileStore) writeJSON(rel string, v any) error {
	full := filepath.Join(s.baseDir, rel)
	if err := s.checkPath(full); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rel, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".write-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", rel, err)
	}
	s.logger.Debug("wrote record", zap.String("path", rel), zap.Int("bytes", len(data)))
	return nil
}

func (s *FileStore) readJSON(rel string, v any) error {
	full := filepath.Join(s.baseDir, rel)
	if err := s.checkPath(full); err != nil {
		return err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("reading %s: %w", rel, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", rel, err)
	}
	return nil
}

// checkPath rejects relative paths that escape the base directory.
func (s *FileStore) checkPath(full string) error {
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes output directory")
	}
	return nil
}
