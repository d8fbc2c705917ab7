package meta

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mediaprep/internal/faults"
	"mediaprep/internal/fileutil"
	"mediaprep/internal/logging"
)

const sidecarExt = ".json"

// Store reads and writes sidecars under one directory.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewStore creates dir if needed. Failing to create it is a storage error.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "meta", "create root", dir, err)
	}
	return &Store{
		dir:     dir,
		logger:  logging.NewComponentLogger(logger, "meta"),
		records: make(map[string]*Record),
		now:     time.Now,
	}, nil
}

// Dir returns the sidecar directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the sidecar path for name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+sidecarExt)
}

// Load reads the sidecar for name, replacing any cached record. A missing or
// corrupt sidecar yields an empty record; Load never fails.
func (s *Store) Load(name string) *Record {
	rec := newRecord(name)
	path := s.Path(name)
	loadedAt := s.now()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, rec); jsonErr != nil {
			s.logger.Error("unable to load meta; starting from an empty record",
				logging.String(logging.FieldItem, name),
				logging.String("path", path),
				logging.Error(jsonErr),
				logging.String(logging.FieldEventType, "meta_corrupt"),
				logging.String(logging.FieldErrorHint, "inspect or delete the sidecar"),
			)
			rec = newRecord(name)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		s.logger.Error("unable to read meta; starting from an empty record",
			logging.String(logging.FieldItem, name),
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "meta_unreadable"),
		)
	}
	rec.Name = name
	rec.arm(loadedAt)

	s.mu.Lock()
	s.records[name] = rec
	s.mu.Unlock()
	return rec
}

// Get returns the cached record for name.
func (s *Store) Get(name string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	return rec, ok
}

// Save writes rec when it changed since load. It refuses with ErrConflict
// when the sidecar on disk was modified after the record was loaded; the
// in-memory changes are then dropped by the caller.
func (s *Store) Save(rec *Record) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("meta save: record has no name")
	}
	if !rec.Changed() {
		return nil
	}

	path := s.Path(rec.Name)
	if info, err := os.Stat(path); err == nil && info.ModTime().After(rec.loadedAt) {
		logging.WarnWithContext(s.logger, "refusing to save meta; sidecar updated by another writer", "meta_conflict",
			logging.String(logging.FieldItem, rec.Name),
			logging.String("path", path),
			logging.String("modified", info.ModTime().Format(time.RFC3339Nano)),
			logging.String("loaded", rec.loadedAt.Format(time.RFC3339Nano)),
			logging.String(logging.FieldErrorHint, "re-run to pick up the external change"),
			logging.String(logging.FieldImpact, "changes from this run are discarded"),
		)
		return faults.Wrap(faults.ErrConflict, "meta", "save", rec.Name, nil)
	}

	data, err := rec.encode()
	if err != nil {
		return fmt.Errorf("meta save %s: encode: %w", rec.Name, err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return faults.Wrap(faults.ErrStorage, "meta", "save", rec.Name, err)
	}

	armAt := s.now()
	if info, err := os.Stat(path); err == nil && info.ModTime().After(armAt) {
		armAt = info.ModTime()
	}
	rec.arm(armAt)
	s.logger.Debug("meta saved", logging.String(logging.FieldItem, rec.Name))
	return nil
}

// Names lists every item with a sidecar on disk, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "meta", "list", s.dir, err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, sidecarExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, sidecarExt))
	}
	sort.Strings(names)
	return names, nil
}

// Unmatched returns sidecar paths whose item has not been loaded into the
// store, i.e. items that no longer appear in the source scan.
func (s *Store) Unmatched() ([]string, error) {
	names, err := s.Names()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var orphans []string
	for _, name := range names {
		if _, ok := s.records[name]; !ok {
			orphans = append(orphans, s.Path(name))
		}
	}
	return orphans, nil
}
