// Package statefile persists engine state as JSON documents with
// atomic write-temp-then-rename semantics and a prior-version backup.
package statefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	tmpSuffix    = ".tmp"
	backupSuffix = ".bak"
)

// Store reads and writes named JSON documents under one state directory.
// Writes go to a temp file first, the previous version becomes the .bak
// file, then the temp file is renamed into place.
type Store struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates the state directory if needed and returns a store over it.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %q: %w", dir, err)
	}

	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the root state directory.
func (s *Store) Dir() string { return s.dir }

// Save atomically persists v as <name>.json, keeping the previous
// version as <name>.json.bak.
func (s *Store) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	final := s.path(name)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}

	tmp := final + tmpSuffix
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file for %s: %w", name, err)
	}

	if _, err := os.Stat(final); err == nil {
		if err := os.Rename(final, final+backupSuffix); err != nil {
			return fmt.Errorf("backup previous %s: %w", name, err)
		}
	}

	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}

	return nil
}

// WriteText atomically persists a rendered text document as
// <name>.txt beside the JSON state.
func (s *Store) WriteText(name string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := filepath.Join(s.dir, filepath.FromSlash(name)+".txt")
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}

	tmp := final + tmpSuffix
	if err := os.WriteFile(tmp, []byte(text), 0o600); err != nil {
		return fmt.Errorf("write temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}

	return nil
}

// ReadText reads a text document written with WriteText.
func (s *Store) ReadText(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(name)+".txt"))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}

	return string(data), nil
}

// Load reads <name>.json into v. A document that fails to parse falls
// back to the .bak version so one torn write never loses the state.
func (s *Store) Load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := s.path(name)

	var jsonErr error

	data, err := os.ReadFile(final)
	if err == nil {
		jsonErr = json.Unmarshal(data, v)
		if jsonErr == nil {
			return nil
		}
		s.logger.Warn("state-file-corrupt-trying-backup",
			zap.String("name", name),
			zap.Error(jsonErr))
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", name, err)
	}

	backup, bakErr := os.ReadFile(final + backupSuffix)
	if bakErr != nil {
		if os.IsNotExist(err) && os.IsNotExist(bakErr) {
			return os.ErrNotExist
		}
		if jsonErr != nil {
			return fmt.Errorf("parse %s (no usable backup): %w", name, jsonErr)
		}

		return fmt.Errorf("read %s (and backup): %w", name, err)
	}

	if err := json.Unmarshal(backup, v); err != nil {
		return fmt.Errorf("parse backup of %s: %w", name, err)
	}

	s.logger.Warn("state-file-restored-from-backup", zap.String("name", name))

	return nil
}

// LoadOr reads <name>.json into v, reporting false when no version of
// the document exists yet.
func (s *Store) LoadOr(name string, v any) (bool, error) {
	err := s.Load(name, v)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// List returns the document names under prefix, newest first by name
// (report files embed sortable timestamps).
func (s *Store) List(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, filepath.FromSlash(prefix))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasSuffix(n, ".json") {
			continue
		}
		names = append(names, prefix+"/"+strings.TrimSuffix(n, ".json"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	return names, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name)+".json")
}
