package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidName is returned for file names that would resolve outside the
// storage directory.
var ErrInvalidName = errors.New("invalid file name")

// Store appends lines to files kept in a single directory. All operations
// are serialized so concurrent appends never interleave.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New returns a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Exists reports whether name is a regular file in the storage directory.
func (s *Store) Exists(name string) bool {
	p, err := s.path(name)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Append writes line followed by a newline at the end of name, creating the
// file if it does not exist.
func (s *Store) Append(name, line string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", name, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("could not append to %s: %w", name, err)
	}
	return f.Close()
}

// Create makes an empty file if name does not exist yet.
func (s *Store) Create(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", name, err)
	}
	return f.Close()
}

// Lines returns the lines of name without their trailing newlines.
func (s *Store) Lines(name string) ([]string, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// TruncateAll empties every regular file in the storage directory. It is a
// startup step; it must not run while replicas are exchanging writes.
func (s *Store) TruncateAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("could not list %s: %w", s.dir, err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Truncate(filepath.Join(s.dir, e.Name()), 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("could not truncate %s: %w", e.Name(), err)
		}
	}
	return nil
}
