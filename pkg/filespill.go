// Package pkg holds helpers shared by the jgooze commands.
package pkg

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrSpillClosed is returned when appending to a spill that was closed.
var ErrSpillClosed = errors.New("spill is closed")

// FileSpill is an append-only log of gob-encoded values on disk. Test runs
// append the result of every mutant as soon as a worker finishes it and read
// them back once all workers are done, so results never pile up in memory.
type FileSpill[T any] interface {
	// Len is the number of values appended so far.
	Len() uint64
	Path() string
	// Append writes one value. It is safe for concurrent use.
	Append(item T) error
	// Range decodes the values in append order and stops at the first
	// error returned by fn.
	Range(fn func(index uint64, item T) error) error
	// Collect returns every value in append order.
	Collect() ([]T, error)
	Close() error
	// Remove closes the spill and deletes its file.
	Remove() error
}

type gobSpill[T any] struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	enc    *gob.Encoder
	count  uint64
	closed bool
}

// NewFileSpill creates an empty spill file under dir, or under the system
// temp directory when dir is empty.
func NewFileSpill[T any](dir string) (FileSpill[T], error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "jgooze-spill")
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		slog.Error("Failed to create spill directory", "path", dir, "error", err)
		return nil, fmt.Errorf("failed to create spill directory: %w", err)
	}

	file, err := os.CreateTemp(dir, "results-*.gob")
	if err != nil {
		slog.Error("Failed to create spill file", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}

	slog.Debug("Created result spill", "path", file.Name())

	return &gobSpill[T]{path: file.Name(), file: file, enc: gob.NewEncoder(file)}, nil
}

func (s *gobSpill[T]) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

func (s *gobSpill[T]) Path() string {
	return s.path
}

func (s *gobSpill[T]) Append(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("failed to append to %s: %w", s.path, ErrSpillClosed)
	}

	if err := s.enc.Encode(item); err != nil {
		slog.Error("Failed to append to spill", "path", s.path, "index", s.count, "error", err)
		return fmt.Errorf("failed to append value %d to %s: %w", s.count, s.path, err)
	}

	s.count++

	return nil
}

func (s *gobSpill[T]) Range(fn func(index uint64, item T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open spill %s: %w", s.path, err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("Failed to close spill reader", "path", s.path, "error", err)
		}
	}()

	dec := gob.NewDecoder(file)

	for i := range s.count {
		// gob skips zero fields, so every value decodes into a fresh T.
		var item T
		if err := dec.Decode(&item); err != nil {
			slog.Error("Failed to read spill", "path", s.path, "index", i, "error", err)
			return fmt.Errorf("failed to read value %d of %s: %w", i, s.path, err)
		}

		if err := fn(i, item); err != nil {
			return err
		}
	}

	return nil
}

func (s *gobSpill[T]) Collect() ([]T, error) {
	items := make([]T, 0, s.Len())

	err := s.Range(func(_ uint64, item T) error {
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (s *gobSpill[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close spill %s: %w", s.path, err)
	}

	slog.Debug("Closed result spill", "path", s.path, "count", s.count)

	return nil
}

func (s *gobSpill[T]) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove spill %s: %w", s.path, err)
	}

	return nil
}
