// Package store persists the record log.
//
// A [Store] owns a single append-only file. Appends are synced to storage
// before they are reported successful, so the echo path never observes a
// record that could be lost on a crash. The file is created fresh when the
// store opens and removed when the daemon shuts down.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/echolog/echologd/internal/paths"
)

var ErrStore = errors.New("store error")

// An append-only record log backed by a single file.
//
// The mutex serializes appends against full-content reads so an echo always
// observes a prefix-complete log, independent of how the caller schedules
// connections.
type Store struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// Creates the record log at path, replacing any file left over from a
// previous run.
func Open(path string) (*Store, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, paths.DefaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	return &Store{path: path, file: file}, nil
}

// Path of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Appends p to the end of the log and syncs it to storage.
func (s *Store) Append(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("%w: store is closed", ErrStore)
	}
	if _, err := s.file.Write(p); err != nil {
		return fmt.Errorf("%w: append: %w", ErrStore, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrStore, err)
	}
	return nil
}

// Current size of the log in bytes.
func (s *Store) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, fmt.Errorf("%w: store is closed", ErrStore)
	}
	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat: %w", ErrStore, err)
	}
	return info.Size(), nil
}

// Streams the entire current log content into w.
//
// Reads through a section reader so the append position is untouched.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeTo(w)
}

// Returns the entire current log content.
func (s *Store) ReadAll() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if _, err := s.writeTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) writeTo(w io.Writer) (int64, error) {
	if s.file == nil {
		return 0, fmt.Errorf("%w: store is closed", ErrStore)
	}

	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat: %w", ErrStore, err)
	}

	n, err := io.Copy(w, io.NewSectionReader(s.file, 0, info.Size()))
	if err != nil {
		return n, fmt.Errorf("%w: read: %w", ErrStore, err)
	}
	return n, nil
}

// Closes the backing file. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("%w: close: %w", ErrStore, err)
	}
	return nil
}

// Closes the backing file and deletes it from disk.
func (s *Store) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove: %w", ErrStore, err)
	}
	return nil
}
