package filterlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/types"
)

// Store persists the raw filter-list text on disk.
type Store struct {
	path string
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored filter-list text.
// Returns types.ErrNoFilterList if nothing has been stored yet.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", types.ErrNoFilterList
	}
	if err != nil {
		return "", fmt.Errorf("failed to read filter list: %w", err)
	}
	if len(data) == 0 {
		return "", types.ErrNoFilterList
	}
	return string(data), nil
}

// Save replaces the stored filter-list text.
// The file is written to a temporary sibling and renamed so readers never see
// a partially written list.
func (s *Store) Save(raw string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create filter list directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".filterlist-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write filter list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close filter list: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace filter list: %w", err)
	}

	log.Info().
		Str("path", s.path).
		Int("bytes", len(raw)).
		Msg("Filter list rules stored")
	return nil
}

// Text is an in-memory filter list.
type Text string

// Load returns the text itself.
func (t Text) Load() (string, error) {
	return string(t), nil
}
