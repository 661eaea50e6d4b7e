package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nfrund/hostscript/internal/storage"
	"github.com/spf13/afero"
)

// Entries is the persisted form of the hook table: hook id to field map.
type Entries map[string]map[string]string

// Storage persists the hook table.
type Storage interface {
	Get(ctx context.Context) (Entries, error)
	Set(ctx context.Context, entries Entries) error
	Clear(ctx context.Context) error
}

// FileStorage keeps the hook table as one JSON document.
type FileStorage struct {
	store storage.Store
	path  string
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage stores the table at path on fs.
func NewFileStorage(fs afero.Fs, path string) *FileStorage {
	return &FileStorage{store: storage.NewAferoStore(fs), path: path}
}

// Get returns the stored table, or an empty one when nothing was saved yet.
func (s *FileStorage) Get(ctx context.Context) (Entries, error) {
	r, err := s.store.Get(ctx, s.path)
	if errors.Is(err, storage.ErrNotFound) {
		return Entries{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries := Entries{}
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode hook table %s: %w", s.path, err)
	}
	return entries, nil
}

// Set replaces the stored table.
func (s *FileStorage) Set(ctx context.Context, entries Entries) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	_, err = s.store.Save(ctx, s.path, bytes.NewReader(data))
	return err
}

// Clear removes the stored table.
func (s *FileStorage) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, s.path)
}
