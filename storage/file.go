package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// File keeps every key in one JSON document on disk. Writes go to a temp file
// that is renamed over the original, so a crash never leaves a torn document.
type File struct {
	path   string
	values map[string]string
	mu     sync.Mutex
}

var _ KV = (*File)(nil)

// NewFile opens (or creates) the document at path.
func NewFile(path string) (*File, error) {
	f := &File{
		path:   path,
		values: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, errors.Wrap(err, "storage.NewFile ReadFile")
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f.values); err != nil {
			return nil, errors.Wrapf(err, "storage.NewFile decode %s", path)
		}
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous, had := f.values[key]
	f.values[key] = value
	if err := f.flush(); err != nil {
		if had {
			f.values[key] = previous
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := f.values[k]; ok {
			removed[k] = v
			delete(f.values, k)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := f.flush(); err != nil {
		for k, v := range removed {
			f.values[k] = v
		}
		return err
	}
	return nil
}

// flush must be called with f.mu held.
func (f *File) flush() error {
	raw, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "storage.File marshal")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "storage.File MkdirAll")
	}

	tmp, err := os.CreateTemp(dir, ".kv-*")
	if err != nil {
		return errors.Wrap(err, "storage.File CreateTemp")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "storage.File Write")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "storage.File Chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "storage.File Close")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.Wrap(err, "storage.File Rename")
	}
	return nil
}
