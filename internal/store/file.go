package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFile keeps the snapshot in a single indented JSON document.
type JSONFile struct {
	path string
}

// NewJSONFile opens path, creating an empty document if it does not exist.
func NewJSONFile(path string) (*JSONFile, error) {
	f := &JSONFile{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := f.Replace(context.Background(), Snapshot{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return f, nil
}

// Load implements Backend.
func (f *JSONFile) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return snap, nil
}

// Replace implements Backend by writing a temp file and renaming it over the
// document.
func (f *JSONFile) Replace(_ context.Context, snap Snapshot) error {
	snap.normalize()
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Close implements Backend.
func (f *JSONFile) Close() error { return nil }
