// Package samples persists enrollment face crops grouped by identity.
package samples

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"faceattend/internal/face"
	"faceattend/internal/logger"
	"faceattend/internal/recognition"
)

// Archive receives a copy of every saved crop. Failures never fail a save.
type Archive interface {
	Archive(ctx context.Context, identityID int, name string, data []byte) error
}

// FS stores crops as PNG files under root/<identity id>/.
type FS struct {
	root    string
	archive Archive
	log     *zap.Logger
}

// NewFS returns a store rooted at dir, creating it if needed.
func NewFS(dir string, log *zap.Logger) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create faces dir: %w", err)
	}
	return &FS{root: dir, log: logger.OrNop(log)}, nil
}

// WithArchive mirrors every saved crop to a.
func (s *FS) WithArchive(a Archive) *FS {
	s.archive = a
	return s
}

// Root returns the base directory.
func (s *FS) Root() string { return s.root }

// Save writes crop under the identity's directory and returns its path.
func (s *FS) Save(ctx context.Context, identityID int, crop *image.Gray) (string, error) {
	if identityID <= 0 {
		return "", fmt.Errorf("invalid identity id %d", identityID)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}
	dir := filepath.Join(s.root, strconv.Itoa(identityID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create sample dir: %w", err)
	}
	name := uuid.NewString() + ".png"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write sample: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.Archive(ctx, identityID, name, buf.Bytes()); err != nil {
			s.log.Warn("archive sample failed", zap.Int("identity_id", identityID), zap.Error(err))
		}
	}
	return path, nil
}

// Count returns how many samples exist for an identity.
func (s *FS) Count(identityID int) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, strconv.Itoa(identityID)))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && isImage(e.Name()) {
			n++
		}
	}
	return n, nil
}

// All loads every stored crop labeled with its identity id. Directories that
// are not identity ids and files that fail to decode are skipped.
func (s *FS) All(ctx context.Context) ([]recognition.Sample, error) {
	dirs, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read faces dir: %w", err)
	}

	var out []recognition.Sample
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		id, err := strconv.Atoi(d.Name())
		if err != nil || id <= 0 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("read samples for %d: %w", id, err)
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if f.IsDir() || !isImage(f.Name()) {
				continue
			}
			path := filepath.Join(s.root, d.Name(), f.Name())
			img, err := readImage(path)
			if err != nil {
				s.log.Warn("skip unreadable sample", zap.String("path", path), zap.Error(err))
				continue
			}
			out = append(out, recognition.Sample{Label: id, Image: face.ToGray(img)})
		}
	}
	return out, nil
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
