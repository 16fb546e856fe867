package samples

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchive struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (a *recordingArchive) Archive(_ context.Context, identityID int, _ string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, identityID)
	return a.err
}

func crop(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func TestSaveAndAll(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(filepath.Join(t.TempDir(), "faces"), nil)
	require.NoError(t, err)

	_, err = s.Save(ctx, 1, crop(4, 4, 10))
	require.NoError(t, err)
	_, err = s.Save(ctx, 1, crop(6, 5, 20))
	require.NoError(t, err)
	path, err := s.Save(ctx, 2, crop(3, 3, 30))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "2"), filepath.Dir(path))

	n, err := s.Count(1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	labels := map[int]int{}
	for _, smp := range all {
		labels[smp.Label]++
	}
	assert.Equal(t, map[int]int{1: 2, 2: 1}, labels)
}

func TestAllSkipsForeignEntries(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFS(root, nil)
	require.NoError(t, err)

	_, err = s.Save(ctx, 5, crop(2, 2, 1))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tmp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tmp", "x.png"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "5", "broken.jpg"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "5", "notes.txt"), []byte("hi"), 0o644))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 5, all[0].Label)
	assert.Equal(t, image.Rect(0, 0, 2, 2), all[0].Image.Bounds())
}

func TestCountMissingIdentity(t *testing.T) {
	s, err := NewFS(t.TempDir(), nil)
	require.NoError(t, err)

	n, err := s.Count(42)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveRejectsInvalidIdentity(t *testing.T) {
	s, err := NewFS(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), 0, crop(2, 2, 1))
	assert.Error(t, err)
}

func TestArchiveFailureDoesNotFailSave(t *testing.T) {
	archive := &recordingArchive{err: errors.New("offline")}
	s, err := NewFS(t.TempDir(), nil)
	require.NoError(t, err)
	s.WithArchive(archive)

	_, err = s.Save(context.Background(), 3, crop(2, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, []int{3}, archive.calls)
}
