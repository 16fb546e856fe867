package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/store"
)

func newRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	backend, err := store.NewJSONFile(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	s := store.New(backend)
	r := NewRegistry(s)
	r.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	return r, s
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	alice, err := r.Create(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.ID)

	bob, err := r.Create(ctx, "  Bob ")
	require.NoError(t, err)
	assert.Equal(t, 2, bob.ID)
	assert.Equal(t, "Bob", bob.Name)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].Name)
	assert.True(t, list[0].CreatedAt.Equal(alice.CreatedAt))
}

func TestCreateUsesMaxPlusOne(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(snap *store.Snapshot) (bool, error) {
		snap.Users = append(snap.Users, store.UserRecord{ID: 7, Name: "Legacy", CreatedAt: "2024-01-01 10:00:00.000001"})
		snap.Users = append(snap.Users, store.UserRecord{ID: 3, Name: "Older"})
		return true, nil
	}))

	id, err := r.Create(ctx, "Carol")
	require.NoError(t, err)
	assert.Equal(t, 8, id.ID)

	legacy, ok, err := r.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2024, legacy.CreatedAt.Year())
}

func TestCreateRequiresName(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := r.Create(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestGetUnknown(t *testing.T) {
	r, _ := newRegistry(t)
	_, ok, err := r.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
}
