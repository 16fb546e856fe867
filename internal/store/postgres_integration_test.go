//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := NewDB(ctx, fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	pg, err := NewPostgres(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	return pg
}

func TestPostgresReplaceAndLoad(t *testing.T) {
	pg := setupPostgres(t)
	s := New(pg)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(snap *Snapshot) (bool, error) {
		snap.Users = append(snap.Users,
			UserRecord{ID: 2, Name: "Bob", CreatedAt: "2026-01-01T00:00:00Z"},
			UserRecord{ID: 1, Name: "Alice", CreatedAt: "2026-01-01T00:00:01Z"})
		snap.History = append(snap.History,
			HistoryRecord{UserID: "2", Name: "Bob", Type: "in", Timestamp: "2026-01-01T08:00:00Z"},
			HistoryRecord{UserID: "1", Name: "Alice", Type: "in", Timestamp: "2026-01-01T08:01:00Z"})
		return true, nil
	}))

	snap, err := s.View(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Users, 2)
	assert.Equal(t, "Bob", snap.Users[0].Name, "insertion order is kept")
	require.Len(t, snap.History, 2)
	assert.Equal(t, "Alice", snap.History[1].Name)

	require.NoError(t, s.Update(ctx, func(snap *Snapshot) (bool, error) {
		snap.History = snap.History[:1]
		return true, nil
	}))
	snap, err = s.View(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.History, 1)
	assert.Len(t, snap.Users, 2)
}
