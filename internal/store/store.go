// Package store persists the users and history collections as one snapshot.
// Callers load the whole snapshot and replace it wholesale; Store serializes
// every read-modify-write cycle.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCorrupt marks persisted state that cannot be decoded.
var ErrCorrupt = errors.New("store corrupt")

// UserRecord is a persisted identity.
type UserRecord struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Encoding  []float64 `json:"encoding"`
	CreatedAt string    `json:"created_at"`
}

// HistoryRecord is a persisted attendance event.
type HistoryRecord struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Snapshot is the full persisted state.
type Snapshot struct {
	Users   []UserRecord    `json:"users"`
	History []HistoryRecord `json:"history"`
}

func (s *Snapshot) normalize() {
	if s.Users == nil {
		s.Users = []UserRecord{}
	}
	if s.History == nil {
		s.History = []HistoryRecord{}
	}
	for i := range s.Users {
		if s.Users[i].Encoding == nil {
			s.Users[i].Encoding = []float64{}
		}
	}
}

// Backend loads and atomically replaces snapshots.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Replace(ctx context.Context, snap Snapshot) error
	Close() error
}

// Store guards a Backend with an exclusive lock.
type Store struct {
	mu      sync.Mutex
	backend Backend
}

// New wraps backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// View returns the current snapshot.
func (s *Store) View(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.backend.Load(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	snap.normalize()
	return snap, nil
}

// Update runs fn on the current snapshot and persists the result. Nothing is
// written when fn returns an error or reports no change.
func (s *Store) Update(ctx context.Context, fn func(*Snapshot) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	snap.normalize()
	changed, err := fn(&snap)
	if err != nil || !changed {
		return err
	}
	if err := s.backend.Replace(ctx, snap); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// legacyTimestamp is the layout of data.json files written before RFC 3339.
const legacyTimestamp = "2006-01-02 15:04:05.999999"

// FormatTime renders t for persistence.
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ParseTime reads a persisted time. Legacy zone-less values are local time.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(legacyTimestamp, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrCorrupt, s)
	}
	return t, nil
}
