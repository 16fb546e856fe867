// Package identity manages enrolled people. Identities are created once and
// never updated; ids are assigned as max(existing)+1.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"faceattend/internal/store"
)

// ErrNameRequired is returned when creating an identity without a name.
var ErrNameRequired = errors.New("name required")

// Identity is an enrolled person.
type Identity struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry reads and creates identities in the snapshot store.
type Registry struct {
	store *store.Store
	now   func() time.Time
}

// NewRegistry creates a registry backed by s.
func NewRegistry(s *store.Store) *Registry {
	return &Registry{store: s, now: time.Now}
}

// Create stores a new identity with the next free id.
func (r *Registry) Create(ctx context.Context, name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, ErrNameRequired
	}
	id := Identity{Name: name, CreatedAt: r.now()}
	err := r.store.Update(ctx, func(snap *store.Snapshot) (bool, error) {
		id.ID = nextID(snap.Users)
		snap.Users = append(snap.Users, store.UserRecord{
			ID:        id.ID,
			Name:      id.Name,
			Encoding:  []float64{},
			CreatedAt: store.FormatTime(id.CreatedAt),
		})
		return true, nil
	})
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

func nextID(users []store.UserRecord) int {
	highest := 0
	for _, u := range users {
		if u.ID > highest {
			highest = u.ID
		}
	}
	return highest + 1
}

// List returns every identity in creation order.
func (r *Registry) List(ctx context.Context) ([]Identity, error) {
	snap, err := r.store.View(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Identity, 0, len(snap.Users))
	for _, u := range snap.Users {
		out = append(out, fromRecord(u))
	}
	return out, nil
}

// Get looks an identity up by id.
func (r *Registry) Get(ctx context.Context, id int) (Identity, bool, error) {
	snap, err := r.store.View(ctx)
	if err != nil {
		return Identity{}, false, err
	}
	for _, u := range snap.Users {
		if u.ID == id {
			return fromRecord(u), true, nil
		}
	}
	return Identity{}, false, nil
}

// fromRecord tolerates unparseable creation times; they are informational.
func fromRecord(u store.UserRecord) Identity {
	created, _ := store.ParseTime(u.CreatedAt)
	return Identity{ID: u.ID, Name: u.Name, CreatedAt: created}
}
