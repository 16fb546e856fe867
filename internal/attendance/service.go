// Package attendance keeps the append-only attendance log with a
// per-identity cooldown.
package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/logger"
	"faceattend/internal/store"
)

// DefaultCooldown is the minimum spacing between two events of one identity.
const DefaultCooldown = 60 * time.Second

// Ledger is the debounced attendance log.
type Ledger struct {
	store    *store.Store
	cooldown time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewLedger creates a ledger; a non-positive cooldown uses DefaultCooldown.
func NewLedger(s *store.Store, cooldown time.Duration, log *zap.Logger) *Ledger {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Ledger{store: s, cooldown: cooldown, now: time.Now, log: logger.OrNop(log)}
}

// WithClock replaces the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// LogEvent appends an event unless the identity already has one within the
// cooldown. It reports whether the event was recorded.
func (l *Ledger) LogEvent(ctx context.Context, identityID int, name, eventType string) (bool, error) {
	var recorded bool
	err := l.store.Update(ctx, func(snap *store.Snapshot) (bool, error) {
		now := l.now()
		if last, ok := lastFor(snap.History, identityID); ok {
			lastAt, err := store.ParseTime(last.Timestamp)
			if err != nil {
				return false, err
			}
			if now.Sub(lastAt) < l.cooldown {
				l.log.Info("attendance suppressed",
					zap.Int("identity", identityID),
					zap.String("type", eventType),
					zap.Time("last", lastAt))
				return false, nil
			}
		}
		snap.History = append(snap.History, toRecord(Event{
			IdentityID: identityID,
			Name:       name,
			Type:       eventType,
			Timestamp:  now,
		}))
		recorded = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if recorded {
		l.log.Info("attendance recorded", zap.Int("identity", identityID), zap.String("type", eventType))
	}
	return recorded, nil
}

// LastEvent returns the most recent event of the identity.
func (l *Ledger) LastEvent(ctx context.Context, identityID int) (Event, bool, error) {
	snap, err := l.store.View(ctx)
	if err != nil {
		return Event{}, false, err
	}
	rec, ok := lastFor(snap.History, identityID)
	if !ok {
		return Event{}, false, nil
	}
	evt, err := fromRecord(rec)
	if err != nil {
		return Event{}, false, err
	}
	return evt, true, nil
}

// History returns the whole log in insertion order.
func (l *Ledger) History(ctx context.Context) ([]Event, error) {
	snap, err := l.store.View(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(snap.History))
	for _, rec := range snap.History {
		evt, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}
