package attendance

import (
	"strconv"
	"time"

	"faceattend/internal/store"
)

// Event is a recorded attendance event.
type Event struct {
	IdentityID int       `json:"user_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}

func toRecord(e Event) store.HistoryRecord {
	return store.HistoryRecord{
		UserID:    strconv.Itoa(e.IdentityID),
		Name:      e.Name,
		Type:      e.Type,
		Timestamp: store.FormatTime(e.Timestamp),
	}
}

func fromRecord(r store.HistoryRecord) (Event, error) {
	ts, err := store.ParseTime(r.Timestamp)
	if err != nil {
		return Event{}, err
	}
	// Non-numeric legacy ids map to 0; Name still identifies the row.
	id, _ := strconv.Atoi(r.UserID)
	return Event{IdentityID: id, Name: r.Name, Type: r.Type, Timestamp: ts}, nil
}

// lastFor returns the most recently appended record for the identity.
func lastFor(history []store.HistoryRecord, identityID int) (store.HistoryRecord, bool) {
	key := strconv.Itoa(identityID)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].UserID == key {
			return history[i], true
		}
	}
	return store.HistoryRecord{}, false
}
