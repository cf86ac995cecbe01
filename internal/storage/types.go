package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an id or destination is absent from the store.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateID is returned by Add when the id already exists.
	ErrDuplicateID = errors.New("storage: duplicate id")
)

// Status is a reminder lifecycle state. Done is terminal.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusDone      Status = "done"
)

func (s Status) Valid() bool {
	return s == StatusScheduled || s == StatusDone
}

// Reminder is a single future one-shot notification request.
//
// DueAt always carries an explicit offset; Timezone records the IANA zone the
// owner used when creating it, for display and for re-attaching offsets to
// legacy records persisted without one.
type Reminder struct {
	ID          string    `json:"id" bson:"id"`
	Destination string    `json:"destination" bson:"destination"`
	Text        string    `json:"text" bson:"text"`
	DueAt       time.Time `json:"due_at" bson:"due_at"`
	Timezone    string    `json:"timezone" bson:"timezone"`
	Status      Status    `json:"status" bson:"status"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// UserPreference is the per-destination timezone override.
// One record per destination, last write wins.
type UserPreference struct {
	Destination string    `json:"destination" bson:"destination"`
	Timezone    string    `json:"timezone" bson:"timezone"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// Config configures storage.
//
// Driver values:
//   - "file":   two JSON documents rewritten in full on each mutation
//   - "sqlite": SQLite database file
//   - "mongo":  MongoDB collections with atomic update-by-id
type Config struct {
	Driver string
	Path   string // file: data directory; sqlite: database file

	MongoURI string
	MongoDB  string

	BusyTimeout time.Duration // sqlite only; 0 means default
}
