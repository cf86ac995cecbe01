package storage

import (
	"context"
	"errors"
	"strings"

	"gretchen/pkg/logx"
)

// Store is the durable reminder persistence API.
//
// Every mutating call is synchronously durable before it returns, and
// implementations serialize access so same-process callers observe
// read-after-write.
//
// Absent ids surface as ErrNotFound consistently across drivers.
type Store interface {
	// ListAll returns a full snapshot in no particular order.
	ListAll(ctx context.Context) ([]Reminder, error)
	// Get returns the reminder with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Reminder, error)
	// Add inserts a new reminder. Returns ErrDuplicateID if the id exists.
	Add(ctx context.Context, r Reminder) error
	// UpdateStatus sets the status and bumps UpdatedAt. It is idempotent:
	// setting the status a record already has is a no-op that does not touch
	// UpdatedAt. Returns ErrNotFound for absent ids.
	UpdateStatus(ctx context.Context, id string, status Status) error
	// Delete removes the record, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	GetUserTimezone(ctx context.Context, destination string) (string, bool, error)
	SetUserTimezone(ctx context.Context, destination, tz string) error

	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "mongo", "mongodb":
		return openMongo(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
