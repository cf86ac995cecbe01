package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gretchen/pkg/logx"
)

// fileStore persists reminders and user preferences as two JSON documents,
// each rewritten in full (tmp + fsync + rename) on every mutation. There is
// no append log; the files on disk are always a complete snapshot.
type fileStore struct {
	log logx.Logger

	mu            sync.Mutex
	remindersPath string
	usersPath     string
}

// reminderDoc is the on-disk shape. DueAt stays a string so records written
// without an offset (legacy naive timestamps) can be re-attached to their
// recorded zone on load.
type reminderDoc struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	DueAt       string    `json:"due_at"`
	Timezone    string    `json:"timezone"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type userDoc struct {
	Timezone  string    `json:"timezone"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := cfg.Path
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:           log,
		remindersPath: filepath.Join(dir, "reminders.json"),
		usersPath:     filepath.Join(dir, "users.json"),
	}

	if _, err := os.Stat(s.remindersPath); errors.Is(err, os.ErrNotExist) {
		if err := writeJSONAtomic(s.remindersPath, []reminderDoc{}); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(s.usersPath); errors.Is(err, os.ErrNotExist) {
		if err := writeJSONAtomic(s.usersPath, map[string]userDoc{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) ListAll(ctx context.Context) ([]Reminder, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *fileStore) Get(ctx context.Context, id string) (Reminder, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked()
	if err != nil {
		return Reminder{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return Reminder{}, ErrNotFound
}

func (s *fileStore) Add(ctx context.Context, r Reminder) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, existing := range all {
		if existing.ID == r.ID {
			return ErrDuplicateID
		}
	}
	all = append(all, r)
	return s.writeLocked(all)
}

func (s *fileStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		if all[i].Status == status {
			// Idempotent: same status is a no-op, UpdatedAt stays put.
			return nil
		}
		all[i].Status = status
		all[i].UpdatedAt = time.Now().UTC()
		return s.writeLocked(all)
	}
	return ErrNotFound
}

func (s *fileStore) Delete(ctx context.Context, id string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	kept := all[:0]
	for _, r := range all {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(all) {
		return false, nil
	}
	if err := s.writeLocked(kept); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) GetUserTimezone(ctx context.Context, destination string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.loadUsersLocked()
	if err != nil {
		return "", false, err
	}
	u, ok := users[destination]
	if !ok || u.Timezone == "" {
		return "", false, nil
	}
	return u.Timezone, true, nil
}

func (s *fileStore) SetUserTimezone(ctx context.Context, destination, tz string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.loadUsersLocked()
	if err != nil {
		return err
	}
	users[destination] = userDoc{Timezone: tz, UpdatedAt: time.Now().UTC()}
	return writeJSONAtomic(s.usersPath, users)
}

func (s *fileStore) loadLocked() ([]Reminder, error) {
	b, err := os.ReadFile(s.remindersPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var docs []reminderDoc
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.remindersPath, err)
	}
	out := make([]Reminder, 0, len(docs))
	for _, d := range docs {
		due, err := parseDueAt(d.DueAt, d.Timezone)
		if err != nil {
			s.log.Warn("skipping reminder with unparseable due_at",
				logx.String("id", d.ID), logx.String("due_at", d.DueAt), logx.Err(err))
			continue
		}
		out = append(out, Reminder{
			ID:          d.ID,
			Destination: d.Destination,
			Text:        d.Text,
			DueAt:       due,
			Timezone:    d.Timezone,
			Status:      d.Status,
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
		})
	}
	return out, nil
}

func (s *fileStore) writeLocked(all []Reminder) error {
	docs := make([]reminderDoc, 0, len(all))
	for _, r := range all {
		docs = append(docs, reminderDoc{
			ID:          r.ID,
			Destination: r.Destination,
			Text:        r.Text,
			DueAt:       r.DueAt.Format(time.RFC3339Nano),
			Timezone:    r.Timezone,
			Status:      r.Status,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return writeJSONAtomic(s.remindersPath, docs)
}

func (s *fileStore) loadUsersLocked() (map[string]userDoc, error) {
	b, err := os.ReadFile(s.usersPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]userDoc{}, nil
		}
		return nil, err
	}
	users := map[string]userDoc{}
	if err := json.Unmarshal(b, &users); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.usersPath, err)
	}
	return users, nil
}

// parseDueAt accepts RFC 3339 first and falls back to naive layouts
// interpreted in the record's own zone (UTC when the zone is unknown).
func parseDueAt(raw, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	naiveLayouts := []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported due_at format %q", raw)
}

// writeJSONAtomic rewrites path in full: encode to a sibling temp file,
// fsync, then rename over the original.
func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
