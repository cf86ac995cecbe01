package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gretchen/internal/clock"
	"gretchen/internal/notify"
	"gretchen/internal/storage"
	"gretchen/pkg/logx"
)

// ErrPastDue is returned by Schedule for due times that are not strictly in
// the future.
var ErrPastDue = errors.New("scheduler: due time is not in the future")

// ErrBadTimezone is returned for timezone names the runtime cannot load.
var ErrBadTimezone = errors.New("scheduler: invalid timezone")

// Stats summarizes a Recover pass.
type Stats struct {
	// Armed counts reminders newly armed with a timer.
	Armed int
	// Missed counts reminders whose due time passed while no process was
	// running; they are marked done without delivering.
	Missed int
}

// Config tunes the core. Zero values get sensible defaults.
type Config struct {
	// SendTimeout bounds a single delivery attempt plus its surrounding
	// store reads.
	SendTimeout time.Duration
}

// Core owns the mapping from reminder id to armed timer.
//
// The store is the single source of truth for reminder status: timer handles
// are transient, best-effort, and reconstructible via Recover. Cancel removes
// the record before disarming, and the fire handler re-reads status before
// delivering, so cancel-then-fire never delivers and fire-then-cancel is a
// safe no-op.
type Core struct {
	store    storage.Store
	dispatch notify.Dispatcher
	clk      clock.Clock
	log      logx.Logger

	sendTimeout time.Duration

	mu     sync.Mutex
	timers map[string]clock.Timer
}

func New(store storage.Store, dispatch notify.Dispatcher, clk clock.Clock, log logx.Logger, cfg Config) *Core {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Core{
		store:       store,
		dispatch:    dispatch,
		clk:         clk,
		log:         log,
		sendTimeout: timeout,
		timers:      map[string]clock.Timer{},
	}
}

// Schedule persists a new reminder and arms a one-shot timer for it.
// The returned id identifies the reminder for Cancel and listing.
func (c *Core) Schedule(ctx context.Context, destination, text string, dueAt time.Time, tz string) (string, error) {
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadTimezone, tz)
	}
	if dueAt.IsZero() || !dueAt.After(c.clk.Now()) {
		return "", ErrPastDue
	}

	now := c.clk.Now().UTC()
	r := storage.Reminder{
		Destination: destination,
		Text:        text,
		DueAt:       dueAt,
		Timezone:    tz,
		Status:      storage.StatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// An id collision is practically unreachable, but regenerate rather than
	// silently overwrite if it ever happens.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		r.ID = newID()
		err = c.store.Add(ctx, r)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrDuplicateID) {
			return "", err
		}
	}
	if err != nil {
		return "", err
	}

	c.armIfAbsent(r)
	c.log.Info("reminder scheduled",
		logx.String("id", r.ID),
		logx.String("destination", destination),
		logx.Time("due_at", dueAt),
		logx.String("timezone", tz))
	return r.ID, nil
}

// Cancel deletes the reminder and disarms its timer, reporting whether a
// record existed. Safe to call concurrently with an in-flight fire: the
// store delete happens first, so a fire that has not yet re-read the record
// will find it gone and skip delivery.
func (c *Core) Cancel(ctx context.Context, id string) (bool, error) {
	existed, err := c.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()

	if existed {
		c.log.Info("reminder cancelled", logx.String("id", id))
	}
	return existed, nil
}

// Recover rebuilds timer state from the store. Overdue scheduled reminders
// are marked done without delivering and reported in Stats.Missed; future
// ones get a fresh timer unless one is already live, so repeated invocations
// are safe.
func (c *Core) Recover(ctx context.Context) (Stats, error) {
	all, err := c.store.ListAll(ctx)
	if err != nil {
		return Stats{}, err
	}

	now := c.clk.Now()
	var st Stats
	for _, r := range all {
		if r.Status != storage.StatusScheduled {
			continue
		}
		if !r.DueAt.After(now) {
			if err := c.store.UpdateStatus(ctx, r.ID, storage.StatusDone); err != nil && !errors.Is(err, storage.ErrNotFound) {
				c.log.Error("failed to resolve missed reminder", logx.String("id", r.ID), logx.Err(err))
				continue
			}
			st.Missed++
			continue
		}
		if c.armIfAbsent(r) {
			st.Armed++
		}
	}

	if st.Missed > 0 {
		c.log.Warn("missed reminders marked done without delivery", logx.Int("count", st.Missed))
	}
	c.log.Info("recovery complete", logx.Int("armed", st.Armed), logx.Int("missed", st.Missed))
	return st, nil
}

// Armed reports the number of live timers, for observability.
func (c *Core) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop disarms every live timer. Pending records stay in the store and are
// re-armed by the next Recover.
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// armIfAbsent arms a timer for r unless one is already live. Reports whether
// a new timer was armed.
func (c *Core) armIfAbsent(r storage.Reminder) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.timers[r.ID]; ok {
		return false
	}
	id := r.ID
	c.timers[id] = c.clk.AfterFunc(r.DueAt.Sub(c.clk.Now()), func() {
		c.fire(id)
	})
	return true
}

// fire runs on timer expiry. The store status read here is the tie-breaker
// against Cancel: any non-scheduled or absent record aborts delivery.
func (c *Core) fire(id string) {
	c.mu.Lock()
	delete(c.timers, id)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	r, err := c.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		c.log.Debug("reminder gone before fire; skipping", logx.String("id", id))
		return
	}
	if err != nil {
		c.log.Error("fire: store read failed", logx.String("id", id), logx.Err(err))
		return
	}
	if r.Status != storage.StatusScheduled {
		c.log.Debug("reminder no longer scheduled; skipping", logx.String("id", id), logx.String("status", string(r.Status)))
		return
	}

	if err := c.dispatch.Send(ctx, r.Destination, notify.Message(r.Text)); err != nil {
		// Best-effort delivery: log and fall through to mark done.
		c.log.Error("reminder delivery failed", logx.String("id", id), logx.String("destination", r.Destination), logx.Err(err))
	}

	if err := c.store.UpdateStatus(ctx, id, storage.StatusDone); err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.log.Error("fire: status update failed", logx.String("id", id), logx.Err(err))
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
