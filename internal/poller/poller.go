// Package poller is the timer-less alternative to the scheduler core: a pure
// sweep over the store that delivers everything overdue. It suits
// deployments where an external trigger (cron, scheduled HTTP call) drives
// the process and no long-lived timers can be held.
package poller

import (
	"context"
	"errors"
	"sync"

	"gretchen/internal/clock"
	"gretchen/internal/notify"
	"gretchen/internal/storage"
	"gretchen/pkg/logx"
)

type Poller struct {
	store    storage.Store
	dispatch notify.Dispatcher
	clk      clock.Clock
	log      logx.Logger

	// mu serializes overlapping sweeps in-process. Across processes the
	// store's status field is the tie-breaker: a sweep that re-reads done
	// skips the record.
	mu sync.Mutex
}

func New(store storage.Store, dispatch notify.Dispatcher, clk clock.Clock, log logx.Logger) *Poller {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{store: store, dispatch: dispatch, clk: clk, log: log}
}

// ProcessDue delivers every scheduled reminder whose due time has passed and
// marks it done. It returns the number of reminders notified. Delivery
// failures count as notified (attempt-once semantics) and are logged.
func (p *Poller) ProcessDue(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all, err := p.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := p.clk.Now()
	count := 0
	for _, r := range all {
		if r.Status != storage.StatusScheduled || r.DueAt.After(now) {
			continue
		}

		// Re-read: a concurrent sweep may have resolved this id since the
		// snapshot was taken.
		cur, err := p.store.Get(ctx, r.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return count, err
		}
		if cur.Status != storage.StatusScheduled {
			continue
		}

		if err := p.dispatch.Send(ctx, cur.Destination, notify.Message(cur.Text)); err != nil {
			p.log.Error("sweep delivery failed",
				logx.String("id", cur.ID), logx.String("destination", cur.Destination), logx.Err(err))
		}
		if err := p.store.UpdateStatus(ctx, cur.ID, storage.StatusDone); err != nil && !errors.Is(err, storage.ErrNotFound) {
			p.log.Error("sweep status update failed", logx.String("id", cur.ID), logx.Err(err))
			continue
		}
		count++
	}

	if count > 0 {
		p.log.Info("sweep complete", logx.Int("notified", count))
	}
	return count, nil
}
