package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gretchen/internal/clock"
	"gretchen/internal/storage"
	"gretchen/pkg/logx"
)

type sent struct {
	destination string
	text        string
}

// recorder is a Dispatcher that records every delivery.
type recorder struct {
	mu   sync.Mutex
	msgs []sent
	fail error
}

func (r *recorder) Send(ctx context.Context, destination, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{destination: destination, text: text})
	return r.fail
}

func (r *recorder) sent() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.msgs...)
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestCore(t *testing.T) (*Core, *clock.Fake, *recorder, storage.Store) {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.NewFake(t0)
	rec := &recorder{}
	core := New(st, rec, clk, logx.Nop(), Config{})
	t.Cleanup(core.Stop)
	return core, clk, rec, st
}

func TestScheduleFiresOnce(t *testing.T) {
	t.Parallel()
	core, clk, rec, st := newTestCore(t)
	ctx := context.Background()

	id, err := core.Schedule(ctx, "100", "stretch and drink water", t0.Add(5*time.Second), "UTC")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	clk.Advance(4 * time.Second)
	if got := rec.sent(); len(got) != 0 {
		t.Fatalf("delivered early: %v", got)
	}

	clk.Advance(1 * time.Second)
	got := rec.sent()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(got))
	}
	if got[0].destination != "100" || got[0].text != "⏰ Reminder: stretch and drink water" {
		t.Fatalf("unexpected delivery: %+v", got[0])
	}

	r, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != storage.StatusDone {
		t.Fatalf("status = %s, want done", r.Status)
	}

	// Nothing else fires later.
	clk.Advance(time.Hour)
	if got := rec.sent(); len(got) != 1 {
		t.Fatalf("reminder fired again: %d deliveries", len(got))
	}
}

func TestSchedulePastDueRejected(t *testing.T) {
	t.Parallel()
	core, _, _, _ := newTestCore(t)
	if _, err := core.Schedule(context.Background(), "100", "late", t0.Add(-time.Second), "UTC"); !errors.Is(err, ErrPastDue) {
		t.Fatalf("want ErrPastDue, got %v", err)
	}
	if _, err := core.Schedule(context.Background(), "100", "now", t0, "UTC"); !errors.Is(err, ErrPastDue) {
		t.Fatalf("due == now: want ErrPastDue, got %v", err)
	}
}

func TestScheduleBadTimezone(t *testing.T) {
	t.Parallel()
	core, _, _, _ := newTestCore(t)
	if _, err := core.Schedule(context.Background(), "100", "x", t0.Add(time.Minute), "Mars/Olympus"); !errors.Is(err, ErrBadTimezone) {
		t.Fatalf("want ErrBadTimezone, got %v", err)
	}
}

func TestCancelBeforeFire(t *testing.T) {
	t.Parallel()
	core, clk, rec, _ := newTestCore(t)
	ctx := context.Background()

	first, err := core.Schedule(ctx, "100", "first", t0.Add(5*time.Second), "UTC")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := core.Schedule(ctx, "100", "second", t0.Add(10*time.Second), "UTC"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	clk.Advance(2 * time.Second)
	existed, err := core.Cancel(ctx, first)
	if err != nil || !existed {
		t.Fatalf("Cancel: existed=%v err=%v", existed, err)
	}

	clk.Advance(9 * time.Second)
	got := rec.sent()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(got))
	}
	if got[0].text != "⏰ Reminder: second" {
		t.Fatalf("wrong reminder delivered: %q", got[0].text)
	}
}

func TestCancelWithinOneTickOfFire(t *testing.T) {
	t.Parallel()
	core, clk, rec, _ := newTestCore(t)
	ctx := context.Background()

	id, err := core.Schedule(ctx, "100", "close call", t0.Add(5*time.Second), "UTC")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	clk.Advance(4 * time.Second)
	if _, err := core.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	clk.Advance(2 * time.Second)

	if got := rec.sent(); len(got) != 0 {
		t.Fatalf("cancelled reminder delivered: %v", got)
	}
}

func TestCancelAfterFireIsNoOp(t *testing.T) {
	t.Parallel()
	core, clk, rec, _ := newTestCore(t)
	ctx := context.Background()

	id, err := core.Schedule(ctx, "100", "done already", t0.Add(time.Second), "UTC")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	clk.Advance(time.Second)
	if got := rec.sent(); len(got) != 1 {
		t.Fatalf("expected delivery, got %d", len(got))
	}

	// The record still exists (done); cancelling it afterwards must not error.
	existed, err := core.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel after fire: %v", err)
	}
	if !existed {
		t.Fatal("Cancel after fire should still find the done record")
	}
	if got := rec.sent(); len(got) != 1 {
		t.Fatalf("delivery count changed after cancel: %d", len(got))
	}
}

func TestCancelUnknownID(t *testing.T) {
	t.Parallel()
	core, _, _, _ := newTestCore(t)
	existed, err := core.Cancel(context.Background(), "nope1234")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if existed {
		t.Fatal("Cancel reported an absent id as existing")
	}
}

func TestScheduleThenRecoverDeliversExactlyOnce(t *testing.T) {
	t.Parallel()
	core, clk, rec, _ := newTestCore(t)
	ctx := context.Background()

	if _, err := core.Schedule(ctx, "100", "only once", t0.Add(5*time.Second), "UTC"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Recover with the timer already live must not double-arm.
	st, err := core.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if st.Armed != 0 || st.Missed != 0 {
		t.Fatalf("Recover stats = %+v, want zero", st)
	}

	clk.Advance(6 * time.Second)
	if got := rec.sent(); len(got) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(got))
	}
}

func TestRecoverArmsPersistedReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	st, err := storage.Open(ctx, storage.Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	// Seed as a previous process would have left it.
	seed := storage.Reminder{
		ID:          "restored",
		Destination: "42",
		Text:        "after restart",
		DueAt:       t0.Add(30 * time.Second),
		Timezone:    "UTC",
		Status:      storage.StatusScheduled,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
	if err := st.Add(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	clk := clock.NewFake(t0)
	rec := &recorder{}
	core := New(st, rec, clk, logx.Nop(), Config{})
	defer core.Stop()

	stats, err := core.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if stats.Armed != 1 {
		t.Fatalf("Armed = %d, want 1", stats.Armed)
	}

	clk.Advance(31 * time.Second)
	got := rec.sent()
	if len(got) != 1 || got[0].text != "⏰ Reminder: after restart" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestRecoverMarksMissedWithoutDelivering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := storage.Open(ctx, storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	seed := storage.Reminder{
		ID:          "missed01",
		Destination: "42",
		Text:        "too late",
		DueAt:       t0.Add(-time.Hour),
		Timezone:    "UTC",
		Status:      storage.StatusScheduled,
		CreatedAt:   t0.Add(-2 * time.Hour),
		UpdatedAt:   t0.Add(-2 * time.Hour),
	}
	if err := st.Add(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	clk := clock.NewFake(t0)
	rec := &recorder{}
	core := New(st, rec, clk, logx.Nop(), Config{})
	defer core.Stop()

	stats, err := core.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if stats.Missed != 1 || stats.Armed != 0 {
		t.Fatalf("stats = %+v, want Missed=1 Armed=0", stats)
	}
	if got := rec.sent(); len(got) != 0 {
		t.Fatalf("missed reminder was delivered: %v", got)
	}
	r, err := st.Get(ctx, "missed01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != storage.StatusDone {
		t.Fatalf("status = %s, want done", r.Status)
	}
}

func TestDeliveryFailureStillMarksDone(t *testing.T) {
	t.Parallel()
	core, clk, rec, st := newTestCore(t)
	ctx := context.Background()
	rec.fail = errors.New("network down")

	id, err := core.Schedule(ctx, "100", "flaky", t0.Add(time.Second), "UTC")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	clk.Advance(time.Second)

	if got := rec.sent(); len(got) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(got))
	}
	r, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != storage.StatusDone {
		t.Fatalf("status = %s, want done despite delivery failure", r.Status)
	}
}

func TestArmedCountAndStop(t *testing.T) {
	t.Parallel()
	core, clk, rec, _ := newTestCore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := core.Schedule(ctx, "100", "n", t0.Add(time.Duration(i+1)*time.Minute), "UTC"); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	if got := core.Armed(); got != 3 {
		t.Fatalf("Armed = %d, want 3", got)
	}

	core.Stop()
	if got := core.Armed(); got != 0 {
		t.Fatalf("Armed after Stop = %d, want 0", got)
	}
	clk.Advance(time.Hour)
	if got := rec.sent(); len(got) != 0 {
		t.Fatalf("stopped timers delivered: %v", got)
	}
}
