package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"gretchen/internal/clock"
	"gretchen/internal/storage"
	"gretchen/pkg/logx"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Send(ctx context.Context, destination, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, destination+"|"+text)
	return nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func seedStore(t *testing.T, reminders ...storage.Reminder) storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	for _, r := range reminders {
		if err := st.Add(context.Background(), r); err != nil {
			t.Fatalf("seed %s: %v", r.ID, err)
		}
	}
	return st
}

func reminder(id string, due time.Time, status storage.Status) storage.Reminder {
	return storage.Reminder{
		ID:          id,
		Destination: "7",
		Text:        "sweep " + id,
		DueAt:       due,
		Timezone:    "UTC",
		Status:      status,
		CreatedAt:   t0.Add(-time.Hour),
		UpdatedAt:   t0.Add(-time.Hour),
	}
}

func TestProcessDueDeliversOverdueOnly(t *testing.T) {
	t.Parallel()
	st := seedStore(t,
		reminder("overdue1", t0.Add(-time.Minute), storage.StatusScheduled),
		reminder("overdue2", t0, storage.StatusScheduled),
		reminder("future01", t0.Add(time.Minute), storage.StatusScheduled),
		reminder("done0001", t0.Add(-time.Hour), storage.StatusDone),
	)

	rec := &recorder{}
	p := New(st, rec, clock.NewFake(t0), logx.Nop())

	n, err := p.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if n != 2 {
		t.Fatalf("notified = %d, want 2", n)
	}
	if got := rec.all(); len(got) != 2 {
		t.Fatalf("deliveries = %v", got)
	}

	for _, id := range []string{"overdue1", "overdue2"} {
		r, err := st.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if r.Status != storage.StatusDone {
			t.Fatalf("%s status = %s, want done", id, r.Status)
		}
	}
	r, err := st.Get(context.Background(), "future01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != storage.StatusScheduled {
		t.Fatalf("future reminder mutated: %s", r.Status)
	}
}

func TestProcessDueSecondSweepIsEmpty(t *testing.T) {
	t.Parallel()
	st := seedStore(t, reminder("once0001", t0.Add(-time.Second), storage.StatusScheduled))

	rec := &recorder{}
	p := New(st, rec, clock.NewFake(t0), logx.Nop())

	if n, err := p.ProcessDue(context.Background()); err != nil || n != 1 {
		t.Fatalf("first sweep: n=%d err=%v", n, err)
	}
	if n, err := p.ProcessDue(context.Background()); err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
	if got := rec.all(); len(got) != 1 {
		t.Fatalf("deliveries = %v, want exactly 1", got)
	}
}

func TestProcessDueConcurrentSweepsDeliverOnce(t *testing.T) {
	t.Parallel()
	st := seedStore(t, reminder("racy0001", t0.Add(-time.Second), storage.StatusScheduled))

	rec := &recorder{}
	p := New(st, rec, clock.NewFake(t0), logx.Nop())

	var wg sync.WaitGroup
	total := 0
	var totalMu sync.Mutex
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := p.ProcessDue(context.Background())
			if err != nil {
				t.Errorf("ProcessDue: %v", err)
				return
			}
			totalMu.Lock()
			total += n
			totalMu.Unlock()
		}()
	}
	wg.Wait()

	if total != 1 {
		t.Fatalf("total notified across sweeps = %d, want 1", total)
	}
	if got := rec.all(); len(got) != 1 {
		t.Fatalf("deliveries = %v, want exactly 1", got)
	}
}
