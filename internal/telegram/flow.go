package telegram

import (
	"sync"
	"time"
)

// flowState tracks where a destination is in the /setreminder conversation.
type flowState int

const (
	stateAwaitingTime flowState = iota + 1
	stateAwaitingText
)

// draft is the single pending reminder draft for a destination. It is
// cleared on completion or /cancel.
type draft struct {
	state   flowState
	dueAt   time.Time
	whenSrc string
	tz      string
}

type flowStore struct {
	mu     sync.Mutex
	drafts map[string]*draft
}

func newFlowStore() *flowStore {
	return &flowStore{drafts: map[string]*draft{}}
}

// begin starts (or restarts) the conversation for a destination.
func (f *flowStore) begin(destination string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[destination] = &draft{state: stateAwaitingTime}
}

func (f *flowStore) get(destination string) (draft, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[destination]
	if !ok {
		return draft{}, false
	}
	return *d, true
}

func (f *flowStore) setAwaitingText(destination string, dueAt time.Time, whenSrc, tz string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[destination] = &draft{state: stateAwaitingText, dueAt: dueAt, whenSrc: whenSrc, tz: tz}
}

// clear ends the conversation, reporting whether one was active.
func (f *flowStore) clear(destination string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.drafts[destination]
	delete(f.drafts, destination)
	return ok
}
