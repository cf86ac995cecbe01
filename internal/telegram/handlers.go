package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gretchen/internal/clock"
	"gretchen/internal/scheduler"
	"gretchen/internal/storage"
	"gretchen/internal/timeparse"
	"gretchen/pkg/logx"
)

// listLimit caps /reminders output so one chat cannot blow past Telegram's
// message size limit.
const listLimit = 50

// Handlers implements the bot commands and the /setreminder conversation.
// Replies are returned as HTML strings; the transport layer decides how to
// deliver them.
type Handlers struct {
	core  *scheduler.Core
	store storage.Store
	clk   clock.Clock
	log   logx.Logger
	flows *flowStore

	mu        sync.RWMutex
	defaultTZ string
}

func NewHandlers(core *scheduler.Core, store storage.Store, clk clock.Clock, log logx.Logger, defaultTZ string) *Handlers {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	return &Handlers{
		core:      core,
		store:     store,
		clk:       clk,
		log:       log,
		flows:     newFlowStore(),
		defaultTZ: defaultTZ,
	}
}

// SetDefaultTimezone swaps the fallback zone for users without a stored
// preference. Called on config reload.
func (h *Handlers) SetDefaultTimezone(tz string) {
	if _, err := time.LoadLocation(tz); err != nil {
		h.log.Warn("ignoring invalid default timezone", logx.String("timezone", tz), logx.Err(err))
		return
	}
	h.mu.Lock()
	h.defaultTZ = tz
	h.mu.Unlock()
}

// timezoneFor resolves the effective zone for a destination: stored
// preference first, configured default otherwise.
func (h *Handlers) timezoneFor(ctx context.Context, destination string) string {
	tz, ok, err := h.store.GetUserTimezone(ctx, destination)
	if err != nil {
		h.log.Warn("timezone lookup failed", logx.String("destination", destination), logx.Err(err))
	}
	if ok && tz != "" {
		return tz
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.defaultTZ
}

func (h *Handlers) Start(ctx context.Context, destination string) string {
	tz := h.timezoneFor(ctx, destination)
	return "Hi! I can remind you about things.\n" +
		"Use /setreminder to create one, or /help to see everything I know.\n" +
		fmt.Sprintf("Your timezone is <b>%s</b>.", escape(tz))
}

func (h *Handlers) Help() string {
	return strings.Join([]string{
		"<b>Commands</b>",
		"/setreminder - create a reminder (I will ask for time, then text)",
		"/reminders - list your reminders",
		"/deletereminder <code>id</code> - cancel a reminder",
		"/timezone <code>Area/City</code> - show or change your timezone",
		"/cancel - abort the current conversation",
		"",
		"Time formats: <code>in 10m</code>, <code>in 2h</code>, <code>in 1d</code>, <code>at 18:30</code>, <code>tomorrow 09:00</code>, <code>2025-08-26 18:30</code>, <code>Aug 26 18:30</code>.",
	}, "\n")
}

// Timezone shows the current zone when called bare, or stores a new one.
func (h *Handlers) Timezone(ctx context.Context, destination string, args []string) string {
	if len(args) == 0 {
		tz := h.timezoneFor(ctx, destination)
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Sprintf("Your timezone is <b>%s</b>, but I cannot load it. Set a new one with /timezone <code>Area/City</code>.", escape(tz))
		}
		now := h.clk.Now().In(loc)
		return fmt.Sprintf("Your timezone is <b>%s</b>. Local time there is %s.\nChange it with /timezone <code>Area/City</code>.",
			escape(tz), now.Format("15:04, Mon 2 Jan"))
	}

	tz := strings.TrimSpace(args[0])
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Sprintf("I don't know the timezone <b>%s</b>. Use an IANA name like <code>Europe/Berlin</code>.", escape(tz))
	}
	if err := h.store.SetUserTimezone(ctx, destination, tz); err != nil {
		h.log.Error("failed to store timezone", logx.String("destination", destination), logx.Err(err))
		return "Something went wrong saving that. Please try again."
	}
	now := h.clk.Now().In(loc)
	return fmt.Sprintf("Timezone set to <b>%s</b>. Local time there is %s.", escape(tz), now.Format("15:04, Mon 2 Jan"))
}

// ListReminders renders the destination's reminders, scheduled first by due
// time, then completed ones newest first, capped at listLimit.
func (h *Handlers) ListReminders(ctx context.Context, destination string) string {
	all, err := h.store.ListAll(ctx)
	if err != nil {
		h.log.Error("list reminders failed", logx.String("destination", destination), logx.Err(err))
		return "Something went wrong reading your reminders. Please try again."
	}

	var mine []storage.Reminder
	for _, r := range all {
		if r.Destination == destination {
			mine = append(mine, r)
		}
	}
	if len(mine) == 0 {
		return "You have no reminders. Create one with /setreminder."
	}

	sort.Slice(mine, func(i, j int) bool {
		a, b := mine[i], mine[j]
		if a.Status != b.Status {
			return a.Status == storage.StatusScheduled
		}
		if a.Status == storage.StatusScheduled {
			return a.DueAt.Before(b.DueAt)
		}
		return a.DueAt.After(b.DueAt)
	})

	truncated := false
	if len(mine) > listLimit {
		mine = mine[:listLimit]
		truncated = true
	}

	tz := h.timezoneFor(ctx, destination)
	var sb strings.Builder
	sb.WriteString("<b>Your reminders</b>\n")
	for _, r := range mine {
		sb.WriteString(formatReminder(r, tz))
		sb.WriteByte('\n')
	}
	if truncated {
		fmt.Fprintf(&sb, "(showing first %d)\n", listLimit)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// DeleteReminder cancels by id. Only the owning destination may cancel.
func (h *Handlers) DeleteReminder(ctx context.Context, destination string, args []string) string {
	if len(args) == 0 {
		return "Usage: /deletereminder <code>id</code>. Find ids with /reminders."
	}
	id := strings.TrimSpace(args[0])

	r, err := h.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("No reminder with id <code>%s</code>.", escape(id))
	}
	if err != nil {
		h.log.Error("delete lookup failed", logx.String("id", id), logx.Err(err))
		return "Something went wrong. Please try again."
	}
	if r.Destination != destination {
		// Do not leak other chats' reminder ids.
		return fmt.Sprintf("No reminder with id <code>%s</code>.", escape(id))
	}

	existed, err := h.core.Cancel(ctx, id)
	if err != nil {
		h.log.Error("cancel failed", logx.String("id", id), logx.Err(err))
		return "Something went wrong. Please try again."
	}
	if !existed {
		return fmt.Sprintf("No reminder with id <code>%s</code>.", escape(id))
	}
	return fmt.Sprintf("Reminder <code>%s</code> cancelled.", escape(id))
}

// BeginSetReminder opens (or restarts) the conversation for a destination.
func (h *Handlers) BeginSetReminder(destination string) string {
	h.flows.begin(destination)
	return "When should I remind you?\n" +
		"E.g. <code>in 10m</code>, <code>at 18:30</code>, <code>tomorrow 09:00</code>, or <code>2025-08-26 18:30</code>.\n" +
		"Send /cancel to abort."
}

// CancelFlow aborts the pending conversation, if any.
func (h *Handlers) CancelFlow(destination string) string {
	if h.flows.clear(destination) {
		return "Okay, cancelled."
	}
	return "Nothing to cancel."
}

// Text advances the conversation for destination. The second return reports
// whether the message was consumed; plain chatter outside a conversation is
// left alone.
func (h *Handlers) Text(ctx context.Context, destination, text string) (string, bool) {
	d, ok := h.flows.get(destination)
	if !ok {
		return "", false
	}

	switch d.state {
	case stateAwaitingTime:
		tz := h.timezoneFor(ctx, destination)
		res, err := timeparse.Parse(text, tz, h.clk.Now())
		if err != nil {
			return "I couldn't understand that time. Try <code>in 10m</code>, <code>at 18:30</code>, or <code>tomorrow 09:00</code>.", true
		}
		h.flows.setAwaitingText(destination, res.DueAt, res.Source, tz)
		return fmt.Sprintf("Got it: %s.\nWhat should the reminder say?", escape(formatDue(res.DueAt, tz))), true

	case stateAwaitingText:
		text = strings.TrimSpace(text)
		if text == "" {
			return "The reminder text cannot be empty. What should it say?", true
		}
		id, err := h.core.Schedule(ctx, destination, text, d.dueAt, d.tz)
		if errors.Is(err, scheduler.ErrPastDue) {
			h.flows.begin(destination)
			return "That time has already passed. When should I remind you?", true
		}
		if err != nil {
			h.log.Error("schedule failed", logx.String("destination", destination), logx.Err(err))
			h.flows.clear(destination)
			return "Something went wrong creating the reminder. Please try /setreminder again.", true
		}
		h.flows.clear(destination)
		return fmt.Sprintf("Done! I will remind you at %s.\nId <code>%s</code>; cancel with /deletereminder <code>%s</code>.",
			escape(formatDue(d.dueAt, d.tz)), escape(id), escape(id)), true
	}

	return "", false
}
