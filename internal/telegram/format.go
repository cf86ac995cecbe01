package telegram

import (
	"fmt"
	"html"
	"time"

	"gretchen/internal/storage"
)

func escape(s string) string {
	return html.EscapeString(s)
}

// formatDue renders an instant in the user's zone, with the zone name so
// the user can spot a wrong preference immediately.
func formatDue(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
		tz = "UTC"
	}
	return t.In(loc).Format("Mon, 2 Jan 2006 15:04") + " (" + tz + ")"
}

func formatReminder(r storage.Reminder, fallbackTZ string) string {
	tz := r.Timezone
	if tz == "" {
		tz = fallbackTZ
	}
	marker := "🟢"
	if r.Status == storage.StatusDone {
		marker = "✅"
	}
	return fmt.Sprintf("%s <code>%s</code> %s\n    %s", marker, escape(r.ID), escape(formatDue(r.DueAt, tz)), escape(r.Text))
}
