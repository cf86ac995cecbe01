// Package timeparse resolves the small fixed grammar of reminder times into
// absolute zone-aware instants.
//
// Supported:
//   - in 10m / in 2h / in 1d
//   - at 18:30 (today, or tomorrow if already past)
//   - tomorrow 09:00
//   - absolute dates, e.g. "2025-08-26 18:30" or "Aug 26 18:30"
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSpec is returned when the text matches no supported form or
// resolves to a non-future instant.
var ErrInvalidSpec = errors.New("timeparse: unrecognized or past time spec")

// Result is a resolved due time plus the human-readable form that produced
// it, for echoing back to the user.
type Result struct {
	DueAt  time.Time
	Source string
}

var (
	relativeRe = regexp.MustCompile(`^in\s+(\d+)\s*([dhm])$`)
	atRe       = regexp.MustCompile(`^at\s+(\d{1,2}):(\d{2})$`)
	tomorrowRe = regexp.MustCompile(`^tomorrow\s+(\d{1,2}):(\d{2})$`)
)

// absoluteLayouts are tried in order against free-form date strings,
// interpreted in the user's zone when the layout carries no offset.
var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"Jan 2 2006 15:04",
	"Jan 2 15:04",
	"Jan 2",
}

// Parse resolves text against now in the named IANA zone. The result is
// always strictly after now.
func Parse(text, tz string, now time.Time) (Result, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Result{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	now = now.In(loc)
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Result{}, ErrInvalidSpec
	}
	// Keyword forms are matched case-insensitively; absolute layouts parse
	// the original text because month names are case-sensitive.
	lower := strings.ToLower(raw)

	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		value, _ := strconv.Atoi(m[1])
		var delta time.Duration
		switch m[2] {
		case "m":
			delta = time.Duration(value) * time.Minute
		case "h":
			delta = time.Duration(value) * time.Hour
		case "d":
			delta = time.Duration(value) * 24 * time.Hour
		}
		if delta <= 0 {
			return Result{}, ErrInvalidSpec
		}
		return Result{DueAt: now.Add(delta), Source: fmt.Sprintf("in %d%s", value, m[2])}, nil
	}

	if m := atRe.FindStringSubmatch(lower); m != nil {
		hh, mm, err := clockFields(m[1], m[2])
		if err != nil {
			return Result{}, err
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, loc)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return Result{DueAt: candidate, Source: fmt.Sprintf("at %02d:%02d", hh, mm)}, nil
	}

	if m := tomorrowRe.FindStringSubmatch(lower); m != nil {
		hh, mm, err := clockFields(m[1], m[2])
		if err != nil {
			return Result{}, err
		}
		tomorrow := now.AddDate(0, 0, 1)
		candidate := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hh, mm, 0, 0, loc)
		return Result{DueAt: candidate, Source: fmt.Sprintf("tomorrow %02d:%02d", hh, mm)}, nil
	}

	for _, layout := range absoluteLayouts {
		dt, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		// Layouts without a year resolve to year 0; pull them into the
		// current year.
		if dt.Year() == 0 {
			dt = dt.AddDate(now.Year(), 0, 0)
		}
		if !dt.After(now) {
			return Result{}, ErrInvalidSpec
		}
		return Result{DueAt: dt, Source: raw}, nil
	}

	return Result{}, ErrInvalidSpec
}

func clockFields(hhRaw, mmRaw string) (int, int, error) {
	hh, _ := strconv.Atoi(hhRaw)
	mm, _ := strconv.Atoi(mmRaw)
	if hh > 23 || mm > 59 {
		return 0, 0, ErrInvalidSpec
	}
	return hh, mm, nil
}
