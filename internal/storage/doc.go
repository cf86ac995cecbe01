// Package storage persists reminders and per-destination preferences.
//
// Three interchangeable drivers sit behind the Store interface, selected by
// explicit configuration at construction time:
//   - file:   two JSON documents rewritten in full per mutation
//   - sqlite: single database file (modernc.org/sqlite)
//   - mongo:  one collection per entity with atomic update-by-id
//
// The store is the single source of truth for reminder status; the scheduler
// holds only transient timer handles that are reconstructible from here.
package storage
