// Package scheduler turns persisted reminders into delivered notifications.
//
// Core arms one one-shot timer per scheduled reminder, recovers pending
// timers from the store on startup, and reconciles cancellation against
// in-flight fires using the store's status field as the single source of
// truth. Disarming a timer is best-effort; correctness never depends on it.
package scheduler
