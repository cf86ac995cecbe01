// Package logx wraps zerolog behind a small structured-logging API.
//
// It provides:
//   - a Logger value type whose zero value is a safe no-op
//   - a Service that owns the sinks (console, optional JSON file) and can
//     re-apply level/output changes at runtime without invalidating loggers
package logx
