// Package notify delivers reminder messages to their destinations.
//
// Delivery is best-effort: the scheduling contract is "attempt once at the
// right time", so failures are reported to the caller for logging but are
// never retried here.
package notify

import "context"

// Dispatcher sends a message to an opaque destination.
type Dispatcher interface {
	Send(ctx context.Context, destination, text string) error
}

// Func adapts a plain function to a Dispatcher.
type Func func(ctx context.Context, destination, text string) error

func (f Func) Send(ctx context.Context, destination, text string) error {
	return f(ctx, destination, text)
}

// Message renders the user-facing reminder line.
func Message(text string) string {
	return "⏰ Reminder: " + text
}
