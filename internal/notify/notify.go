// Package notify delivers operational summaries to alerting sinks.
package notify

import (
	"context"
	"errors"
	"log"
)

// Notifier is the alerting sink contract. Delivery is best-effort; callers
// log failures and move on.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Noop discards all notifications.
type Noop struct{}

// Send implements Notifier.
func (Noop) Send(ctx context.Context, text string) error { return nil }

// Multi fans one notification out to several sinks. Per-sink failures are
// joined so a broken sink never hides a working one.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, text); err != nil {
			log.Printf("notify: sink failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
