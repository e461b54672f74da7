package encode

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotReady is returned by WaitReady when the sink stays busy past the backoff budget.
var ErrNotReady = errors.New("sink not ready")

// WaitReady blocks until sink reports ReadyForMoreData. Sinks implementing
// Notifier are woken by their signal; others are polled with exponential backoff.
// Either way the wait is bounded by b.MaxAttempts, and each failed attempt
// lasts at least its backoff delay.
func WaitReady(ctx context.Context, sink Sink, b Backoff) error {
	if b.Initial <= 0 {
		b = DefaultBackoff()
	}
	notifier, _ := sink.(Notifier)

	delay := b.Initial
	for attempt := 0; ; attempt++ {
		if sink.ReadyForMoreData() {
			return nil
		}
		if attempt >= b.MaxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrNotReady, attempt)
		}

		timer := time.NewTimer(delay)
		var signal <-chan struct{}
		if notifier != nil {
			signal = notifier.ReadyNotify()
		}
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-signal:
			if sink.ReadyForMoreData() {
				timer.Stop()
				return nil
			}
			// A signal that leaves the sink busy still costs the full delay.
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		case <-timer.C:
		}

		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}
