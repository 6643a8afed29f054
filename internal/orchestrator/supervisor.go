package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// supervise runs fn under a cancelable context and races it against a timer.
// If the timer fires first, fn's context is canceled and ErrNetworkTimeout is
// returned; whatever fn returns afterwards is dropped.
func supervise[T any](ctx context.Context, clock clockwork.Clock, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	timer := clock.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("search panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-timer.Chan():
		cancel()
		var zero T
		return zero, ErrNetworkTimeout
	}
}
