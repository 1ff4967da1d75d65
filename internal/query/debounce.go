package query

import (
	"context"
	"time"
)

// Debounce forwards the last value of every burst on in once wait has passed
// without a new value. The final pending value is flushed when in closes.
func Debounce[T any](ctx context.Context, in <-chan T, wait time.Duration) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		var (
			last    T
			pending bool
			timer   *time.Timer
			fire    <-chan time.Time
		)
		emit := func() bool {
			select {
			case out <- last:
				pending = false
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case v, ok := <-in:
				if !ok {
					if pending {
						emit()
					}
					return
				}
				last, pending = v, true
				if timer == nil {
					timer = time.NewTimer(wait)
				} else {
					timer.Reset(wait)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if !emit() {
					return
				}
			}
		}
	}()
	return out
}
