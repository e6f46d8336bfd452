// Package stabilizer provides completion detection for files that are
// still being written into the watch directory.
package stabilizer

import (
	"context"
	"errors"
	"os"
	"time"
)

// ErrStabilizeTimeout is returned when the file does not reach a stable,
// non-empty size within the configured timeout.
var ErrStabilizeTimeout = errors.New("stabilize timeout: file did not stop growing in time")

// Waiter polls a file's size until it stops changing. Writers such as
// browsers and copy tools produce files incrementally; handing a
// partially-written file downstream corrupts audio extraction.
type Waiter struct {
	// Interval is the duration between size samples.
	Interval time.Duration

	// Timeout is the maximum duration to wait for stability.
	// If zero, only the caller's context bounds the wait.
	Timeout time.Duration
}

// NewWaiter creates a polling completion waiter.
func NewWaiter(interval, timeout time.Duration) *Waiter {
	return &Waiter{
		Interval: interval,
		Timeout:  timeout,
	}
}

// WaitStable blocks until two consecutive size samples are equal and
// strictly greater than zero. At least one full interval elapses before
// stability can be declared, so a file created fully-written still costs
// one poll cycle.
//
// Returns ErrStabilizeTimeout if the timeout expires first, or the stat
// error if the path disappears while waiting (another actor moved or
// deleted it).
func (w *Waiter) WaitStable(ctx context.Context, path string) error {
	usingInternalTimeout := false
	if w.Timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, w.Timeout)
			defer cancel()
			usingInternalTimeout = true
		}
	}

	var lastSize int64 = -1

	for {
		select {
		case <-ctx.Done():
			if usingInternalTimeout && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrStabilizeTimeout
			}
			return ctx.Err()
		case <-time.After(w.Interval):
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		currentSize := info.Size()
		if currentSize == lastSize && currentSize > 0 {
			return nil
		}
		lastSize = currentSize
	}
}
