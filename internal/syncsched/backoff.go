package syncsched

import (
	"context"
	"math"
	"time"
)

// maxBackoff caps exponential backoff at 30 seconds (§4.8).
const maxBackoff = 30 * time.Second

// Gate decides whether a task at retries is allowed another attempt
// against maxSyncErrors. ok is false once the retry budget is exhausted
// ("the gate breaks"); the caller must then run the protocol's Terminal
// path instead of another attempt.
func Gate(retries, maxSyncErrors uint32) (ok bool) {
	return retries < maxSyncErrors
}

// backoffDuration computes min(30, 2^(retries-1)) seconds, the delay
// before the (retries+1)th attempt. retries == 0 means no prior attempt
// failed, so there is nothing to wait for.
func backoffDuration(retries uint32) time.Duration {
	if retries == 0 {
		return 0
	}
	seconds := math.Pow(2, float64(retries-1))
	d := time.Duration(seconds * float64(time.Second))
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleepBackoff blocks for backoffDuration(retries), interruptible by
// ctx cancellation so shutdown never waits out a pending retry (§4.8:
// "this sleep happens inside the per-timeline worker... so it does not
// block other timelines").
func sleepBackoff(ctx context.Context, retries uint32) error {
	d := backoffDuration(retries)
	if d == 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
