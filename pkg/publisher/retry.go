package publisher

import (
	"context"
	"time"

	"k8s.io/klog/v2"
)

const DefaultAttempts = 3

// DefaultDelays is the linear back-off between attempts.
var DefaultDelays = []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}

type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier runs an operation at most Attempts times, waiting Delays[i] before retry i+1.
type Retrier struct {
	Attempts int
	Delays   []time.Duration
	Sleep    SleepFunc
}

func NewRetrier() *Retrier {
	return &Retrier{Attempts: DefaultAttempts, Delays: DefaultDelays, Sleep: SleepContext}
}

func (r *Retrier) delay(i int) time.Duration {
	if len(r.Delays) == 0 {
		return 0
	}
	if i >= len(r.Delays) {
		return r.Delays[len(r.Delays)-1]
	}
	return r.Delays[i]
}

// Do returns nil on the first successful attempt, otherwise the last error.
// Cancellation of ctx is only observed between attempts.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < r.Attempts; attempt++ {
		if attempt > 0 {
			d := r.delay(attempt - 1)
			klog.V(2).InfoS("Retrying publish", "attempt", attempt+1, "delay", d, "err", err)
			if serr := r.Sleep(ctx, d); serr != nil {
				return err
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
	}
	return err
}
