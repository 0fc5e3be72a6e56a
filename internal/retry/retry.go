package retry

import (
	"context"
	"time"

	wbfretry "github.com/wb-go/wbf/retry"
)

var DefaultStrategy = wbfretry.Strategy{
	Attempts: 3,
	Delay:    500 * time.Millisecond,
	Backoff:  2.0,
}

// FetchStrategy is used for page and image downloads.
var FetchStrategy = wbfretry.Strategy{
	Attempts: 2,
	Delay:    time.Second,
	Backoff:  2.0,
}

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Do calls fn until it succeeds, returns a *Permanent error, the attempts
// are exhausted or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, strategy wbfretry.Strategy, fn func() error) error {
	attempts := strategy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := strategy.Delay

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if p, ok := err.(*Permanent); ok {
			return p.Err
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if strategy.Backoff > 1 {
			delay = time.Duration(float64(delay) * strategy.Backoff)
		}
	}
	return err
}
