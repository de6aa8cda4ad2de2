package retry

import (
	"context"
	"time"
)

// sleep waits for d or until ctx is done. Tests replace it.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, returns a non-retriable error, or the
// policy's retries are exhausted. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	return DoWithNotify(ctx, p, fn, nil)
}

// DoWithNotify is Do with a callback invoked before each retry.
func DoWithNotify(
	ctx context.Context,
	p Policy,
	fn func(ctx context.Context) error,
	notify func(retry int, delay time.Duration, err error),
) error {
	for retryCount := 0; ; retryCount++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetriableError(err) || !p.ShouldRetry(retryCount) {
			return err
		}
		delay := p.CalculateDelay(retryCount)
		if notify != nil {
			notify(retryCount+1, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
}
