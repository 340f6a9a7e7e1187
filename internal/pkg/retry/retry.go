package retry

import (
	"context"
	"time"
)

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper, backed by a timer so that shutdown does
// not have to wait out a long pause
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy describes how an operation is retried.
//
// MaxAttempts of zero retries forever.  Retryable decides whether an error
// is worth another attempt; a nil Retryable retries every error.  OnRetry
// is called before each sleep with the failed attempt number (from 1).
type Policy struct {
	Delay       time.Duration
	MaxAttempts int
	Retryable   func(err error) bool
	OnRetry     func(attempt int, err error)
	Sleep       Sleeper
}

// Forever returns a policy that never gives up on retryable errors
func Forever(delay time.Duration, retryable func(error) bool) Policy {
	return Policy{Delay: delay, Retryable: retryable}
}

// Times returns a policy that makes at most n attempts
func Times(n int, delay time.Duration) Policy {
	return Policy{Delay: delay, MaxAttempts: n}
}

func (p Policy) WithOnRetry(f func(attempt int, err error)) Policy {
	p.OnRetry = f
	return p
}

func (p Policy) WithSleeper(s Sleeper) Policy {
	p.Sleep = s
	return p
}

// Do runs op until it succeeds, fails with a non-retryable error, runs out
// of attempts or ctx is done.  It returns the number of attempts made and
// the last error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	attempt := 0
	for {
		attempt++

		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return attempt, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if serr := sleep(ctx, p.Delay); serr != nil {
			return attempt, serr
		}
	}
}
