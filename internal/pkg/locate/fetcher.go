package locate

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/findmy-relay/internal/pkg/findapi"
	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
	"github.com/jake-scott/findmy-relay/internal/pkg/metrics"
	"github.com/jake-scott/findmy-relay/internal/pkg/retry"
)

const (
	// DefaultAttempts is the total number of location queries per fetch
	DefaultAttempts = 6

	// DefaultDelay is the pause between location queries
	DefaultDelay = time.Second * 10
)

var errNotFinished = errors.New("location not finished")

// Fetcher queries a device until the provider reports a finished fix, or
// gives up after a fixed number of attempts and hands back whatever it got.
type Fetcher struct {
	attempts int
	delay    time.Duration
	sleep    retry.Sleeper
	metrics  *metrics.Metrics
}

func NewFetcher(m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		sleep:    retry.Sleep,
		metrics:  m,
	}
}

func (f *Fetcher) WithAttempts(n int) *Fetcher {
	nf := *f
	nf.attempts = n
	return &nf
}

func (f *Fetcher) WithDelay(d time.Duration) *Fetcher {
	nf := *f
	nf.delay = d
	return &nf
}

func (f *Fetcher) WithSleeper(s retry.Sleeper) *Fetcher {
	nf := *f
	nf.sleep = s
	return &nf
}

// Fetch returns the last reading obtained from dev and the number of
// queries it took.  The reading may be stale or nil once the attempts run
// out; that is not an error.  The error is only set when ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, dev findapi.Device) (*findapi.Reading, int, error) {
	var last *findapi.Reading

	policy := retry.Times(f.attempts, f.delay).
		WithSleeper(f.sleep).
		WithOnRetry(func(attempt int, err error) {
			logging.Logger(ctx).Debugf("location of %s is not fresh (attempt %d), sleeping for additional %s", dev.Name(), attempt, f.delay)
		})

	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		reading, err := dev.Location(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			// keep the previous reading, a failed query tells us nothing new
			logging.Logger(ctx).WithError(err).Warnf("querying location of %s", dev.Name())
			return err
		}

		last = reading
		if reading == nil || !reading.Finished {
			return errNotFinished
		}

		return nil
	})

	if ctx.Err() != nil {
		return last, attempts, ctx.Err()
	}

	if err != nil && last != nil {
		logging.Logger(ctx).Infof("location of %s still not finished after %d attempts, using it anyway", dev.Name(), attempts)
	}

	f.metrics.LocationAttempts.Observe(float64(attempts))
	return last, attempts, nil
}
