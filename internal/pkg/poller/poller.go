package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/findmy-relay/internal/pkg/findapi"
	"github.com/jake-scott/findmy-relay/internal/pkg/geo"
	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
	"github.com/jake-scott/findmy-relay/internal/pkg/metrics"
	"github.com/jake-scott/findmy-relay/internal/pkg/retry"
	"github.com/jake-scott/findmy-relay/internal/pkg/webhook"
)

// DefaultPause is the wait between poll cycles
const DefaultPause = time.Minute * 5

type DeviceLister interface {
	Devices(ctx context.Context) ([]findapi.Device, error)
}

type LocationFetcher interface {
	Fetch(ctx context.Context, dev findapi.Device) (*findapi.Reading, int, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, p geo.Point) []webhook.Outcome
}

type state int

const (
	stateAcquiringSession state = iota
	stateListingDevices
	stateFetchingLocation
	stateEvaluating
	stateDispatching
	stateSleeping
)

var stateNames = []string{
	"ACQUIRING_SESSION",
	"LISTING_DEVICES",
	"FETCHING_LOCATION",
	"EVALUATING",
	"DISPATCHING",
	"SLEEPING",
}

func (s state) String() string {
	if int(s) >= len(stateNames) || s < 0 {
		return fmt.Sprintf("unknown (%d)", s)
	}

	return stateNames[s]
}

// Poller runs the fetch, filter, dispatch, sleep cycle.  One cycle always
// finishes before the next starts.
type Poller struct {
	devices    DeviceLister
	fetcher    LocationFetcher
	detector   *geo.ChangeDetector
	dispatcher Dispatcher
	selector   string
	pause      time.Duration
	sleep      retry.Sleeper
	metrics    *metrics.Metrics
}

func New(devices DeviceLister, fetcher LocationFetcher, detector *geo.ChangeDetector,
	dispatcher Dispatcher, selector string, m *metrics.Metrics) *Poller {

	return &Poller{
		devices:    devices,
		fetcher:    fetcher,
		detector:   detector,
		dispatcher: dispatcher,
		selector:   selector,
		pause:      DefaultPause,
		sleep:      retry.Sleep,
		metrics:    m,
	}
}

func (p *Poller) WithPause(d time.Duration) *Poller {
	np := *p
	np.pause = d
	return &np
}

func (p *Poller) WithSleeper(s retry.Sleeper) *Poller {
	np := *p
	np.sleep = s
	return &np
}

func (p *Poller) enter(ctx context.Context, s state) {
	logging.Logger(ctx).Debugf("poll-loop: %s", s)
}

// Run polls until ctx is done, which returns nil, or until the provider
// rejects the credentials, which returns the error
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				logging.Logger(nil).Info("poll-loop: shutting down")
				return nil
			}

			return err
		}

		p.enter(ctx, stateSleeping)
		logging.Logger(nil).Infof("sleeping %s", p.pause)
		if err := p.sleep(ctx, p.pause); err != nil {
			logging.Logger(nil).Info("poll-loop: shutting down")
			return nil
		}
	}
}

// RunOnce runs a single poll cycle.  Per-device problems are logged and
// swallowed; only cancellation and fatal session errors are returned.
func (p *Poller) RunOnce(ctx context.Context) error {
	ctx = logging.NewTxn(ctx)

	p.enter(ctx, stateAcquiringSession)
	devices, err := p.devices.Devices(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.metrics.PollCycles.WithLabelValues(metrics.CycleFailed).Inc()
		}
		return errors.Wrap(err, "listing devices")
	}

	p.enter(ctx, stateListingDevices)
	matched := 0
	for _, dev := range devices {
		if !strings.Contains(dev.Name(), p.selector) {
			logging.Logger(ctx).Debugf("Skipping %s", dev.Name())
			continue
		}

		matched++
		logging.Logger(ctx).Debugf("querying %s", dev.Name())

		result, err := p.pollDevice(ctx, dev)
		if err != nil {
			return err
		}
		p.metrics.PollCycles.WithLabelValues(result).Inc()
	}

	if matched == 0 {
		logging.Logger(ctx).Debugf("no device matches %q (%d devices)", p.selector, len(devices))
		p.metrics.PollCycles.WithLabelValues(metrics.CycleNoDevice).Inc()
	}

	return nil
}

func (p *Poller) pollDevice(ctx context.Context, dev findapi.Device) (string, error) {
	p.enter(ctx, stateFetchingLocation)
	reading, attempts, err := p.fetcher.Fetch(ctx, dev)
	if err != nil {
		return "", err
	}

	if reading == nil {
		logging.Logger(ctx).Infof("could not determine location of %s after %d iterations", dev.Name(), attempts)
		return metrics.CycleNoReading, nil
	}

	p.enter(ctx, stateEvaluating)
	loc := geo.Point{Lat: reading.Latitude, Lng: reading.Longitude}
	moved := p.detector.DistanceFromLast(loc)

	if !p.detector.IsSignificant(loc) {
		p.metrics.LocationChanges.WithLabelValues("false").Inc()
		logging.Logger(ctx).Infof("location did not change (moved %.1fm). not updating.", moved)
		return metrics.CycleUnchanged, nil
	}
	p.metrics.LocationChanges.WithLabelValues("true").Inc()

	p.enter(ctx, stateDispatching)
	outcomes := p.dispatcher.Dispatch(ctx, loc)

	results := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, fmt.Sprintf("%s: %s", o.Sink, o))
	}

	logging.Logger(ctx).Infof("found new location (%s - %d it.) for %s. webhook result: %s",
		loc, attempts, dev.Name(), strings.Join(results, ", "))

	return metrics.CycleDispatched, nil
}
