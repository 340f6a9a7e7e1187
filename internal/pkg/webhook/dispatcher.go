package webhook

import (
	"context"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/korovkin/limiter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/findmy-relay/internal/pkg/geo"
	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
	"github.com/jake-scott/findmy-relay/internal/pkg/metrics"
	"github.com/jake-scott/findmy-relay/version"
)

const (
	DefaultTimeout     = time.Second * 10
	DefaultConcurrency = 4
)

// Dispatcher delivers accepted locations to every configured sink.  Sinks
// are independent: a failure on one is recorded and never stops delivery
// to the others.  Nothing is retried; the next poll supersedes a missed
// update.
type Dispatcher struct {
	sinks       []Sink
	client      *http.Client
	concurrency int
	metrics     *metrics.Metrics
}

func NewDispatcher(sinks []Sink, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		sinks:       sinks,
		client:      &http.Client{Timeout: DefaultTimeout},
		concurrency: DefaultConcurrency,
		metrics:     m,
	}
}

func (d *Dispatcher) WithTimeout(t time.Duration) *Dispatcher {
	nd := *d
	nd.client = &http.Client{Timeout: t, Transport: d.client.Transport}
	return &nd
}

func (d *Dispatcher) WithHTTPClient(c *http.Client) *Dispatcher {
	nd := *d
	nd.client = c
	return &nd
}

func (d *Dispatcher) WithConcurrency(n int) *Dispatcher {
	nd := *d
	nd.concurrency = n
	return &nd
}

func (d *Dispatcher) Sinks() []Sink {
	return d.sinks
}

// Dispatch posts p to every sink and returns one outcome per sink, in sink
// order.  It returns when all deliveries have finished.
func (d *Dispatcher) Dispatch(ctx context.Context, p geo.Point) []Outcome {
	outcomes := make([]Outcome, len(d.sinks))
	if len(d.sinks) == 0 {
		return outcomes
	}

	n := d.concurrency
	if n < 1 {
		n = 1
	}
	limit := limiter.NewConcurrencyLimiter(n)

	for i, sink := range d.sinks {
		i, sink := i, sink
		limit.ExecuteWithTicket(func(ticket int) {
			outcomes[i] = d.deliver(ctx, ticket, sink, p)
		})
	}

	limit.Wait()
	return outcomes
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (d *Dispatcher) deliver(ctx context.Context, ticket int, sink Sink, p geo.Point) Outcome {
	requestID := uuid.New().String()
	logger := logging.Logger(ctx).WithFields(logrus.Fields{
		"sink":      sink.String(),
		"requestid": requestID,
		"ticket":    ticket,
	})

	outcome := Outcome{Sink: sink}
	start := time.Now()

	req, err := sink.NewRequest(ctx, p)
	if err != nil {
		outcome.Kind = NetworkError
		outcome.Message = err.Error()
		d.record(logger, outcome)
		return outcome
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", version.UserAgent())

	logger.Debugf("posting %s", req.URL)

	resp, err := d.client.Do(req)
	outcome.Duration = time.Since(start)
	if err != nil {
		if isTimeout(err) {
			outcome.Kind = Timeout
		} else {
			outcome.Kind = NetworkError
		}
		outcome.Message = err.Error()
		d.record(logger, outcome)
		return outcome
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	if _, err := io.Copy(ioutil.Discard, io.LimitReader(resp.Body, 64*1024)); err != nil {
		logger.WithError(err).Debug("draining webhook response")
	}

	outcome.Kind = Delivered
	outcome.StatusCode = resp.StatusCode
	outcome.Status = resp.Status
	d.record(logger, outcome)
	return outcome
}

func (d *Dispatcher) record(logger *logrus.Entry, o Outcome) {
	d.metrics.WebhookDeliveries.WithLabelValues(o.Sink.String(), o.Kind.String()).Inc()

	logger = logger.WithField("duration", o.Duration)
	switch {
	case o.OK():
		logger.Debugf("webhook result: %s", o)
	case o.Kind == Delivered:
		logger.Warnf("webhook result: %s", o)
	default:
		logger.Errorf("webhook result: %s", o)
	}
}
