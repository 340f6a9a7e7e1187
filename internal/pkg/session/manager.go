package session

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
	// DefaultMaxAge is how long a session is trusted before we log in again
	DefaultMaxAge = time.Minute * 20

	// DefaultRetryDelay is the pause between connection attempts
	DefaultRetryDelay = time.Second * 10
)

// Manager owns the one provider session of the process.  It logs in again
// when the session is older than the max age or after a connection error,
// and keeps retrying connection failures until it succeeds.
//
// Manager is not safe for concurrent use.
type Manager struct {
	client     findapi.Client
	creds      findapi.Credentials
	maxAge     time.Duration
	retryDelay time.Duration
	now        func() time.Time
	sleep      retry.Sleeper
	metrics    *metrics.Metrics

	current     findapi.Session
	createdAt   time.Time
	invalidated bool
}

func NewManager(client findapi.Client, creds findapi.Credentials, m *metrics.Metrics) *Manager {
	return &Manager{
		client:     client,
		creds:      creds,
		maxAge:     DefaultMaxAge,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		sleep:      retry.Sleep,
		metrics:    m,
	}
}

func (m *Manager) WithMaxAge(d time.Duration) *Manager {
	nm := *m
	nm.maxAge = d
	return &nm
}

func (m *Manager) WithRetryDelay(d time.Duration) *Manager {
	nm := *m
	nm.retryDelay = d
	return &nm
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	nm := *m
	nm.now = now
	return &nm
}

func (m *Manager) WithSleeper(s retry.Sleeper) *Manager {
	nm := *m
	nm.sleep = s
	return &nm
}

func retryable(err error) bool {
	return !errors.Is(err, findapi.ErrAuth)
}

func (m *Manager) policy(ctx context.Context, what string) retry.Policy {
	return retry.Forever(m.retryDelay, retryable).
		WithSleeper(m.sleep).
		WithOnRetry(func(attempt int, err error) {
			logging.Logger(ctx).WithError(err).Warnf("%s failed (attempt %d), retrying in %s", what, attempt, m.retryDelay)
		})
}

func (m *Manager) fresh() bool {
	return m.current != nil && m.now().Sub(m.createdAt) < m.maxAge
}

// Invalidate drops the current session so the next Acquire logs in again
func (m *Manager) Invalidate() {
	if m.current != nil {
		m.invalidated = true
	}
	m.current = nil
}

// Acquire returns a live session, logging in if the current one is missing,
// expired or invalidated.  Connection failures are retried until ctx is
// done; rejected credentials return an error matching findapi.ErrAuth.
func (m *Manager) Acquire(ctx context.Context) (findapi.Session, error) {
	if m.fresh() {
		return m.current, nil
	}

	switch {
	case m.invalidated:
		logging.Logger(ctx).Info("reconnecting to location provider after error...")
	case m.current != nil:
		logging.Logger(ctx).Infof("reconnecting to location provider after %s...", m.maxAge)
	}
	m.current = nil

	var sess findapi.Session
	_, err := m.policy(ctx, "connecting to location provider").Do(ctx, func(ctx context.Context, attempt int) error {
		s, err := m.client.Authenticate(ctx, m.creds)
		switch {
		case err == nil:
			m.metrics.Authentications.WithLabelValues(metrics.AuthOK).Inc()
		case errors.Is(err, findapi.ErrAuth):
			m.metrics.Authentications.WithLabelValues(metrics.AuthRejected).Inc()
			return err
		default:
			m.metrics.Authentications.WithLabelValues(metrics.AuthFailed).Inc()
			return err
		}

		sess = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.current = sess
	m.createdAt = m.now()
	m.invalidated = false

	logging.Logger(ctx).Debugf("authenticated to location provider as %s", m.creds.User)
	return sess, nil
}

// Devices lists the account's devices.  A listing failure is treated as a
// broken connection: the session is dropped and the whole acquire and list
// sequence is retried.
func (m *Manager) Devices(ctx context.Context) ([]findapi.Device, error) {
	var devices []findapi.Device

	_, err := m.policy(ctx, "listing devices").Do(ctx, func(ctx context.Context, attempt int) error {
		sess, err := m.Acquire(ctx)
		if err != nil {
			return err
		}

		d, err := sess.Devices(ctx)
		if err != nil {
			m.Invalidate()
			return err
		}

		devices = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return devices, nil
}
