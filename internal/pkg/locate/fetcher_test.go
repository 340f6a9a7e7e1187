package locate

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/findmy-relay/internal/pkg/findapi"
	"github.com/jake-scott/findmy-relay/internal/pkg/findapi/mocks"
	"github.com/jake-scott/findmy-relay/internal/pkg/metrics"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func newTestFetcher() (*Fetcher, *sleepRecorder, *metrics.Metrics) {
	s := &sleepRecorder{}
	m := metrics.New(prometheus.NewRegistry())
	return NewFetcher(m).WithSleeper(s.sleep), s, m
}

func TestFetchFreshFirstTime(t *testing.T) {
	fresh := &findapi.Reading{Latitude: 40, Longitude: -70, Finished: true}
	dev := mocks.NewMockDevice("d1", "Alice's iPhone")
	dev.On("Location", mock.Anything).Return(fresh, nil).Once()

	f, sleeper, m := newTestFetcher()

	reading, attempts, err := f.Fetch(context.Background(), dev)
	require.NoError(t, err)
	assert.Same(t, fresh, reading)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeper.calls)
	assert.Equal(t, 1, testutil.CollectAndCount(m.LocationAttempts))
	dev.AssertExpectations(t)
}

func TestFetchRetriesUntilFresh(t *testing.T) {
	stale := &findapi.Reading{Latitude: 40, Longitude: -70}
	fresh := &findapi.Reading{Latitude: 40.001, Longitude: -70, Finished: true}

	dev := mocks.NewMockDevice("d1", "Alice's iPhone")
	dev.On("Location", mock.Anything).Return(nil, nil).Once()
	dev.On("Location", mock.Anything).Return(stale, nil).Once()
	dev.On("Location", mock.Anything).Return(fresh, nil).Once()

	f, sleeper, _ := newTestFetcher()

	reading, attempts, err := f.Fetch(context.Background(), dev)
	require.NoError(t, err)
	assert.Same(t, fresh, reading)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{DefaultDelay, DefaultDelay}, sleeper.calls)
	dev.AssertExpectations(t)
}

func TestFetchAlwaysStaleReturnsLastReading(t *testing.T) {
	dev := mocks.NewMockDevice("d1", "Alice's iPhone")
	for i := 0; i < DefaultAttempts; i++ {
		dev.On("Location", mock.Anything).
			Return(&findapi.Reading{Latitude: float64(i), Longitude: -70}, nil).Once()
	}

	f, sleeper, _ := newTestFetcher()

	reading, attempts, err := f.Fetch(context.Background(), dev)
	require.NoError(t, err)
	require.NotNil(t, reading)
	assert.False(t, reading.Finished)
	assert.Equal(t, float64(DefaultAttempts-1), reading.Latitude)
	assert.Equal(t, 6, attempts)

	require.Len(t, sleeper.calls, 5)
	for _, d := range sleeper.calls {
		assert.Equal(t, 10*time.Second, d)
	}
	dev.AssertNumberOfCalls(t, "Location", 6)
}

func TestFetchAlwaysAbsent(t *testing.T) {
	dev := mocks.NewMockDevice("d1", "Alice's iPhone")
	dev.On("Location", mock.Anything).Return(nil, nil)

	f, _, _ := newTestFetcher()

	reading, attempts, err := f.Fetch(context.Background(), dev)
	require.NoError(t, err)
	assert.Nil(t, reading)
	assert.Equal(t, DefaultAttempts, attempts)
}

func TestFetchQueryErrorKeepsPreviousReading(t *testing.T) {
	stale := &findapi.Reading{Latitude: 40, Longitude: -70}

	dev := mocks.NewMockDevice("d1", "Alice's iPhone")
	dev.On("Location", mock.Anything).Return(stale, nil).Once()
	dev.On("Location", mock.Anything).Return(nil, errors.New("502 bad gateway"))

	f, _, _ := newTestFetcher()

	reading, attempts, err := f.Fetch(context.Background(), dev)
	require.NoError(t, err)
	assert.Same(t, stale, reading)
	assert.Equal(t, DefaultAttempts, attempts)
}

func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dev := mocks.NewMockDevice("d1", "Alice's iPhone")
	dev.On("Location", mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)

	f, _, _ := newTestFetcher()

	_, attempts, err := f.Fetch(ctx, dev)
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, attempts)
}
