package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeDetectorFirstCallAccepts(t *testing.T) {
	d := NewChangeDetector(DefaultThreshold)

	_, ok := d.Last()
	assert.False(t, ok)
	assert.Equal(t, -1.0, d.DistanceFromLast(Point{1, 1}))

	p := Point{12.5, -3.25}
	assert.True(t, d.IsSignificant(p))

	last, ok := d.Last()
	assert.True(t, ok)
	assert.Equal(t, p, last)
}

func TestChangeDetectorThreshold(t *testing.T) {
	d := NewChangeDetector(DefaultThreshold)
	origin := Point{40.0, -70.0}

	assert.True(t, d.IsSignificant(origin))

	// ~11m: jitter, and the last location must not move
	assert.False(t, d.IsSignificant(Point{40.0001, -70.0}))
	last, _ := d.Last()
	assert.Equal(t, origin, last)

	// ~111m from the origin
	far := Point{40.0010, -70.0}
	assert.True(t, d.IsSignificant(far))
	last, _ = d.Last()
	assert.Equal(t, far, last)
}

func TestChangeDetectorBoundaryIsNotSignificant(t *testing.T) {
	a := Point{10.0, 10.0}
	b := Point{10.0004, 10.0}

	d := NewChangeDetector(Distance(a, b))
	assert.True(t, d.IsSignificant(a))

	// exactly on the threshold
	assert.False(t, d.IsSignificant(b))

	assert.True(t, d.IsSignificant(Point{10.0005, 10.0}))
}

func TestChangeDetectorComparesAgainstAccepted(t *testing.T) {
	d := NewChangeDetector(DefaultThreshold)
	assert.True(t, d.IsSignificant(Point{0, 0}))

	// creeping in 30m steps never escapes the last accepted point until the
	// total move is over the threshold
	step := 30.0 / EarthRadius * 180 / math.Pi
	assert.False(t, d.IsSignificant(Point{step, 0}))
	assert.True(t, d.IsSignificant(Point{2 * step, 0}))
}
