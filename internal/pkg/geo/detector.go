package geo

// DefaultThreshold is the minimum movement, in metres, that counts as a
// new location.  Smaller moves are treated as GPS jitter.
const DefaultThreshold = 50.0

// ChangeDetector remembers the last accepted location and decides whether
// a new one has moved far enough to be worth forwarding.
//
// It is not safe for concurrent use; the poll loop is its only caller.
type ChangeDetector struct {
	threshold float64
	last      Point
	haveLast  bool
}

func NewChangeDetector(threshold float64) *ChangeDetector {
	return &ChangeDetector{threshold: threshold}
}

// IsSignificant reports whether p is more than the threshold away from the
// last accepted location, and if so accepts p as the new last location.
// The first call always accepts.
func (d *ChangeDetector) IsSignificant(p Point) bool {
	if d.haveLast && Distance(d.last, p) <= d.threshold {
		return false
	}

	d.last = p
	d.haveLast = true
	return true
}

// Last returns the last accepted location, if any
func (d *ChangeDetector) Last() (Point, bool) {
	return d.last, d.haveLast
}

// DistanceFromLast returns the distance from the last accepted location to
// p, or -1 when nothing has been accepted yet
func (d *ChangeDetector) DistanceFromLast(p Point) float64 {
	if !d.haveLast {
		return -1
	}

	return Distance(d.last, p)
}
