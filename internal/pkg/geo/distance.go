package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in metres used for great-circle
// distances
const EarthRadius = 6373000.0

// Point is a WGS84 coordinate in decimal degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the haversine distance between a and b in metres
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return c * EarthRadius
}
