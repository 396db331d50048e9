package gpsreceiver

import (
	"math"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"
)

const earthRadiusKM = 6371.0

// advance returns the point distanceKM along headingDeg (0 = north,
// clockwise) from origin, using the standard great-circle destination
// formula.
func advance(origin gpsenc.Point, headingDeg, distanceKM float64) gpsenc.Point {
	if distanceKM == 0 {
		return origin
	}
	lat1 := origin.Latitude * math.Pi / 180
	lon1 := origin.Longitude * math.Pi / 180
	brng := headingDeg * math.Pi / 180
	angular := distanceKM / earthRadiusKM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) + math.Cos(lat1)*math.Sin(angular)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2),
	)

	return gpsenc.Point{
		Latitude:  lat2 * 180 / math.Pi,
		Longitude: lon2 * 180 / math.Pi,
	}
}
