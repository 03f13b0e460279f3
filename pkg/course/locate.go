package course

import (
	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/geo"
)

// LocationAtDistance returns the coordinates and segment bearing at the given
// along-route distance. Distances before the start clamp to the first point,
// past the finish to the last.
func LocationAtDistance(c *race.Course, distance float64) (lat, lon, bearing float64) {
	pts := c.Points
	if distance <= 0 {
		first, second := pts[0], pts[1]
		return first.Lat, first.Lon, geo.Bearing(first.Lat, first.Lon, second.Lat, second.Lon)
	}
	if distance >= c.TotalDistance {
		last, prev := pts[len(pts)-1], pts[len(pts)-2]
		return last.Lat, last.Lon, geo.Bearing(prev.Lat, prev.Lon, last.Lat, last.Lon)
	}

	// Points are ordered by DistanceFromStart; find the containing segment.
	for i := 0; i < len(pts)-1; i++ {
		a, b := pts[i], pts[i+1]
		if distance > b.DistanceFromStart {
			continue
		}
		segLen := b.DistanceFromStart - a.DistanceFromStart
		t := 0.0
		if segLen > 0 {
			t = (distance - a.DistanceFromStart) / segLen
		}
		lat = a.Lat + t*(b.Lat-a.Lat)
		lon = a.Lon + t*(b.Lon-a.Lon)
		return lat, lon, geo.Bearing(a.Lat, a.Lon, b.Lat, b.Lon)
	}

	last, prev := pts[len(pts)-1], pts[len(pts)-2]
	return last.Lat, last.Lon, geo.Bearing(prev.Lat, prev.Lon, last.Lat, last.Lon)
}
