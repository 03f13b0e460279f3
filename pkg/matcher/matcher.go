// Package matcher projects filtered GPS fixes onto the course polyline. Each
// segment is scored on a weighted blend of perpendicular distance and heading
// agreement; a single best segment wins. Projection happens in raw lat/lon
// space, which is within a few metres of truth at 100m segment scale.
package matcher

import (
	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/geo"
)

// Config carries the scoring weights and the match threshold.
type Config struct {
	// MatchDistanceThreshold is the maximum perpendicular distance in metres
	// for a fix to count as on-course.
	MatchDistanceThreshold float64
	// WeightDistance and WeightBearing blend the two score terms.
	WeightDistance float64
	WeightBearing  float64
}

// DefaultConfig returns the production scoring parameters.
func DefaultConfig() Config {
	return Config{
		MatchDistanceThreshold: 100,
		WeightDistance:         0.6,
		WeightBearing:          0.4,
	}
}

// distanceNorm and bearingNorm normalise the two score terms to [0, ~1].
const (
	distanceNorm = 100.0
	bearingNorm  = 180.0
)

// Match is the result of projecting one fix onto the course.
type Match struct {
	ProjectedLat     float64 `json:"projectedLat"`
	ProjectedLon     float64 `json:"projectedLon"`
	SegmentIndex     int     `json:"segmentIndex"`
	DistanceToRoute  float64 `json:"distanceToRoute"`
	BearingDiff      float64 `json:"bearingDiff"`
	ProgressDistance float64 `json:"progressDistance"`
	Matched          bool    `json:"matched"`
}

// Project finds the best segment for a fix. heading may be nil when the
// device reported none; the bearing term then scores zero for every segment
// and distance alone decides.
func Project(c *race.Course, lat, lon float64, heading *float64, cfg Config) Match {
	best := Match{SegmentIndex: -1}
	bestScore := 0.0

	for i := 0; i < len(c.Points)-1; i++ {
		a, b := c.Points[i], c.Points[i+1]

		t := projectionParameter(lat, lon, a, b)
		projLat := a.Lat + t*(b.Lat-a.Lat)
		projLon := a.Lon + t*(b.Lon-a.Lon)

		dist := geo.Distance(lat, lon, projLat, projLon)
		segBearing := geo.Bearing(a.Lat, a.Lon, b.Lat, b.Lon)

		bearingDiff := 0.0
		if heading != nil {
			bearingDiff = geo.HeadingDelta(*heading, segBearing)
		}

		score := cfg.WeightDistance*(dist/distanceNorm) + cfg.WeightBearing*(bearingDiff/bearingNorm)
		if best.SegmentIndex < 0 || score < bestScore {
			bestScore = score
			best = Match{
				ProjectedLat:     projLat,
				ProjectedLon:     projLon,
				SegmentIndex:     i,
				DistanceToRoute:  dist,
				BearingDiff:      bearingDiff,
				ProgressDistance: a.DistanceFromStart + geo.Distance(a.Lat, a.Lon, projLat, projLon),
			}
		}
	}

	best.Matched = best.DistanceToRoute <= cfg.MatchDistanceThreshold
	return best
}

// projectionParameter returns the clamped parameter of the orthogonal
// projection of (lat, lon) onto the segment a-b in coordinate space.
func projectionParameter(lat, lon float64, a, b race.RoutePoint) float64 {
	dLat := b.Lat - a.Lat
	dLon := b.Lon - a.Lon
	lenSq := dLat*dLat + dLon*dLon
	if lenSq == 0 {
		return 0
	}
	t := ((lat-a.Lat)*dLat + (lon-a.Lon)*dLon) / lenSq
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
