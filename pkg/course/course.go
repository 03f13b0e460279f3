// Package course builds the route model the whole core runs against: GPX
// track points parsed in document order, interpolated to a uniform along-route
// spacing, and tagged with checkpoint ids for split timing.
package course

import (
	"fmt"
	"math"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/geo"
)

// Options controls interpolation and checkpoint tagging.
type Options struct {
	// InterpolationInterval is the target spacing between consecutive route
	// points in metres. Zero means DefaultInterpolationInterval.
	InterpolationInterval float64

	// CheckpointDistanceInterval, when non-zero, promotes only track points
	// whose along-route distance has reached n*interval to the n-th
	// checkpoint. Zero promotes every original track point.
	CheckpointDistanceInterval float64
}

const (
	DefaultInterpolationInterval = 100.0

	// endpointEpsilon suppresses an interpolated point that would land within
	// this distance of the segment end, which otherwise duplicates it.
	endpointEpsilon = 1.0
)

func (o Options) interval() float64 {
	if o.InterpolationInterval > 0 {
		return o.InterpolationInterval
	}
	return DefaultInterpolationInterval
}

// trackPoint is a raw GPX point before interpolation.
type trackPoint struct {
	lat, lon float64
	ele      *float64
}

// Build parses GPX bytes and produces the interpolated, checkpoint-tagged
// course for the given event pair. It fails with an InvalidGPX error on parse
// failure or fewer than two track points.
func Build(eventID, eventDetailID string, gpxBytes []byte, opts Options) (*race.Course, error) {
	doc, err := gpx.ParseBytes(gpxBytes)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidGPX, err, "parse gpx")
	}

	var raw []trackPoint
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				tp := trackPoint{lat: p.Latitude, lon: p.Longitude}
				if p.Elevation.NotNull() {
					v := p.Elevation.Value()
					// -1 is the unknown-elevation sentinel in our uploads.
					if v != -1 {
						tp.ele = &v
					}
				}
				raw = append(raw, tp)
			}
		}
	}
	if len(raw) < 2 {
		return nil, apperrors.InvalidGPX("gpx has %d track points, need at least 2", len(raw))
	}

	points := interpolate(raw, opts.interval())
	tagCheckpoints(points, opts.CheckpointDistanceInterval)

	return &race.Course{
		EventID:       eventID,
		EventDetailID: eventDetailID,
		Points:        points,
		TotalDistance: points[len(points)-1].DistanceFromStart,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// interpolated marks points inserted between original track points; the tag
// pass rewrites originals to START/CHECKPOINT/FINISH.
func interpolate(raw []trackPoint, interval float64) []race.RoutePoint {
	out := make([]race.RoutePoint, 0, len(raw)*2)

	push := func(lat, lon float64, ele *float64, typ race.PointType, cumulative float64) {
		out = append(out, race.RoutePoint{
			Sequence:          uint32(len(out)),
			Lat:               lat,
			Lon:               lon,
			Elevation:         ele,
			DistanceFromStart: cumulative,
			Type:              typ,
			CheckpointIndex:   race.NoCheckpoint,
		})
	}

	cumulative := 0.0
	push(raw[0].lat, raw[0].lon, raw[0].ele, race.PointCheckpoint, 0)

	for i := 0; i < len(raw)-1; i++ {
		a, b := raw[i], raw[i+1]
		d := geo.Distance(a.lat, a.lon, b.lat, b.lon)

		if d > interval {
			n := int(math.Floor(d / interval))
			for k := 1; k <= n; k++ {
				along := float64(k) * interval
				if d-along < endpointEpsilon {
					break
				}
				t := along / d
				lat := a.lat + t*(b.lat-a.lat)
				lon := a.lon + t*(b.lon-a.lon)
				ele := lerpElevation(a.ele, b.ele, t)

				prev := out[len(out)-1]
				cumulative += geo.Distance(prev.Lat, prev.Lon, lat, lon)
				push(lat, lon, ele, race.PointInterpolated, cumulative)
			}
		}

		prev := out[len(out)-1]
		cumulative += geo.Distance(prev.Lat, prev.Lon, b.lat, b.lon)
		push(b.lat, b.lon, b.ele, race.PointCheckpoint, cumulative)
	}

	return out
}

// lerpElevation interpolates elevation linearly, carrying a known side forward
// when the other is unknown.
func lerpElevation(a, b *float64, t float64) *float64 {
	switch {
	case a != nil && b != nil:
		v := *a + t*(*b-*a)
		return &v
	case a != nil:
		v := *a
		return &v
	case b != nil:
		v := *b
		return &v
	default:
		return nil
	}
}

// tagCheckpoints rewrites the structural tags in place: the first point is
// START, the last is FINISH, and intermediate original track points become
// CHECKPOINT subject to the distance interval rule. Interpolated points are
// never checkpoints.
func tagCheckpoints(points []race.RoutePoint, distanceInterval float64) {
	cpIndex := 0
	cpCount := 0 // intermediate checkpoints assigned so far

	for i := range points {
		p := &points[i]
		switch {
		case i == 0:
			p.Type = race.PointStart
			p.CheckpointID = "START"
			p.CheckpointIndex = cpIndex
			cpIndex++
		case i == len(points)-1:
			p.Type = race.PointFinish
			p.CheckpointID = "FINISH"
			p.CheckpointIndex = cpIndex
		case p.Type == race.PointInterpolated:
			// stays untagged
		default:
			if distanceInterval > 0 {
				required := float64(cpCount+1) * distanceInterval
				if p.DistanceFromStart < required {
					p.Type = race.PointInterpolated
					continue
				}
			}
			cpCount++
			p.Type = race.PointCheckpoint
			p.CheckpointID = checkpointID(cpCount)
			p.CheckpointIndex = cpIndex
			cpIndex++
		}
	}
}

func checkpointID(n int) string {
	return fmt.Sprintf("CP%d", n)
}
