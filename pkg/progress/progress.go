// Package progress turns matcher output into monotonic along-route progress
// and one-shot checkpoint crossings with split timing.
package progress

import (
	"time"

	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/geo"
	"github.com/racepulse/server/pkg/matcher"
)

// DefaultCaptureRadius is the checkpoint capture radius in metres.
const DefaultCaptureRadius = 50.0

// Result describes the participant's advancement after one fix.
type Result struct {
	// FirstFix is true when this fix created the participant's record and
	// anchored the race clock.
	FirstFix bool

	RaceStart       time.Time
	DistanceCovered float64
	CumulativeTime  float64

	FarthestCheckpointID       string
	FarthestCheckpointIndex    int
	CumulativeTimeAtFarthestCp float64

	// Reaches lists the checkpoints crossed on this fix, in course order. The
	// race-start anchor itself is not a reach.
	Reaches []race.CheckpointReach
}

// Advance computes the new progress state. prev is nil for the participant's
// first accepted fix, which anchors the race start time and the START split at
// zero. All checkpoints crossed in one fix share tNow.
func Advance(c *race.Course, prev *race.ParticipantLocation, m matcher.Match,
	correctedLat, correctedLon float64, tNow time.Time, captureRadius float64) Result {

	if captureRadius <= 0 {
		captureRadius = DefaultCaptureRadius
	}

	if prev == nil {
		res := Result{
			FirstFix:                true,
			RaceStart:               tNow,
			FarthestCheckpointID:    "START",
			FarthestCheckpointIndex: 0,
		}
		if m.Matched {
			res.DistanceCovered = m.ProgressDistance
		}
		return res
	}

	res := Result{
		RaceStart:                  prev.RaceStartTime,
		DistanceCovered:            prev.DistanceCovered,
		CumulativeTime:             tNow.Sub(prev.RaceStartTime).Seconds(),
		FarthestCheckpointID:       prev.FarthestCheckpointID,
		FarthestCheckpointIndex:    prev.FarthestCheckpointIndex,
		CumulativeTimeAtFarthestCp: prev.CumulativeTimeAtFarthestCp,
	}

	if !m.Matched {
		// Off-course fixes never advance progress or cross checkpoints.
		return res
	}

	if m.ProgressDistance > res.DistanceCovered {
		res.DistanceCovered = m.ProgressDistance
	}

	lastCumulative := prev.CumulativeTimeAtFarthestCp
	for _, cp := range c.Checkpoints() {
		if cp.CheckpointIndex <= prev.FarthestCheckpointIndex {
			continue
		}
		byDistance := res.DistanceCovered >= cp.DistanceFromStart
		byRadius := geo.Distance(correctedLat, correctedLon, cp.Lat, cp.Lon) <= captureRadius
		if !byDistance && !byRadius {
			continue
		}

		cumulative := res.CumulativeTime
		res.Reaches = append(res.Reaches, race.CheckpointReach{
			CheckpointID:    cp.CheckpointID,
			CheckpointIndex: cp.CheckpointIndex,
			PassTime:        tNow,
			SegmentDuration: cumulative - lastCumulative,
			CumulativeTime:  cumulative,
		})
		lastCumulative = cumulative

		res.FarthestCheckpointID = cp.CheckpointID
		res.FarthestCheckpointIndex = cp.CheckpointIndex
		res.CumulativeTimeAtFarthestCp = cumulative
	}

	return res
}
