package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racepulse/server/pkg/course"
	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/matcher"
)

func testCourse(t *testing.T) *race.Course {
	t.Helper()
	lats := []float64{37.5663, 37.5681, 37.5699, 37.5717, 37.5735, 37.5753, 37.5771}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<gpx version="1.1" creator="racepulse" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg>`
	for _, lat := range lats {
		doc += fmt.Sprintf(`<trkpt lat="%f" lon="126.9779"></trkpt>`, lat)
	}
	doc += `</trkseg></trk></gpx>`
	c, err := course.Build("evt", "det", []byte(doc), course.Options{InterpolationInterval: 100})
	require.NoError(t, err)
	return c
}

func matchedAt(c *race.Course, d float64) matcher.Match {
	lat, lon, _ := course.LocationAtDistance(c, d)
	return matcher.Match{
		ProjectedLat:     lat,
		ProjectedLon:     lon,
		ProgressDistance: d,
		Matched:          true,
	}
}

func prevState(c *race.Course, start time.Time, distance float64, farthestIdx int, farthestID string, cumAtCp float64) *race.ParticipantLocation {
	lat, lon, _ := course.LocationAtDistance(c, distance)
	return &race.ParticipantLocation{
		UserID:                     "u1",
		EventID:                    "evt",
		EventDetailID:              "det",
		CorrectedLat:               lat,
		CorrectedLon:               lon,
		DistanceCovered:            distance,
		RaceStartTime:              start,
		FarthestCheckpointID:       farthestID,
		FarthestCheckpointIndex:    farthestIdx,
		CumulativeTimeAtFarthestCp: cumAtCp,
	}
}

func TestAdvance_FirstFixAnchorsStart(t *testing.T) {
	c := testCourse(t)
	now := time.Now().UTC()

	res := Advance(c, nil, matchedAt(c, 5), 37.5663, 126.9779, now, 0)

	assert.True(t, res.FirstFix)
	assert.Equal(t, now, res.RaceStart)
	assert.Equal(t, "START", res.FarthestCheckpointID)
	assert.Equal(t, 0, res.FarthestCheckpointIndex)
	assert.Empty(t, res.Reaches, "the anchor is not a crossing")
	assert.Equal(t, 5.0, res.DistanceCovered)
}

func TestAdvance_SingleCheckpointCrossing(t *testing.T) {
	c := testCourse(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	prev := prevState(c, start, 5, 0, "START", 0)

	cps := c.Checkpoints()
	cp1 := cps[1]

	// Second fix ten seconds in, right at CP1.
	m := matchedAt(c, cp1.DistanceFromStart)
	res := Advance(c, prev, m, cp1.Lat, cp1.Lon, start.Add(10*time.Second), 50)

	require.Len(t, res.Reaches, 1)
	reach := res.Reaches[0]
	assert.Equal(t, "CP1", reach.CheckpointID)
	assert.Equal(t, 1, reach.CheckpointIndex)
	assert.Equal(t, 10.0, reach.SegmentDuration)
	assert.Equal(t, 10.0, reach.CumulativeTime)
	assert.Equal(t, "CP1", res.FarthestCheckpointID)
	assert.Equal(t, 10.0, res.CumulativeTimeAtFarthestCp)
}

func TestAdvance_MonotonicUnderBackwardsJitter(t *testing.T) {
	c := testCourse(t)
	start := time.Now().UTC().Add(-time.Minute)
	prev := prevState(c, start, 200, 0, "START", 0)

	m := matchedAt(c, 195)
	res := Advance(c, prev, m, m.ProjectedLat, m.ProjectedLon, time.Now().UTC(), 50)

	assert.Equal(t, 200.0, res.DistanceCovered)
}

func TestAdvance_ReplayedFixEmitsNothingNew(t *testing.T) {
	c := testCourse(t)
	start := time.Now().UTC().Add(-time.Minute)
	cps := c.Checkpoints()
	cp1 := cps[1]
	prev := prevState(c, start, cp1.DistanceFromStart, 1, "CP1", 30)

	m := matchedAt(c, cp1.DistanceFromStart)
	res := Advance(c, prev, m, cp1.Lat, cp1.Lon, time.Now().UTC(), 50)

	assert.Empty(t, res.Reaches)
	assert.Equal(t, cp1.DistanceFromStart, res.DistanceCovered)
	assert.Equal(t, 1, res.FarthestCheckpointIndex)
}

func TestAdvance_BurstCrossingsShareTimestamp(t *testing.T) {
	c := testCourse(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	prev := prevState(c, start, 5, 0, "START", 0)
	now := start.Add(120 * time.Second)

	cps := c.Checkpoints()
	cp3 := cps[3]

	// One fix lands past CP3: CP1, CP2 and CP3 are all crossed at once.
	m := matchedAt(c, cp3.DistanceFromStart+10)
	res := Advance(c, prev, m, m.ProjectedLat, m.ProjectedLon, now, 50)

	require.Len(t, res.Reaches, 3)
	for i, reach := range res.Reaches {
		assert.Equal(t, i+1, reach.CheckpointIndex)
		assert.Equal(t, now, reach.PassTime)
		assert.Equal(t, 120.0, reach.CumulativeTime)
	}
	// The first crossing takes the full elapsed split; the rest are zero.
	assert.Equal(t, 120.0, res.Reaches[0].SegmentDuration)
	assert.Equal(t, 0.0, res.Reaches[1].SegmentDuration)
	assert.Equal(t, 0.0, res.Reaches[2].SegmentDuration)

	// Sum of segment durations equals the last cumulative time.
	var sum float64
	for _, reach := range res.Reaches {
		sum += reach.SegmentDuration
	}
	assert.Equal(t, res.Reaches[2].CumulativeTime, sum)
	assert.Equal(t, 3, res.FarthestCheckpointIndex)
}

func TestAdvance_CaptureRadiusCrossing(t *testing.T) {
	c := testCourse(t)
	start := time.Now().UTC().Add(-time.Minute)
	prev := prevState(c, start, 150, 0, "START", 0)

	cps := c.Checkpoints()
	cp1 := cps[1]

	// Progress distance stays short of CP1, but the corrected fix is within
	// 20m of it.
	m := matchedAt(c, cp1.DistanceFromStart-30)
	res := Advance(c, prev, m, cp1.Lat+0.00018, cp1.Lon, time.Now().UTC(), 50)

	require.Len(t, res.Reaches, 1)
	assert.Equal(t, "CP1", res.Reaches[0].CheckpointID)
}

func TestAdvance_UnmatchedFixFreezesProgress(t *testing.T) {
	c := testCourse(t)
	start := time.Now().UTC().Add(-time.Minute)
	prev := prevState(c, start, 300, 1, "CP1", 30)

	m := matcher.Match{ProgressDistance: 900, Matched: false}
	res := Advance(c, prev, m, 37.7, 127.2, time.Now().UTC(), 50)

	assert.Equal(t, 300.0, res.DistanceCovered)
	assert.Empty(t, res.Reaches)
	assert.Equal(t, 1, res.FarthestCheckpointIndex)
}
