// Package race holds the data records shared by the tracking core: route
// points, courses, GPS fixes and per-participant live state. These are plain
// records without behaviour; formatting belongs to pkg/presentation.
package race

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PointType classifies a route point.
type PointType string

const (
	PointStart        PointType = "START"
	PointInterpolated PointType = "INTERPOLATED"
	PointCheckpoint   PointType = "CHECKPOINT"
	PointFinish       PointType = "FINISH"
)

// NoCheckpoint is the CheckpointIndex value for points that are not
// checkpoints, and the FarthestCheckpointIndex of a participant that has not
// crossed any yet.
const NoCheckpoint = -1

// RoutePoint is one point of an interpolated course. Sequence is dense from 0
// and DistanceFromStart is non-decreasing in sequence order. Only points with
// Type START, CHECKPOINT or FINISH carry CheckpointID / CheckpointIndex.
type RoutePoint struct {
	Sequence          uint32    `json:"sequence"`
	Lat               float64   `json:"lat"`
	Lon               float64   `json:"lon"`
	Elevation         *float64  `json:"elevation,omitempty"`
	DistanceFromStart float64   `json:"distanceFromStart"`
	Type              PointType `json:"type"`
	CheckpointID      string    `json:"cpId,omitempty"`
	CheckpointIndex   int       `json:"cpIndex"`
}

// IsCheckpoint reports whether the point carries split-timing tags.
func (p RoutePoint) IsCheckpoint() bool {
	return p.Type == PointStart || p.Type == PointCheckpoint || p.Type == PointFinish
}

// Course is the official race path for one (event, event-detail) pair.
type Course struct {
	EventID       string       `json:"eventId"`
	EventDetailID string       `json:"eventDetailId"`
	Points        []RoutePoint `json:"points"`
	TotalDistance float64      `json:"totalDistance"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Checkpoints returns the tagged points in checkpoint-index order.
func (c *Course) Checkpoints() []RoutePoint {
	var cps []RoutePoint
	for _, p := range c.Points {
		if p.IsCheckpoint() {
			cps = append(cps, p)
		}
	}
	return cps
}

// Fix is a single inbound GPS measurement. Pointer fields are absent when the
// device did not report them.
type Fix struct {
	Lat       float64  `json:"latitude"`
	Lon       float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Timestamp FlexTime `json:"timestamp"`
}

// FlexTime accepts the timestamp encodings devices actually send: RFC 3339
// strings, Unix epoch seconds, or epoch milliseconds.
type FlexTime struct {
	time.Time
}

// epoch values above this are treated as milliseconds. 10^11 seconds is
// year 5138, so any plausible ms timestamp clears the bar.
const msEpochCutoff = 1e11

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		return fmt.Errorf("timestamp missing")
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		// Numeric strings come through from form-encoded clients.
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			t.Time = fromEpoch(n)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", raw, err)
		}
		t.Time = parsed
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", s, err)
	}
	t.Time = fromEpoch(n)
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func fromEpoch(n float64) time.Time {
	if n > msEpochCutoff {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec := int64(n)
	nsec := int64((n - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// ParticipantLocation is the live record for one participant on one course.
// DistanceCovered and FarthestCheckpointIndex never decrease for the life of
// the record.
type ParticipantLocation struct {
	UserID        string `json:"userId"`
	EventID       string `json:"eventId"`
	EventDetailID string `json:"eventDetailId"`

	RawLat      float64   `json:"rawLat"`
	RawLon      float64   `json:"rawLon"`
	RawAltitude *float64  `json:"rawAltitude,omitempty"`
	RawAccuracy *float64  `json:"rawAccuracy,omitempty"`
	RawSpeed    *float64  `json:"rawSpeed,omitempty"`
	RawTime     time.Time `json:"rawTime"`

	CorrectedLat      float64  `json:"correctedLat"`
	CorrectedLon      float64  `json:"correctedLon"`
	CorrectedAltitude *float64 `json:"correctedAltitude,omitempty"`
	Heading           float64  `json:"heading"`

	DistanceCovered float64   `json:"distanceCovered"`
	CumulativeTime  float64   `json:"cumulativeTime"`
	RaceStartTime   time.Time `json:"raceStartTime"`
	LastUpdated     time.Time `json:"lastUpdated"`

	FarthestCheckpointID       string  `json:"farthestCpId,omitempty"`
	FarthestCheckpointIndex    int     `json:"farthestCpIndex"`
	CumulativeTimeAtFarthestCp float64 `json:"cumulativeTimeAtFarthestCp,omitempty"`
}

// SegmentRecord is the split for one crossed checkpoint.
type SegmentRecord struct {
	SegmentDuration float64 `json:"segmentDuration"`
	CumulativeTime  float64 `json:"cumulativeTime"`
}

// CheckpointReach describes one checkpoint crossing detected on a fix.
type CheckpointReach struct {
	CheckpointID    string    `json:"cpId"`
	CheckpointIndex int       `json:"cpIndex"`
	PassTime        time.Time `json:"passTime"`
	SegmentDuration float64   `json:"segmentDuration"`
	CumulativeTime  float64   `json:"cumulativeTime"`
}

// Event and EventDetail are the slices of the relational read-model the core
// consumes. EventDetail.GPXFileURL is where the course GPX lives.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartsAt  time.Time `json:"startsAt"`
	Location  string    `json:"location"`
	BannerURL string    `json:"bannerUrl,omitempty"`
}

type EventDetail struct {
	ID         string  `json:"id"`
	EventID    string  `json:"eventId"`
	Category   string  `json:"category"`
	DistanceKm float64 `json:"distanceKm"`
	GPXFileURL string  `json:"gpxFile"`
}

// Participant is the profile slice the read-model view exposes.
type Participant struct {
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	BibNumber  string `json:"bibNumber,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}
