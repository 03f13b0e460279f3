// Package correction is the core write path: a batch of raw GPS fixes goes
// through per-axis Kalman smoothing, map-matching against the course, and
// monotonic progress/checkpoint accounting, and comes out as one atomic live
// record update plus leaderboard and event side effects.
package correction

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/geo"
	sentryutil "github.com/racepulse/server/pkg/infrastructure/sentry"
	"github.com/racepulse/server/pkg/kalman"
	"github.com/racepulse/server/pkg/matcher"
	"github.com/racepulse/server/pkg/progress"
)

// DefaultDeadline bounds one correction request end to end.
const DefaultDeadline = 2 * time.Second

// headingMinTravel is the minimum corrected displacement in metres before a
// travel bearing is derived for fixes that carry no heading.
const headingMinTravel = 1.0

// CourseProvider is the slice of the course cache the service needs.
type CourseProvider interface {
	GetCourse(ctx context.Context, eventID, eventDetailID string) (*race.Course, error)
}

// Config carries the pipeline tunables.
type Config struct {
	// Deadline for one request. Zero means DefaultDeadline.
	Deadline time.Duration

	// CaptureRadius in metres for checkpoint crossing by proximity. Zero
	// means progress.DefaultCaptureRadius.
	CaptureRadius float64

	// Matcher holds the map-matching weights and threshold. Zero value means
	// matcher.DefaultConfig().
	Matcher matcher.Config
}

func (c Config) deadline() time.Duration {
	if c.Deadline > 0 {
		return c.Deadline
	}
	return DefaultDeadline
}

func (c Config) matcherConfig() matcher.Config {
	if c.Matcher.MatchDistanceThreshold > 0 {
		return c.Matcher
	}
	return matcher.DefaultConfig()
}

// Request is one inbound correction batch for a single participant.
type Request struct {
	UserID        string     `json:"userId"`
	EventID       string     `json:"eventId"`
	EventDetailID string     `json:"eventDetailId"`
	Fixes         []race.Fix `json:"locations"`

	// Confidence in [0.1, 1.0] scales measurement trust; zero means 1.0.
	Confidence float64 `json:"confidence,omitempty"`
}

// Response is the corrected state after the batch.
type Response struct {
	UserID        string `json:"userId"`
	EventID       string `json:"eventId"`
	EventDetailID string `json:"eventDetailId"`

	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Matched          bool    `json:"matched"`
	DistanceToRoute  float64 `json:"distanceToRoute"`
	ProgressDistance float64 `json:"progressDistance"`
	DistanceCovered  float64 `json:"distanceCovered"`
	CumulativeTime   float64 `json:"cumulativeTime"`

	CheckpointReaches []race.CheckpointReach `json:"checkpointReaches,omitempty"`
}

// CrossingEvent is the message published for each checkpoint crossing.
type CrossingEvent struct {
	UserID          string    `json:"userId"`
	EventID         string    `json:"eventId"`
	EventDetailID   string    `json:"eventDetailId"`
	CheckpointID    string    `json:"cpId"`
	CheckpointIndex int       `json:"cpIndex"`
	PassTime        time.Time `json:"passTime"`
	SegmentDuration float64   `json:"segmentDuration"`
	CumulativeTime  float64   `json:"cumulativeTime"`
}

// Service runs the correction pipeline.
type Service struct {
	courses   CourseProvider
	liveStore shared.LiveStore
	board     shared.Leaderboard
	publisher shared.Publisher
	logger    *slog.Logger
	cfg       Config
}

func NewService(courses CourseProvider, liveStore shared.LiveStore, board shared.Leaderboard, publisher shared.Publisher, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		courses:   courses,
		liveStore: liveStore,
		board:     board,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
	}
}

// CorrectLocation processes one batch. The live record update is atomic; the
// segment records, leaderboard upserts and crossing events that follow it are
// applied best-effort and logged on failure, never failing the request once
// the location is written.
func (s *Service) CorrectLocation(ctx context.Context, req Request) (*Response, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.deadline())
	defer cancel()

	c, err := s.courses.GetCourse(ctx, req.EventID, req.EventDetailID)
	if err != nil {
		return nil, deadlined(err)
	}

	fixes := make([]race.Fix, len(req.Fixes))
	copy(fixes, req.Fixes)
	sort.SliceStable(fixes, func(i, j int) bool {
		return fixes[i].Timestamp.Before(fixes[j].Timestamp.Time)
	})

	var resp *Response
	loc, err := s.liveStore.UpdateLocation(ctx, req.UserID, req.EventDetailID,
		func(prev *race.ParticipantLocation) (*race.ParticipantLocation, error) {
			next, r := s.apply(c, prev, req, fixes)
			resp = r
			return next, nil
		})
	if err != nil {
		return nil, deadlined(err)
	}

	s.applySideEffects(ctx, req, loc, resp.CheckpointReaches)
	return resp, nil
}

// apply runs the pipeline over the sorted batch against the previous record.
// It returns the record to persist and the response snapshot.
func (s *Service) apply(c *race.Course, prev *race.ParticipantLocation, req Request, fixes []race.Fix) (*race.ParticipantLocation, *Response) {
	// Filter state is per-request: the first fix of the batch seeds the
	// filters and later fixes are smoothed against it. Seeding from the
	// stored coordinates would drag sparse updates toward stale positions.
	smoother := kalman.NewPositionSmoother()
	cur := prev

	var lastMatch matcher.Match
	var reaches []race.CheckpointReach
	var lastFix *race.Fix
	captureRadius := s.cfg.CaptureRadius
	mcfg := s.cfg.matcherConfig()

	for i := range fixes {
		fix := &fixes[i]
		// Replayed or out-of-order fixes older than the record are dropped so
		// the race clock never runs backwards.
		if cur != nil && !fix.Timestamp.After(cur.LastUpdated) {
			continue
		}

		lat, lon, alt := smoother.Smooth(fix.Lat, fix.Lon, fix.Altitude, fix.Accuracy, req.Confidence)

		heading := fix.Heading
		if heading == nil && cur != nil {
			if geo.Distance(cur.CorrectedLat, cur.CorrectedLon, lat, lon) >= headingMinTravel {
				h := geo.Bearing(cur.CorrectedLat, cur.CorrectedLon, lat, lon)
				heading = &h
			}
		}

		m := matcher.Project(c, lat, lon, heading, mcfg)
		if m.Matched {
			lat, lon = m.ProjectedLat, m.ProjectedLon
		}

		res := progress.Advance(c, cur, m, lat, lon, fix.Timestamp.Time, captureRadius)
		reaches = append(reaches, res.Reaches...)

		next := &race.ParticipantLocation{
			UserID:        req.UserID,
			EventID:       req.EventID,
			EventDetailID: req.EventDetailID,

			RawLat:      fix.Lat,
			RawLon:      fix.Lon,
			RawAltitude: fix.Altitude,
			RawAccuracy: fix.Accuracy,
			RawSpeed:    fix.Speed,
			RawTime:     fix.Timestamp.Time,

			CorrectedLat:      lat,
			CorrectedLon:      lon,
			CorrectedAltitude: alt,

			DistanceCovered: res.DistanceCovered,
			CumulativeTime:  res.CumulativeTime,
			RaceStartTime:   res.RaceStart,
			LastUpdated:     fix.Timestamp.Time,

			FarthestCheckpointID:       res.FarthestCheckpointID,
			FarthestCheckpointIndex:    res.FarthestCheckpointIndex,
			CumulativeTimeAtFarthestCp: res.CumulativeTimeAtFarthestCp,
		}
		if heading != nil {
			next.Heading = *heading
		} else if cur != nil {
			next.Heading = cur.Heading
		}

		cur = next
		lastMatch = m
		lastFix = fix
	}

	resp := &Response{
		UserID:            req.UserID,
		EventID:           req.EventID,
		EventDetailID:     req.EventDetailID,
		Matched:           lastMatch.Matched,
		DistanceToRoute:   lastMatch.DistanceToRoute,
		ProgressDistance:  lastMatch.ProgressDistance,
		CheckpointReaches: reaches,
	}
	if cur != nil {
		resp.Latitude = cur.CorrectedLat
		resp.Longitude = cur.CorrectedLon
		resp.Altitude = cur.CorrectedAltitude
		resp.Speed = cur.RawSpeed
		resp.Timestamp = cur.LastUpdated
		resp.DistanceCovered = cur.DistanceCovered
		resp.CumulativeTime = cur.CumulativeTime
	}
	if lastFix == nil && prev != nil {
		// Every fix in the batch was stale; the record is returned unchanged.
		resp.Matched = false
		resp.DistanceToRoute = 0
		resp.ProgressDistance = prev.DistanceCovered
	}
	return cur, resp
}

// applySideEffects records splits, updates the leaderboard and publishes
// crossing events after the live record is committed.
func (s *Service) applySideEffects(ctx context.Context, req Request, loc *race.ParticipantLocation, reaches []race.CheckpointReach) {
	for _, reach := range reaches {
		rec := race.SegmentRecord{
			SegmentDuration: reach.SegmentDuration,
			CumulativeTime:  reach.CumulativeTime,
		}
		if err := s.liveStore.SetSegmentRecord(ctx, req.UserID, req.EventID, req.EventDetailID, reach.CheckpointID, rec); err != nil {
			s.logger.Error("failed to record segment",
				"userId", req.UserID, "cpId", reach.CheckpointID, "error", err)
			sentryutil.CaptureException(err, map[string]interface{}{"userId": req.UserID, "cpId": reach.CheckpointID}, s.logger)
		}
	}

	if len(reaches) > 0 {
		err := s.board.Upsert(ctx, req.EventDetailID, req.UserID,
			loc.FarthestCheckpointIndex, loc.CumulativeTimeAtFarthestCp)
		if err != nil {
			s.logger.Error("failed to update leaderboard",
				"userId", req.UserID, "eventDetailId", req.EventDetailID, "error", err)
			sentryutil.CaptureException(err, map[string]interface{}{"userId": req.UserID, "eventDetailId": req.EventDetailID}, s.logger)
		}
	}

	if s.publisher == nil {
		return
	}
	for _, reach := range reaches {
		payload, err := json.Marshal(CrossingEvent{
			UserID:          req.UserID,
			EventID:         req.EventID,
			EventDetailID:   req.EventDetailID,
			CheckpointID:    reach.CheckpointID,
			CheckpointIndex: reach.CheckpointIndex,
			PassTime:        reach.PassTime,
			SegmentDuration: reach.SegmentDuration,
			CumulativeTime:  reach.CumulativeTime,
		})
		if err != nil {
			s.logger.Error("failed to encode crossing event", "error", err)
			continue
		}
		if _, err := s.publisher.Publish(ctx, shared.TopicCheckpointCrossings, payload); err != nil {
			s.logger.Error("failed to publish crossing event",
				"userId", req.UserID, "cpId", reach.CheckpointID, "error", err)
			sentryutil.CaptureException(err, map[string]interface{}{"userId": req.UserID, "cpId": reach.CheckpointID}, s.logger)
		}
	}
}

func validate(req Request) error {
	if req.UserID == "" || req.EventID == "" || req.EventDetailID == "" {
		return apperrors.InvalidInput("userId, eventId and eventDetailId are required")
	}
	if len(req.Fixes) == 0 {
		return apperrors.InvalidInput("at least one location fix is required")
	}
	for i, fix := range req.Fixes {
		if fix.Lat < -90 || fix.Lat > 90 {
			return apperrors.InvalidInput("fix %d: latitude %f out of range", i, fix.Lat)
		}
		if fix.Lon < -180 || fix.Lon > 180 {
			return apperrors.InvalidInput("fix %d: longitude %f out of range", i, fix.Lon)
		}
		if fix.Timestamp.IsZero() {
			return apperrors.InvalidInput("fix %d: timestamp is required", i)
		}
	}
	return nil
}

// deadlined maps a context deadline hit to the Deadline error kind.
func deadlined(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.New(apperrors.KindDeadline, "correction deadline exceeded")
	}
	return err
}
