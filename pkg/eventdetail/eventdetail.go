// Package eventdetail assembles the race-view read model: event metadata, the
// requesting user's live state, and the ranker panel showing the podium plus
// everyone the user tracks.
package eventdetail

import (
	"context"
	"log/slog"
	"time"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/presentation"
)

// TopRankerCount is how many podium places the ranker panel always includes.
const TopRankerCount = 3

// Ranker is one participant in the panel, enriched with profile and live data.
type Ranker struct {
	UserID     string `json:"userId"`
	Name       string `json:"name,omitempty"`
	BibNumber  string `json:"bibNumber,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`

	// Rank is 0 for tracked users not yet on the leaderboard.
	Rank                 int64   `json:"rank,omitempty"`
	FarthestCheckpointID string  `json:"farthestCpId,omitempty"`
	CheckpointIndex      int     `json:"cpIndex"`
	CumulativeTime       float64 `json:"cumulativeTime"`
	ElapsedDisplay       string  `json:"elapsedDisplay,omitempty"`
	PaceDisplay          string  `json:"paceDisplay,omitempty"`

	Latitude        float64    `json:"latitude,omitempty"`
	Longitude       float64    `json:"longitude,omitempty"`
	DistanceCovered float64    `json:"distanceCovered"`
	LastUpdated     *time.Time `json:"lastUpdated,omitempty"`

	IsMe      bool `json:"isMe,omitempty"`
	IsTracked bool `json:"isTracked,omitempty"`
}

// Response is the full event-detail view for one user.
type Response struct {
	Event  race.Event       `json:"event"`
	Detail race.EventDetail `json:"eventDetail"`

	// Categories lists every event detail under the event, so clients can
	// switch between course distances.
	Categories []race.EventDetail `json:"categories"`

	Me      *Ranker  `json:"me,omitempty"`
	Rankers []Ranker `json:"rankers"`

	SegmentRecords map[string]race.SegmentRecord `json:"segmentRecords,omitempty"`
}

// Service composes the read model, live store and leaderboard.
type Service struct {
	readModel shared.ReadModel
	liveStore shared.LiveStore
	board     shared.Leaderboard
	logger    *slog.Logger
}

func NewService(readModel shared.ReadModel, liveStore shared.LiveStore, board shared.Leaderboard, logger *slog.Logger) *Service {
	return &Service{readModel: readModel, liveStore: liveStore, board: board, logger: logger}
}

// GetEventDetail builds the race view. The ranker panel is the union of the
// top three, the requesting user and the users they track, deduplicated with
// podium order preserved and unranked tracked users appended last. userID may
// be empty for anonymous spectators; the panel is then the podium alone.
func (s *Service) GetEventDetail(ctx context.Context, userID, eventID, eventDetailID string) (*Response, error) {
	if eventID == "" || eventDetailID == "" {
		return nil, apperrors.InvalidInput("eventId and eventDetailId are required")
	}

	detail, err := s.readModel.GetEventDetail(ctx, eventID, eventDetailID)
	if err != nil {
		return nil, err
	}
	event, err := s.readModel.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	categories, err := s.readModel.ListEventDetails(ctx, eventID)
	if err != nil {
		s.logger.Warn("categories unavailable", "eventId", eventID, "error", err)
	}

	top, err := s.board.Top(ctx, eventDetailID, TopRankerCount)
	if err != nil {
		s.logger.Warn("leaderboard top unavailable", "eventDetailId", eventDetailID, "error", err)
	}

	var tracked []string
	if userID != "" {
		tracked, err = s.readModel.ListTrackedUserIDs(ctx, userID, eventDetailID)
		if err != nil {
			s.logger.Warn("tracked users unavailable", "userId", userID, "error", err)
		}
	}
	trackedSet := make(map[string]bool, len(tracked))
	for _, id := range tracked {
		trackedSet[id] = true
	}

	// Union preserving podium order; the user and tracked users follow.
	ids := make([]string, 0, len(top)+1+len(tracked))
	seen := make(map[string]bool)
	entries := make(map[string]shared.LeaderboardEntry, len(top))
	for _, e := range top {
		ids = append(ids, e.UserID)
		seen[e.UserID] = true
		entries[e.UserID] = e
	}
	if userID != "" && !seen[userID] {
		ids = append(ids, userID)
		seen[userID] = true
	}
	for _, id := range tracked {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	rankers := make([]Ranker, 0, len(ids))
	var me *Ranker
	for _, id := range ids {
		r := s.buildRanker(ctx, id, eventDetailID, entries)
		r.IsMe = id == userID
		r.IsTracked = trackedSet[id]
		if r.IsMe {
			cp := r
			me = &cp
		}
		rankers = append(rankers, r)
	}

	resp := &Response{
		Event:      *event,
		Detail:     *detail,
		Categories: categoryList(categories),
		Me:         me,
		Rankers:    rankers,
	}

	if userID != "" {
		if recs, err := s.liveStore.GetSegmentRecords(ctx, userID, eventID, eventDetailID); err != nil {
			s.logger.Warn("segment records unavailable", "userId", userID, "error", err)
		} else if len(recs) > 0 {
			resp.SegmentRecords = recs
		}
	}

	return resp, nil
}

func categoryList(details []*race.EventDetail) []race.EventDetail {
	out := make([]race.EventDetail, 0, len(details))
	for _, d := range details {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}

func (s *Service) buildRanker(ctx context.Context, userID, eventDetailID string, known map[string]shared.LeaderboardEntry) Ranker {
	r := Ranker{UserID: userID, CheckpointIndex: race.NoCheckpoint}

	if p, err := s.readModel.GetParticipant(ctx, userID); err == nil {
		r.Name = p.Name
		r.BibNumber = p.BibNumber
		r.ProfileURL = p.ProfileURL
	} else if !apperrors.Is(err, apperrors.KindNotFound) {
		s.logger.Warn("participant lookup failed", "userId", userID, "error", err)
	}

	entry, ok := known[userID]
	if !ok {
		if e, err := s.board.Rank(ctx, eventDetailID, userID); err == nil {
			entry, ok = *e, true
		} else if !apperrors.Is(err, apperrors.KindNotFound) {
			s.logger.Warn("rank lookup failed", "userId", userID, "error", err)
		}
	}
	if ok {
		r.Rank = entry.Rank
		r.CheckpointIndex = entry.CheckpointIndex
		r.CumulativeTime = entry.CumulativeTime
	}

	if loc, err := s.liveStore.GetLocation(ctx, userID, eventDetailID); err != nil {
		s.logger.Warn("location lookup failed", "userId", userID, "error", err)
	} else if loc != nil {
		r.Latitude = loc.CorrectedLat
		r.Longitude = loc.CorrectedLon
		r.DistanceCovered = loc.DistanceCovered
		t := loc.LastUpdated
		r.LastUpdated = &t
		r.FarthestCheckpointID = loc.FarthestCheckpointID
		if !ok {
			r.CheckpointIndex = loc.FarthestCheckpointIndex
			r.CumulativeTime = loc.CumulativeTime
		}
		r.ElapsedDisplay = presentation.FormatElapsed(loc.CumulativeTime)
		r.PaceDisplay = presentation.FormatPace(loc.CumulativeTime, loc.DistanceCovered)
	}

	return r
}
