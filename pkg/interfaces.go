package shared

import (
	"context"

	"github.com/racepulse/server/pkg/domain/race"
)

// --- Live state ---

// LiveStore holds the per-participant live records. Implementations must make
// UpdateLocation an atomic read-modify-write per (userID, eventDetailID) key;
// updates for different participants are independent.
type LiveStore interface {
	// GetLocation returns the latest record, or nil when none exists yet.
	GetLocation(ctx context.Context, userID, eventDetailID string) (*race.ParticipantLocation, error)

	// UpdateLocation applies fn to the current record (nil when absent) and
	// persists the result atomically. On contention it retries a bounded
	// number of times and then fails with a Conflict error.
	UpdateLocation(ctx context.Context, userID, eventDetailID string,
		fn func(prev *race.ParticipantLocation) (*race.ParticipantLocation, error)) (*race.ParticipantLocation, error)

	// SetSegmentRecord appends the split for one crossed checkpoint.
	SetSegmentRecord(ctx context.Context, userID, eventID, eventDetailID, checkpointID string, rec race.SegmentRecord) error

	// GetSegmentRecords returns all splits recorded so far, keyed by
	// checkpoint id.
	GetSegmentRecords(ctx context.Context, userID, eventID, eventDetailID string) (map[string]race.SegmentRecord, error)

	// Reset deletes every record owned by the store and reports how many.
	Reset(ctx context.Context) (int64, error)
}

// --- Leaderboard ---

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	UserID          string  `json:"userId"`
	Rank            int64   `json:"rank"`
	Score           float64 `json:"score"`
	CheckpointIndex int     `json:"cpIndex"`
	CumulativeTime  float64 `json:"cumulativeTime"`
}

// Leaderboard is the per-event-detail ranking. Higher checkpoint index always
// outranks lower; ties resolve by lower cumulative time.
type Leaderboard interface {
	Upsert(ctx context.Context, eventDetailID, userID string, checkpointIndex int, cumulativeTime float64) error
	Top(ctx context.Context, eventDetailID string, n int) ([]LeaderboardEntry, error)
	Rank(ctx context.Context, eventDetailID, userID string) (*LeaderboardEntry, error)
	RangeAround(ctx context.Context, eventDetailID, userID string, before, after int) ([]LeaderboardEntry, error)
	Reset(ctx context.Context) (int64, error)
}

// --- Course persistence ---

// CourseStore is the remote tier of the course cache.
type CourseStore interface {
	GetCourse(ctx context.Context, eventID, eventDetailID string) (*race.Course, error)
	SetCourse(ctx context.Context, c *race.Course, ttlSeconds int) error
	DeleteCourse(ctx context.Context, eventID, eventDetailID string) error
}

// --- Storage ---

// BlobStore persists raw objects (uploaded GPX files).
type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// ObjectFetcher resolves a URL to bytes. Authentication is the fetcher's
// problem, not the core's.
type ObjectFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// --- Relational read-model ---

// ReadModel exposes the slices of the relational store the core reads. The
// core never writes through this interface.
type ReadModel interface {
	GetEvent(ctx context.Context, eventID string) (*race.Event, error)
	GetEventDetail(ctx context.Context, eventID, eventDetailID string) (*race.EventDetail, error)
	ListEventDetails(ctx context.Context, eventID string) ([]*race.EventDetail, error)
	GetParticipant(ctx context.Context, userID string) (*race.Participant, error)
	// ListTrackedUserIDs returns the user ids the given user follows for the
	// event detail.
	ListTrackedUserIDs(ctx context.Context, userID, eventDetailID string) ([]string, error)
}

// --- Messaging ---

// Publisher pushes raw payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topicID string, data []byte) (string, error)
}
