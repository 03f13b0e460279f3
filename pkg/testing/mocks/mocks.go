// Package mocks provides hand-written test doubles for the shared interfaces.
// Each mock exposes function fields; unset fields fall back to a benign
// default so tests only configure the calls they care about.
package mocks

import (
	"context"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/domain/race"
)

// --- Mock LiveStore ---

type MockLiveStore struct {
	GetLocationFunc       func(ctx context.Context, userID, eventDetailID string) (*race.ParticipantLocation, error)
	UpdateLocationFunc    func(ctx context.Context, userID, eventDetailID string, fn func(prev *race.ParticipantLocation) (*race.ParticipantLocation, error)) (*race.ParticipantLocation, error)
	SetSegmentRecordFunc  func(ctx context.Context, userID, eventID, eventDetailID, checkpointID string, rec race.SegmentRecord) error
	GetSegmentRecordsFunc func(ctx context.Context, userID, eventID, eventDetailID string) (map[string]race.SegmentRecord, error)
	ResetFunc             func(ctx context.Context) (int64, error)
}

var _ shared.LiveStore = (*MockLiveStore)(nil)

func (m *MockLiveStore) GetLocation(ctx context.Context, userID, eventDetailID string) (*race.ParticipantLocation, error) {
	if m.GetLocationFunc != nil {
		return m.GetLocationFunc(ctx, userID, eventDetailID)
	}
	return nil, nil
}

func (m *MockLiveStore) UpdateLocation(ctx context.Context, userID, eventDetailID string, fn func(prev *race.ParticipantLocation) (*race.ParticipantLocation, error)) (*race.ParticipantLocation, error) {
	if m.UpdateLocationFunc != nil {
		return m.UpdateLocationFunc(ctx, userID, eventDetailID, fn)
	}
	return fn(nil)
}

func (m *MockLiveStore) SetSegmentRecord(ctx context.Context, userID, eventID, eventDetailID, checkpointID string, rec race.SegmentRecord) error {
	if m.SetSegmentRecordFunc != nil {
		return m.SetSegmentRecordFunc(ctx, userID, eventID, eventDetailID, checkpointID, rec)
	}
	return nil
}

func (m *MockLiveStore) GetSegmentRecords(ctx context.Context, userID, eventID, eventDetailID string) (map[string]race.SegmentRecord, error) {
	if m.GetSegmentRecordsFunc != nil {
		return m.GetSegmentRecordsFunc(ctx, userID, eventID, eventDetailID)
	}
	return map[string]race.SegmentRecord{}, nil
}

func (m *MockLiveStore) Reset(ctx context.Context) (int64, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx)
	}
	return 0, nil
}

// --- Mock Leaderboard ---

type MockLeaderboard struct {
	UpsertFunc      func(ctx context.Context, eventDetailID, userID string, checkpointIndex int, cumulativeTime float64) error
	TopFunc         func(ctx context.Context, eventDetailID string, n int) ([]shared.LeaderboardEntry, error)
	RankFunc        func(ctx context.Context, eventDetailID, userID string) (*shared.LeaderboardEntry, error)
	RangeAroundFunc func(ctx context.Context, eventDetailID, userID string, before, after int) ([]shared.LeaderboardEntry, error)
	ResetFunc       func(ctx context.Context) (int64, error)

	// Upserts records every Upsert call for assertion convenience.
	Upserts []MockUpsert
}

type MockUpsert struct {
	EventDetailID   string
	UserID          string
	CheckpointIndex int
	CumulativeTime  float64
}

var _ shared.Leaderboard = (*MockLeaderboard)(nil)

func (m *MockLeaderboard) Upsert(ctx context.Context, eventDetailID, userID string, checkpointIndex int, cumulativeTime float64) error {
	m.Upserts = append(m.Upserts, MockUpsert{eventDetailID, userID, checkpointIndex, cumulativeTime})
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, eventDetailID, userID, checkpointIndex, cumulativeTime)
	}
	return nil
}

func (m *MockLeaderboard) Top(ctx context.Context, eventDetailID string, n int) ([]shared.LeaderboardEntry, error) {
	if m.TopFunc != nil {
		return m.TopFunc(ctx, eventDetailID, n)
	}
	return nil, nil
}

func (m *MockLeaderboard) Rank(ctx context.Context, eventDetailID, userID string) (*shared.LeaderboardEntry, error) {
	if m.RankFunc != nil {
		return m.RankFunc(ctx, eventDetailID, userID)
	}
	return nil, apperrors.NotFound("user %s not on leaderboard %s", userID, eventDetailID)
}

func (m *MockLeaderboard) RangeAround(ctx context.Context, eventDetailID, userID string, before, after int) ([]shared.LeaderboardEntry, error) {
	if m.RangeAroundFunc != nil {
		return m.RangeAroundFunc(ctx, eventDetailID, userID, before, after)
	}
	return nil, nil
}

func (m *MockLeaderboard) Reset(ctx context.Context) (int64, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx)
	}
	return 0, nil
}

// --- Mock CourseStore ---

type MockCourseStore struct {
	GetCourseFunc    func(ctx context.Context, eventID, eventDetailID string) (*race.Course, error)
	SetCourseFunc    func(ctx context.Context, c *race.Course, ttlSeconds int) error
	DeleteCourseFunc func(ctx context.Context, eventID, eventDetailID string) error
}

var _ shared.CourseStore = (*MockCourseStore)(nil)

func (m *MockCourseStore) GetCourse(ctx context.Context, eventID, eventDetailID string) (*race.Course, error) {
	if m.GetCourseFunc != nil {
		return m.GetCourseFunc(ctx, eventID, eventDetailID)
	}
	return nil, nil
}

func (m *MockCourseStore) SetCourse(ctx context.Context, c *race.Course, ttlSeconds int) error {
	if m.SetCourseFunc != nil {
		return m.SetCourseFunc(ctx, c, ttlSeconds)
	}
	return nil
}

func (m *MockCourseStore) DeleteCourse(ctx context.Context, eventID, eventDetailID string) error {
	if m.DeleteCourseFunc != nil {
		return m.DeleteCourseFunc(ctx, eventID, eventDetailID)
	}
	return nil
}

// --- Mock Storage ---

type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
}

var _ shared.BlobStore = (*MockBlobStore)(nil)

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}

func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}

type MockObjectFetcher struct {
	FetchFunc func(ctx context.Context, url string) ([]byte, error)
}

var _ shared.ObjectFetcher = (*MockObjectFetcher)(nil)

func (m *MockObjectFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, url)
	}
	return nil, apperrors.NotFound("no fetcher configured for %s", url)
}

// --- Mock ReadModel ---

type MockReadModel struct {
	GetEventFunc           func(ctx context.Context, eventID string) (*race.Event, error)
	GetEventDetailFunc     func(ctx context.Context, eventID, eventDetailID string) (*race.EventDetail, error)
	ListEventDetailsFunc   func(ctx context.Context, eventID string) ([]*race.EventDetail, error)
	GetParticipantFunc     func(ctx context.Context, userID string) (*race.Participant, error)
	ListTrackedUserIDsFunc func(ctx context.Context, userID, eventDetailID string) ([]string, error)
}

var _ shared.ReadModel = (*MockReadModel)(nil)

func (m *MockReadModel) GetEvent(ctx context.Context, eventID string) (*race.Event, error) {
	if m.GetEventFunc != nil {
		return m.GetEventFunc(ctx, eventID)
	}
	return nil, apperrors.NotFound("event %s", eventID)
}

func (m *MockReadModel) GetEventDetail(ctx context.Context, eventID, eventDetailID string) (*race.EventDetail, error) {
	if m.GetEventDetailFunc != nil {
		return m.GetEventDetailFunc(ctx, eventID, eventDetailID)
	}
	return nil, apperrors.NotFound("event detail %s/%s", eventID, eventDetailID)
}

func (m *MockReadModel) ListEventDetails(ctx context.Context, eventID string) ([]*race.EventDetail, error) {
	if m.ListEventDetailsFunc != nil {
		return m.ListEventDetailsFunc(ctx, eventID)
	}
	return nil, nil
}

func (m *MockReadModel) GetParticipant(ctx context.Context, userID string) (*race.Participant, error) {
	if m.GetParticipantFunc != nil {
		return m.GetParticipantFunc(ctx, userID)
	}
	return nil, apperrors.NotFound("participant %s", userID)
}

func (m *MockReadModel) ListTrackedUserIDs(ctx context.Context, userID, eventDetailID string) ([]string, error) {
	if m.ListTrackedUserIDsFunc != nil {
		return m.ListTrackedUserIDsFunc(ctx, userID, eventDetailID)
	}
	return nil, nil
}

// --- Mock Publisher ---

type MockPublisher struct {
	PublishFunc func(ctx context.Context, topicID string, data []byte) (string, error)

	// Published records every call for assertion convenience.
	Published []PublishedMessage
}

type PublishedMessage struct {
	TopicID string
	Data    []byte
}

var _ shared.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	m.Published = append(m.Published, PublishedMessage{TopicID: topicID, Data: data})
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topicID, data)
	}
	return "msg-id", nil
}
