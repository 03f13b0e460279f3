package livestore

import (
	"context"
	"sync"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/domain/race"
)

// MemoryStore is an in-process LiveStore with the same per-key serialization
// guarantee as the Redis store. Used by tests and the race simulator.
type MemoryStore struct {
	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	locations map[string]race.ParticipantLocation
	segments  map[string]map[string]race.SegmentRecord
}

var _ shared.LiveStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:     make(map[string]*sync.Mutex),
		locations: make(map[string]race.ParticipantLocation),
		segments:  make(map[string]map[string]race.SegmentRecord),
	}
}

func (s *MemoryStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *MemoryStore) GetLocation(_ context.Context, userID, eventDetailID string) (*race.ParticipantLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[locationKey(userID, eventDetailID)]
	if !ok {
		return nil, nil
	}
	copied := loc
	return &copied, nil
}

func (s *MemoryStore) UpdateLocation(_ context.Context, userID, eventDetailID string,
	fn func(prev *race.ParticipantLocation) (*race.ParticipantLocation, error)) (*race.ParticipantLocation, error) {

	key := locationKey(userID, eventDetailID)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	var prev *race.ParticipantLocation
	s.mu.Lock()
	if loc, ok := s.locations[key]; ok {
		copied := loc
		prev = &copied
	}
	s.mu.Unlock()

	next, err := fn(prev)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.locations[key] = *next
	s.mu.Unlock()
	return next, nil
}

func (s *MemoryStore) SetSegmentRecord(_ context.Context, userID, eventID, eventDetailID, checkpointID string, rec race.SegmentRecord) error {
	key := segmentRecordsKey(userID, eventID, eventDetailID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.segments[key] == nil {
		s.segments[key] = make(map[string]race.SegmentRecord)
	}
	s.segments[key][checkpointID] = rec
	return nil
}

func (s *MemoryStore) GetSegmentRecords(_ context.Context, userID, eventID, eventDetailID string) (map[string]race.SegmentRecord, error) {
	key := segmentRecordsKey(userID, eventID, eventDetailID)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]race.SegmentRecord, len(s.segments[key]))
	for cpID, rec := range s.segments[key] {
		out[cpID] = rec
	}
	return out, nil
}

func (s *MemoryStore) Reset(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := int64(len(s.locations) + len(s.segments))
	s.locations = make(map[string]race.ParticipantLocation)
	s.segments = make(map[string]map[string]race.SegmentRecord)
	return deleted, nil
}
