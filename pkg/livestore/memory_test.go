package livestore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racepulse/server/pkg/domain/race"
)

func TestMemoryStore_LocationRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	loc, err := s.GetLocation(ctx, "u1", "det")
	require.NoError(t, err)
	assert.Nil(t, loc, "absent record reads as nil")

	written, err := s.UpdateLocation(ctx, "u1", "det", func(prev *race.ParticipantLocation) (*race.ParticipantLocation, error) {
		assert.Nil(t, prev)
		return &race.ParticipantLocation{UserID: "u1", EventDetailID: "det", DistanceCovered: 120}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 120.0, written.DistanceCovered)

	loc, err = s.GetLocation(ctx, "u1", "det")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, 120.0, loc.DistanceCovered)
}

func TestMemoryStore_UpdateSerializesPerKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateLocation(ctx, "u1", "det", func(prev *race.ParticipantLocation) (*race.ParticipantLocation, error) {
				next := &race.ParticipantLocation{UserID: "u1", EventDetailID: "det"}
				if prev != nil {
					next.DistanceCovered = prev.DistanceCovered
				}
				next.DistanceCovered++
				return next, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loc, err := s.GetLocation(ctx, "u1", "det")
	require.NoError(t, err)
	assert.Equal(t, float64(writers), loc.DistanceCovered, "no increment may be lost")
}

func TestMemoryStore_SegmentRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetSegmentRecord(ctx, "u1", "evt", "det", "START", race.SegmentRecord{}))
	require.NoError(t, s.SetSegmentRecord(ctx, "u1", "evt", "det", "CP1", race.SegmentRecord{SegmentDuration: 10, CumulativeTime: 10}))
	require.NoError(t, s.SetSegmentRecord(ctx, "u1", "evt", "det", "CP2", race.SegmentRecord{SegmentDuration: 12, CumulativeTime: 22}))

	recs, err := s.GetSegmentRecords(ctx, "u1", "evt", "det")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	var sum float64
	for _, rec := range recs {
		sum += rec.SegmentDuration
	}
	assert.Equal(t, recs["CP2"].CumulativeTime, sum)
}

func TestMemoryStore_Reset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.UpdateLocation(ctx, "u1", "det", func(*race.ParticipantLocation) (*race.ParticipantLocation, error) {
		return &race.ParticipantLocation{UserID: "u1", RaceStartTime: time.Now()}, nil
	})
	require.NoError(t, err)
	require.NoError(t, s.SetSegmentRecord(ctx, "u1", "evt", "det", "START", race.SegmentRecord{}))

	n, err := s.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	loc, err := s.GetLocation(ctx, "u1", "det")
	require.NoError(t, err)
	assert.Nil(t, loc)
}
