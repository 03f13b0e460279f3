package leaderboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreRoundTrip(t *testing.T) {
	tests := []struct {
		cpIndex    int
		cumulative float64
	}{
		{0, 0},
		{0, 10},
		{1, 10},
		{3, 900},
		{42, 14_399.5},
	}
	for _, tt := range tests {
		s := Score(tt.cpIndex, tt.cumulative, DefaultScoreWeight)
		cpIndex, cumulative := DecodeScore(s, DefaultScoreWeight)
		assert.Equal(t, tt.cpIndex, cpIndex, "score %f", s)
		assert.InDelta(t, tt.cumulative, cumulative, 1e-9, "score %f", s)
	}
}

func TestScore_CheckpointIndexDominates(t *testing.T) {
	// A slower runner one checkpoint ahead always outscores a fast one behind.
	ahead := Score(3, 999_999, DefaultScoreWeight)
	behind := Score(2, 1, DefaultScoreWeight)
	assert.Greater(t, ahead, behind)
}

func TestMemoryBoard_Ordering(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBoard(DefaultScoreWeight)

	// A leads at cp3; B and C share cp2 with B faster.
	require.NoError(t, b.Upsert(ctx, "det", "A", 3, 900))
	require.NoError(t, b.Upsert(ctx, "det", "B", 2, 800))
	require.NoError(t, b.Upsert(ctx, "det", "C", 2, 850))

	top, err := b.Top(ctx, "det", 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "A", top[0].UserID)
	assert.Equal(t, "B", top[1].UserID)
	assert.Equal(t, "C", top[2].UserID)
	assert.Equal(t, int64(1), top[0].Rank)
	assert.Equal(t, 3, top[0].CheckpointIndex)
	assert.Equal(t, 900.0, top[0].CumulativeTime)
}

func TestMemoryBoard_TopNonPositiveN(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBoard(DefaultScoreWeight)
	require.NoError(t, b.Upsert(ctx, "det", "A", 1, 100))

	for _, n := range []int{0, -1} {
		entries, err := b.Top(ctx, "det", n)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestMemoryBoard_UpsertReplacesScore(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBoard(DefaultScoreWeight)

	require.NoError(t, b.Upsert(ctx, "det", "A", 1, 100))
	require.NoError(t, b.Upsert(ctx, "det", "A", 2, 220))

	entry, err := b.Rank(ctx, "det", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Rank)
	assert.Equal(t, 2, entry.CheckpointIndex)
	assert.Equal(t, 220.0, entry.CumulativeTime)
}

func TestMemoryBoard_RangeAround(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBoard(DefaultScoreWeight)

	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for i, u := range users {
		require.NoError(t, b.Upsert(ctx, "det", u, 5-i, 100))
	}

	got, err := b.RangeAround(ctx, "det", "u3", 1, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "u2", got[0].UserID)
	assert.Equal(t, "u3", got[1].UserID)
	assert.Equal(t, "u4", got[2].UserID)

	// Window clamps at the top of the board.
	got, err = b.RangeAround(ctx, "det", "u1", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, "u1", got[0].UserID)
	require.Len(t, got, 2)
}

func TestMemoryBoard_RankUnknownUser(t *testing.T) {
	b := NewMemoryBoard(DefaultScoreWeight)
	_, err := b.Rank(context.Background(), "det", "ghost")
	assert.Error(t, err)
}
