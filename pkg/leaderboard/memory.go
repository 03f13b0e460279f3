package leaderboard

import (
	"context"
	"sort"
	"sync"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
)

// MemoryBoard is an in-process Leaderboard for tests and the simulator CLI.
// Equal scores order by ascending user id so results are deterministic.
type MemoryBoard struct {
	mu     sync.RWMutex
	boards map[string]map[string]float64
	weight float64
}

var _ shared.Leaderboard = (*MemoryBoard)(nil)

func NewMemoryBoard(weight float64) *MemoryBoard {
	if weight <= 0 {
		weight = DefaultScoreWeight
	}
	return &MemoryBoard{boards: make(map[string]map[string]float64), weight: weight}
}

func (b *MemoryBoard) Upsert(_ context.Context, eventDetailID, userID string, checkpointIndex int, cumulativeTime float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.boards[eventDetailID] == nil {
		b.boards[eventDetailID] = make(map[string]float64)
	}
	b.boards[eventDetailID][userID] = Score(checkpointIndex, cumulativeTime, b.weight)
	return nil
}

func (b *MemoryBoard) ranked(eventDetailID string) []shared.LeaderboardEntry {
	board := b.boards[eventDetailID]
	entries := make([]shared.LeaderboardEntry, 0, len(board))
	for userID, score := range board {
		cpIndex, cumulative := DecodeScore(score, b.weight)
		entries = append(entries, shared.LeaderboardEntry{
			UserID:          userID,
			Score:           score,
			CheckpointIndex: cpIndex,
			CumulativeTime:  cumulative,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

func (b *MemoryBoard) Top(_ context.Context, eventDetailID string, n int) ([]shared.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.ranked(eventDetailID)
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries, nil
}

func (b *MemoryBoard) Rank(_ context.Context, eventDetailID, userID string) (*shared.LeaderboardEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.ranked(eventDetailID) {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, apperrors.NotFound("user %s not on leaderboard %s", userID, eventDetailID)
}

func (b *MemoryBoard) RangeAround(_ context.Context, eventDetailID, userID string, before, after int) ([]shared.LeaderboardEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.ranked(eventDetailID)
	idx := -1
	for i, e := range entries {
		if e.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperrors.NotFound("user %s not on leaderboard %s", userID, eventDetailID)
	}
	start := idx - before
	if start < 0 {
		start = 0
	}
	end := idx + after + 1
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end], nil
}

func (b *MemoryBoard) Reset(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	deleted := int64(len(b.boards))
	b.boards = make(map[string]map[string]float64)
	return deleted, nil
}
