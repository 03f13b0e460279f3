// Package leaderboard ranks participants per event detail. The whole ranking
// collapses into one numeric score so a sorted set can answer every query:
// S = cpIndex*W - cumulativeTime, with W large enough that checkpoint index
// always dominates cumulative time.
package leaderboard

import (
	"fmt"
	"math"
)

// DefaultScoreWeight exceeds any feasible race duration in seconds.
const DefaultScoreWeight = 1_000_000.0

// Score encodes (checkpointIndex, cumulativeTime) into a single sortable key.
func Score(checkpointIndex int, cumulativeTime, weight float64) float64 {
	return float64(checkpointIndex)*weight - cumulativeTime
}

// DecodeScore recovers the pair from a score. Valid for cumulative times in
// [0, weight), which the weight choice guarantees.
func DecodeScore(score, weight float64) (checkpointIndex int, cumulativeTime float64) {
	checkpointIndex = int(math.Ceil(score / weight))
	cumulativeTime = float64(checkpointIndex)*weight - score
	return checkpointIndex, cumulativeTime
}

func leaderboardKey(eventDetailID string) string {
	return fmt.Sprintf("leaderboard:%s", eventDetailID)
}

const leaderboardKeyPattern = "leaderboard:*"
