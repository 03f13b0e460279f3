package leaderboard

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
)

// RedisBoard implements shared.Leaderboard on a Redis sorted set per event
// detail. All operations are single-key and atomic on the server side.
type RedisBoard struct {
	client *redis.Client
	weight float64
}

var _ shared.Leaderboard = (*RedisBoard)(nil)

func NewRedisBoard(client *redis.Client, weight float64) *RedisBoard {
	if weight <= 0 {
		weight = DefaultScoreWeight
	}
	return &RedisBoard{client: client, weight: weight}
}

func (b *RedisBoard) Upsert(ctx context.Context, eventDetailID, userID string, checkpointIndex int, cumulativeTime float64) error {
	err := b.client.ZAdd(ctx, leaderboardKey(eventDetailID), redis.Z{
		Score:  Score(checkpointIndex, cumulativeTime, b.weight),
		Member: userID,
	}).Err()
	return apperrors.StoreUnavailable(err, "leaderboard upsert %s/%s", eventDetailID, userID)
}

func (b *RedisBoard) Top(ctx context.Context, eventDetailID string, n int) ([]shared.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := b.client.ZRevRangeWithScores(ctx, leaderboardKey(eventDetailID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "leaderboard top %s", eventDetailID)
	}
	return b.entries(zs, 1), nil
}

func (b *RedisBoard) Rank(ctx context.Context, eventDetailID, userID string) (*shared.LeaderboardEntry, error) {
	key := leaderboardKey(eventDetailID)
	rank, err := b.client.ZRevRank(ctx, key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("user %s not on leaderboard %s", userID, eventDetailID)
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "leaderboard rank %s/%s", eventDetailID, userID)
	}
	score, err := b.client.ZScore(ctx, key, userID).Result()
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "leaderboard score %s/%s", eventDetailID, userID)
	}
	entry := b.entry(userID, score, rank+1)
	return &entry, nil
}

func (b *RedisBoard) RangeAround(ctx context.Context, eventDetailID, userID string, before, after int) ([]shared.LeaderboardEntry, error) {
	key := leaderboardKey(eventDetailID)
	rank, err := b.client.ZRevRank(ctx, key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("user %s not on leaderboard %s", userID, eventDetailID)
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "leaderboard rank %s/%s", eventDetailID, userID)
	}

	start := rank - int64(before)
	if start < 0 {
		start = 0
	}
	zs, err := b.client.ZRevRangeWithScores(ctx, key, start, rank+int64(after)).Result()
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "leaderboard range %s", eventDetailID)
	}
	return b.entries(zs, start+1), nil
}

func (b *RedisBoard) Reset(ctx context.Context) (int64, error) {
	var deleted int64
	iter := b.client.Scan(ctx, 0, leaderboardKeyPattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := b.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, apperrors.StoreUnavailable(err, "delete %s", iter.Val())
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, apperrors.StoreUnavailable(err, "scan leaderboards")
	}
	return deleted, nil
}

func (b *RedisBoard) entry(userID string, score float64, rank int64) shared.LeaderboardEntry {
	cpIndex, cumulative := DecodeScore(score, b.weight)
	return shared.LeaderboardEntry{
		UserID:          userID,
		Rank:            rank,
		Score:           score,
		CheckpointIndex: cpIndex,
		CumulativeTime:  cumulative,
	}
}

func (b *RedisBoard) entries(zs []redis.Z, firstRank int64) []shared.LeaderboardEntry {
	out := make([]shared.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, b.entry(member, z.Score, firstRank+int64(i)))
	}
	return out
}
