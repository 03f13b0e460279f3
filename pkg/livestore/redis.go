// Package livestore persists per-participant live state: the latest corrected
// location and per-checkpoint split records. The Redis implementation is the
// production store; the in-memory one backs tests and the simulator CLI.
package livestore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/domain/race"
)

// casAttempts bounds the optimistic-concurrency retry loop before the update
// surfaces as a Conflict.
const casAttempts = 3

// RedisStore implements shared.LiveStore on a Redis client. Locations are
// JSON strings written under WATCH so concurrent writers for the same
// participant serialize; segment records are hash fields keyed by checkpoint.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

var _ shared.LiveStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger.With("component", "livestore")}
}

func (s *RedisStore) GetLocation(ctx context.Context, userID, eventDetailID string) (*race.ParticipantLocation, error) {
	data, err := s.client.Get(ctx, locationKey(userID, eventDetailID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "get location %s", userID)
	}
	var loc race.ParticipantLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, apperrors.StoreUnavailable(err, "decode location %s", userID)
	}
	return &loc, nil
}

func (s *RedisStore) UpdateLocation(ctx context.Context, userID, eventDetailID string,
	fn func(prev *race.ParticipantLocation) (*race.ParticipantLocation, error)) (*race.ParticipantLocation, error) {

	key := locationKey(userID, eventDetailID)
	var updated *race.ParticipantLocation

	txn := func(tx *redis.Tx) error {
		var prev *race.ParticipantLocation
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// first fix for this participant
		case err != nil:
			return err
		default:
			prev = &race.ParticipantLocation{}
			if err := json.Unmarshal(data, prev); err != nil {
				return err
			}
		}

		next, err := fn(prev)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			updated = next
		}
		return err
	}

	for attempt := 1; attempt <= casAttempts; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("location CAS miss, retrying", "key", key, "attempt", attempt)
			continue
		}
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.StoreUnavailable(err, "update location %s", key)
	}
	return nil, apperrors.Conflict("location %s contended after %d attempts", key, casAttempts)
}

func (s *RedisStore) SetSegmentRecord(ctx context.Context, userID, eventID, eventDetailID, checkpointID string, rec race.SegmentRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return apperrors.StoreUnavailable(err, "encode segment record")
	}
	key := segmentRecordsKey(userID, eventID, eventDetailID)
	if err := s.client.HSet(ctx, key, checkpointID, payload).Err(); err != nil {
		return apperrors.StoreUnavailable(err, "set segment record %s/%s", key, checkpointID)
	}
	return nil
}

func (s *RedisStore) GetSegmentRecords(ctx context.Context, userID, eventID, eventDetailID string) (map[string]race.SegmentRecord, error) {
	key := segmentRecordsKey(userID, eventID, eventDetailID)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "get segment records %s", key)
	}
	out := make(map[string]race.SegmentRecord, len(fields))
	for cpID, raw := range fields {
		var rec race.SegmentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, apperrors.StoreUnavailable(err, "decode segment record %s/%s", key, cpID)
		}
		out[cpID] = rec
	}
	return out, nil
}

func (s *RedisStore) Reset(ctx context.Context) (int64, error) {
	var deleted int64
	for _, pattern := range []string{locationKeyPattern, segmentKeyPattern} {
		iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			n, err := s.client.Del(ctx, iter.Val()).Result()
			if err != nil {
				return deleted, apperrors.StoreUnavailable(err, "delete %s", iter.Val())
			}
			deleted += n
		}
		if err := iter.Err(); err != nil {
			return deleted, apperrors.StoreUnavailable(err, "scan %s", pattern)
		}
	}
	return deleted, nil
}
