package coursecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/domain/race"
)

// RedisCourseStore is the remote tier: one JSON blob per course with a TTL so
// stale courses age out instead of accumulating.
type RedisCourseStore struct {
	client *redis.Client
}

var _ shared.CourseStore = (*RedisCourseStore)(nil)

func NewRedisCourseStore(client *redis.Client) *RedisCourseStore {
	return &RedisCourseStore{client: client}
}

func courseKey(eventID, eventDetailID string) string {
	return fmt.Sprintf("course:%s:%s", eventID, eventDetailID)
}

func (s *RedisCourseStore) GetCourse(ctx context.Context, eventID, eventDetailID string) (*race.Course, error) {
	raw, err := s.client.Get(ctx, courseKey(eventID, eventDetailID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "get course %s/%s", eventID, eventDetailID)
	}
	var c race.Course
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, apperrors.StoreUnavailable(err, "decode course %s/%s", eventID, eventDetailID)
	}
	return &c, nil
}

func (s *RedisCourseStore) SetCourse(ctx context.Context, c *race.Course, ttlSeconds int) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return apperrors.StoreUnavailable(err, "encode course %s/%s", c.EventID, c.EventDetailID)
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	err = s.client.Set(ctx, courseKey(c.EventID, c.EventDetailID), raw, ttl).Err()
	return apperrors.StoreUnavailable(err, "set course %s/%s", c.EventID, c.EventDetailID)
}

func (s *RedisCourseStore) DeleteCourse(ctx context.Context, eventID, eventDetailID string) error {
	err := s.client.Del(ctx, courseKey(eventID, eventDetailID)).Err()
	return apperrors.StoreUnavailable(err, "delete course %s/%s", eventID, eventDetailID)
}
