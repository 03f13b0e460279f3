// Package coursecache serves built courses through a two-tier cache: a hot
// in-process map in front of a remote CourseStore, with materialization from
// the event detail's GPX file when both tiers miss. Concurrent misses for the
// same course collapse into a single build via singleflight.
package coursecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/course"
	"github.com/racepulse/server/pkg/domain/race"
)

// DefaultCourseTTLSeconds is how long a built course lives in the remote tier
// before re-materialization.
const DefaultCourseTTLSeconds = 86400

// Summary is the response shape of a course upload.
type Summary struct {
	EventID         string  `json:"eventId"`
	EventDetailID   string  `json:"eventDetailId"`
	TotalDistance   float64 `json:"totalDistance"`
	PointCount      int     `json:"pointCount"`
	CheckpointCount int     `json:"checkpointCount"`
}

// Config carries the cache tunables.
type Config struct {
	// TTLSeconds for the remote tier. Zero means DefaultCourseTTLSeconds.
	TTLSeconds int

	// Bucket, when set together with a BlobStore, archives uploaded GPX
	// bytes so courses can be rebuilt without the original request.
	Bucket string

	// BuildOptions is forwarded to course.Build.
	BuildOptions course.Options
}

func (c Config) ttl() int {
	if c.TTLSeconds > 0 {
		return c.TTLSeconds
	}
	return DefaultCourseTTLSeconds
}

// Cache is the course access point for the rest of the core.
type Cache struct {
	store     shared.CourseStore
	readModel shared.ReadModel
	fetcher   shared.ObjectFetcher
	blobs     shared.BlobStore
	logger    *slog.Logger
	cfg       Config

	mu  sync.RWMutex
	hot map[string]*race.Course

	group singleflight.Group

	now func() time.Time
}

func New(store shared.CourseStore, readModel shared.ReadModel, fetcher shared.ObjectFetcher, blobs shared.BlobStore, logger *slog.Logger, cfg Config) *Cache {
	return &Cache{
		store:     store,
		readModel: readModel,
		fetcher:   fetcher,
		blobs:     blobs,
		logger:    logger,
		cfg:       cfg,
		hot:       make(map[string]*race.Course),
		now:       time.Now,
	}
}

func cacheKey(eventID, eventDetailID string) string {
	return eventID + ":" + eventDetailID
}

// UploadCourse builds a course from raw GPX bytes, stores it in both tiers and
// archives the original bytes when a blob store is configured. The previous
// course for the pair, if any, is replaced.
func (c *Cache) UploadCourse(ctx context.Context, eventID, eventDetailID string, gpxBytes []byte) (*Summary, error) {
	if eventID == "" || eventDetailID == "" {
		return nil, apperrors.InvalidInput("eventId and eventDetailId are required")
	}
	if len(gpxBytes) == 0 {
		return nil, apperrors.InvalidInput("gpx file is empty")
	}

	built, err := course.Build(eventID, eventDetailID, gpxBytes, c.cfg.BuildOptions)
	if err != nil {
		return nil, err
	}

	if err := c.store.SetCourse(ctx, built, c.cfg.ttl()); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.hot[cacheKey(eventID, eventDetailID)] = built
	c.mu.Unlock()

	// Archival is best-effort: the course is already live.
	if c.blobs != nil && c.cfg.Bucket != "" {
		object := fmt.Sprintf("%s/%s/%s.gpx", shared.CourseBucketPrefix, eventID, eventDetailID)
		if err := c.blobs.Write(ctx, c.cfg.Bucket, object, gpxBytes); err != nil {
			c.logger.Warn("failed to archive gpx upload",
				"eventId", eventID, "eventDetailId", eventDetailID, "error", err)
		}
	}

	c.logger.Info("course uploaded",
		"eventId", eventID,
		"eventDetailId", eventDetailID,
		"totalDistance", built.TotalDistance,
		"points", len(built.Points),
		"checkpoints", len(built.Checkpoints()))

	return &Summary{
		EventID:         eventID,
		EventDetailID:   eventDetailID,
		TotalDistance:   built.TotalDistance,
		PointCount:      len(built.Points),
		CheckpointCount: len(built.Checkpoints()),
	}, nil
}

// fresh reports whether a hot entry is still within the cache TTL. Entries
// older than the TTL fall through to the remote tier, so a long-lived process
// eventually sees re-uploads it was never told about.
func (c *Cache) fresh(course *race.Course) bool {
	return c.now().Sub(course.CreatedAt) < time.Duration(c.cfg.ttl())*time.Second
}

// GetCourse returns the course for the pair, checking the hot tier, then the
// remote tier, then materializing from the event detail's GPX file.
func (c *Cache) GetCourse(ctx context.Context, eventID, eventDetailID string) (*race.Course, error) {
	key := cacheKey(eventID, eventDetailID)

	c.mu.RLock()
	if hit := c.hot[key]; hit != nil && c.fresh(hit) {
		c.mu.RUnlock()
		return hit, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.load(ctx, eventID, eventDetailID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*race.Course), nil
}

func (c *Cache) load(ctx context.Context, eventID, eventDetailID string) (*race.Course, error) {
	if stored, err := c.store.GetCourse(ctx, eventID, eventDetailID); err != nil {
		c.logger.Warn("course store read failed, rebuilding",
			"eventId", eventID, "eventDetailId", eventDetailID, "error", err)
	} else if stored != nil {
		c.mu.Lock()
		c.hot[cacheKey(eventID, eventDetailID)] = stored
		c.mu.Unlock()
		return stored, nil
	}

	built, err := c.materialize(ctx, eventID, eventDetailID)
	if err != nil {
		return nil, err
	}

	if err := c.store.SetCourse(ctx, built, c.cfg.ttl()); err != nil {
		c.logger.Warn("failed to write rebuilt course to store",
			"eventId", eventID, "eventDetailId", eventDetailID, "error", err)
	}
	c.mu.Lock()
	c.hot[cacheKey(eventID, eventDetailID)] = built
	c.mu.Unlock()

	c.logger.Info("course materialized",
		"eventId", eventID, "eventDetailId", eventDetailID, "totalDistance", built.TotalDistance)
	return built, nil
}

func (c *Cache) materialize(ctx context.Context, eventID, eventDetailID string) (*race.Course, error) {
	detail, err := c.readModel.GetEventDetail(ctx, eventID, eventDetailID)
	if err != nil {
		return nil, err
	}
	if detail.GPXFileURL == "" {
		return nil, apperrors.NotFound("event detail %s/%s has no gpx file", eventID, eventDetailID)
	}

	// The fetcher already classifies failures (absent file vs unreachable
	// store), so its kind passes through untouched.
	gpxBytes, err := c.fetcher.Fetch(ctx, detail.GPXFileURL)
	if err != nil {
		return nil, err
	}

	return course.Build(eventID, eventDetailID, gpxBytes, c.cfg.BuildOptions)
}

// Invalidate drops the pair from both tiers. The next GetCourse rebuilds.
func (c *Cache) Invalidate(ctx context.Context, eventID, eventDetailID string) error {
	c.mu.Lock()
	delete(c.hot, cacheKey(eventID, eventDetailID))
	c.mu.Unlock()
	return c.store.DeleteCourse(ctx, eventID, eventDetailID)
}
