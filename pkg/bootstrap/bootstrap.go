// Package bootstrap centralizes configuration, logging and dependency wiring
// for every binary in the repo.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/correction"
	"github.com/racepulse/server/pkg/course"
	"github.com/racepulse/server/pkg/coursecache"
	"github.com/racepulse/server/pkg/eventdetail"
	"github.com/racepulse/server/pkg/infrastructure/database"
	"github.com/racepulse/server/pkg/infrastructure/objectstore"
	infrapubsub "github.com/racepulse/server/pkg/infrastructure/pubsub"
	"github.com/racepulse/server/pkg/infrastructure/sentry"
	infrastorage "github.com/racepulse/server/pkg/infrastructure/storage"
	"github.com/racepulse/server/pkg/leaderboard"
	"github.com/racepulse/server/pkg/livestore"
	"github.com/racepulse/server/pkg/matcher"
	"github.com/racepulse/server/pkg/progress"
)

// Config holds standard configuration for all services.
type Config struct {
	ProjectID     string
	Environment   string
	EnablePublish bool
	SentryDSN     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CourseBucket     string
	CourseTTLSeconds int

	InterpolationInterval      float64
	CheckpointDistanceInterval float64
	CaptureRadius              float64
	MatchDistanceThreshold     float64
	CorrectionDeadline         time.Duration
}

// LoadConfig reads configuration from environment variables, with production
// defaults for everything but project-specific identifiers.
func LoadConfig() *Config {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		projectID = shared.ProjectID // Fallback
	}

	return &Config{
		ProjectID:     projectID,
		Environment:   envString("ENVIRONMENT", "development"),
		EnablePublish: os.Getenv("ENABLE_PUBLISH") == "true",
		SentryDSN:     os.Getenv("SENTRY_DSN"),

		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		CourseBucket:     os.Getenv("COURSE_BUCKET"),
		CourseTTLSeconds: envInt("COURSE_TTL_SECONDS", coursecache.DefaultCourseTTLSeconds),

		InterpolationInterval:      envFloat("INTERPOLATION_INTERVAL_M", course.DefaultInterpolationInterval),
		CheckpointDistanceInterval: envFloat("CHECKPOINT_DISTANCE_INTERVAL_M", 0),
		CaptureRadius:              envFloat("CAPTURE_RADIUS_M", progress.DefaultCaptureRadius),
		MatchDistanceThreshold:     envFloat("MATCH_DISTANCE_THRESHOLD_M", matcher.DefaultConfig().MatchDistanceThreshold),
		CorrectionDeadline:         envDuration("CORRECTION_DEADLINE", correction.DefaultDeadline),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// GetSlogHandlerOptions returns standard handler options for GCP.
func GetSlogHandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Map standard keys to Cloud Logging keys
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{Key: "severity", Value: a.Value}
			}
			return a
		},
	}
}

// ComponentHandler wraps a slog.Handler to prepend [component] to the message.
type ComponentHandler struct {
	slog.Handler
	component string
}

// WithGroup implements slog.Handler
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{
		Handler:   h.Handler.WithGroup(name),
		component: h.component,
	}
}

// WithAttrs implements slog.Handler
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newComp := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			newComp = a.Value.String()
		}
	}
	return &ComponentHandler{
		Handler:   h.Handler.WithAttrs(attrs),
		component: newComp,
	}
}

// Handle implements slog.Handler
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	comp := h.component

	// Check if component is overridden in the record attributes
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			comp = a.Value.String()
			return false // stop
		}
		return true
	})

	if comp != "" {
		newMsg := fmt.Sprintf("[%s] %s", comp, r.Message)
		// Keep r.Time, r.Level and r.PC so the original metadata survives.
		newRecord := slog.NewRecord(r.Time, r.Level, newMsg, r.PC)
		// The component attribute stays in the structured payload.
		r.Attrs(func(a slog.Attr) bool {
			newRecord.AddAttrs(a)
			return true
		})
		r = newRecord
	}

	return h.Handler.Handle(ctx, r)
}

// InitLogger configures structured logging with Cloud Logging compatible keys.
func InitLogger() {
	opts := GetSlogHandlerOptions(slog.LevelInfo)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(&ComponentHandler{Handler: handler})
	slog.SetDefault(logger)
}

// NewLogger creates a configured logger instance.
func NewLogger(serviceName string) *slog.Logger {
	logLevelStr := os.Getenv("LOG_LEVEL")
	var level slog.Level
	switch strings.ToLower(logLevelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := GetSlogHandlerOptions(level)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(&ComponentHandler{Handler: handler}).With("service", serviceName)
}

// Service holds the initialized dependency graph.
type Service struct {
	Config *Config
	Logger *slog.Logger

	Redis     *redis.Client
	ReadModel shared.ReadModel
	Blobs     shared.BlobStore
	Pub       shared.Publisher

	LiveStore shared.LiveStore
	Board     shared.Leaderboard
	Courses   *coursecache.Cache

	Correction  *correction.Service
	EventDetail *eventdetail.Service
}

// NewService initializes all standard dependencies.
func NewService(ctx context.Context, serviceName string) (*Service, error) {
	InitLogger()
	cfg := LoadConfig()
	logger := NewLogger(serviceName)

	logger.Info("initializing service", "project_id", cfg.ProjectID, "environment", cfg.Environment)

	if err := sentry.Init(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		ServerName:  serviceName,
	}, logger); err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis init failed", "addr", cfg.RedisAddr, "error", err)
		return nil, fmt.Errorf("redis init: %w", err)
	}

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("firestore init failed", "error", err)
		return nil, fmt.Errorf("firestore init: %w", err)
	}
	readModel := database.NewFirestoreAdapter(fsClient)

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		return nil, fmt.Errorf("storage init: %w", err)
	}
	blobs := &infrastorage.StorageAdapter{Client: gcsClient}

	var pub shared.Publisher
	if cfg.EnablePublish {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("pubsub init failed", "error", err)
			return nil, fmt.Errorf("pubsub init: %w", err)
		}
		pub = &infrapubsub.PubSubAdapter{Client: psClient}
		logger.Info("pub/sub: real client (ENABLE_PUBLISH=true)")
	} else {
		pub = &infrapubsub.LogPublisher{Logger: logger}
		logger.Info("pub/sub: log publisher")
	}

	liveStore := livestore.NewRedisStore(redisClient, logger)
	board := leaderboard.NewRedisBoard(redisClient, leaderboard.DefaultScoreWeight)

	fetcher := objectstore.NewFetcher(nil, blobs, logger)
	courses := coursecache.New(
		coursecache.NewRedisCourseStore(redisClient),
		readModel, fetcher, blobs, logger,
		coursecache.Config{
			TTLSeconds: cfg.CourseTTLSeconds,
			Bucket:     cfg.CourseBucket,
			BuildOptions: course.Options{
				InterpolationInterval:      cfg.InterpolationInterval,
				CheckpointDistanceInterval: cfg.CheckpointDistanceInterval,
			},
		})

	mcfg := matcher.DefaultConfig()
	mcfg.MatchDistanceThreshold = cfg.MatchDistanceThreshold
	correctionSvc := correction.NewService(courses, liveStore, board, pub, logger, correction.Config{
		Deadline:      cfg.CorrectionDeadline,
		CaptureRadius: cfg.CaptureRadius,
		Matcher:       mcfg,
	})

	return &Service{
		Config:      cfg,
		Logger:      logger,
		Redis:       redisClient,
		ReadModel:   readModel,
		Blobs:       blobs,
		Pub:         pub,
		LiveStore:   liveStore,
		Board:       board,
		Courses:     courses,
		Correction:  correctionSvc,
		EventDetail: eventdetail.NewService(readModel, liveStore, board, logger),
	}, nil
}
