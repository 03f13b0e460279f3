// Command race-sim runs a seeded virtual race against an in-process pipeline.
// It is the quickest way to sanity-check course files and correction tunables
// without standing up Redis or Firestore.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/racepulse/server/pkg/bootstrap"
	"github.com/racepulse/server/pkg/correction"
	"github.com/racepulse/server/pkg/course"
	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/leaderboard"
	"github.com/racepulse/server/pkg/livestore"
	"github.com/racepulse/server/pkg/presentation"
	"github.com/racepulse/server/pkg/simulator"
)

type fixedCourse struct{ c *race.Course }

func (f fixedCourse) GetCourse(context.Context, string, string) (*race.Course, error) {
	return f.c, nil
}

func main() {
	gpxPath := flag.String("gpx", "", "Path to the course GPX file")
	participants := flag.Int("participants", 10, "Number of virtual runners")
	speed := flag.Float64("speed", 3.0, "Base speed in m/s")
	tick := flag.Duration("tick", time.Second, "Simulated interval between fixes")
	posError := flag.Float64("error", 5.0, "Max injected GPS error in metres")
	seed := flag.Int64("seed", 1, "Random seed (same seed, same race)")
	quiet := flag.Bool("quiet", false, "Suppress per-component logs")
	flag.Parse()

	if *gpxPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	var logger *slog.Logger
	if *quiet {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = bootstrap.NewLogger("race-sim")
	}

	gpxBytes, err := os.ReadFile(*gpxPath)
	if err != nil {
		logger.Error("failed to read gpx", "path", *gpxPath, "error", err)
		os.Exit(1)
	}

	c, err := course.Build("sim-event", "sim-detail", gpxBytes, course.Options{})
	if err != nil {
		logger.Error("failed to build course", "error", err)
		os.Exit(1)
	}
	logger.Info("course built",
		"totalDistance", presentation.FormatDistance(c.TotalDistance),
		"points", len(c.Points),
		"checkpoints", len(c.Checkpoints()))

	board := leaderboard.NewMemoryBoard(leaderboard.DefaultScoreWeight)
	svc := correction.NewService(fixedCourse{c}, livestore.NewMemoryStore(), board, nil, logger, correction.Config{})

	sim, err := simulator.New(svc, c, logger, simulator.Config{
		EventID:       "sim-event",
		EventDetailID: "sim-detail",
		Participants:  *participants,
		BaseSpeed:     *speed,
		TickInterval:  *tick,
		PositionError: *posError,
		Seed:          *seed,
	})
	if err != nil {
		logger.Error("failed to build simulator", "error", err)
		os.Exit(1)
	}

	stats, err := sim.Run(context.Background())
	if err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("race finished",
		"participants", stats.Participants,
		"fixes", stats.FixesSent,
		"crossings", stats.Crossings,
		"unmatched", stats.Unmatched)

	top, err := board.Top(context.Background(), "sim-detail", 10)
	if err != nil {
		logger.Error("failed to read leaderboard", "error", err)
		os.Exit(1)
	}
	for _, e := range top {
		logger.Info("result",
			"rank", e.Rank,
			"userId", e.UserID,
			"cpIndex", e.CheckpointIndex,
			"time", presentation.FormatElapsed(e.CumulativeTime))
	}
}
