// Package simulator drives virtual participants along a course and feeds their
// noisy fixes through the real correction pipeline. It exists for load and
// semantics testing: a deterministic seed reproduces an entire race.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/racepulse/server/pkg/correction"
	"github.com/racepulse/server/pkg/course"
	"github.com/racepulse/server/pkg/domain/race"
)

// MaxPositionError caps the injected GPS error regardless of configuration.
const MaxPositionError = 10.0

// metresPerDegreeLat is close enough for error injection at city latitudes.
const metresPerDegreeLat = 111_320.0

// Config describes one simulated race.
type Config struct {
	EventID       string
	EventDetailID string

	// Participants is the number of virtual users.
	Participants int

	// BaseSpeed is the nominal speed in m/s; each participant gets a factor
	// in [0.8, 1.2] drawn from the seeded generator.
	BaseSpeed float64

	// TickInterval is the simulated time between fixes.
	TickInterval time.Duration

	// PositionError is the maximum injected error in metres, capped at
	// MaxPositionError.
	PositionError float64

	// Seed makes runs reproducible. Zero seeds from the current time.
	Seed int64

	// Start anchors the simulated clock. Zero means time.Now.
	Start time.Time
}

func (c Config) positionError() float64 {
	return math.Min(math.Abs(c.PositionError), MaxPositionError)
}

// runner is one virtual participant.
type runner struct {
	userID   string
	speed    float64 // m/s
	distance float64
	finished bool
}

// Stats summarizes a finished simulation.
type Stats struct {
	Participants int
	Ticks        int
	FixesSent    int
	Crossings    int
	Finished     int
	Unmatched    int
}

// Corrector is the slice of the correction service the simulator drives.
type Corrector interface {
	CorrectLocation(ctx context.Context, req correction.Request) (*correction.Response, error)
}

// Simulator advances virtual runners tick by tick.
type Simulator struct {
	corrector Corrector
	course    *race.Course
	logger    *slog.Logger
	cfg       Config
	rng       *rand.Rand
	runners   []*runner
	clock     time.Time
}

func New(corrector Corrector, c *race.Course, logger *slog.Logger, cfg Config) (*Simulator, error) {
	if cfg.Participants <= 0 {
		return nil, fmt.Errorf("participants must be positive, got %d", cfg.Participants)
	}
	if cfg.BaseSpeed <= 0 {
		return nil, fmt.Errorf("base speed must be positive, got %f", cfg.BaseSpeed)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", cfg.TickInterval)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	start := cfg.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}

	runners := make([]*runner, cfg.Participants)
	for i := range runners {
		runners[i] = &runner{
			userID: fmt.Sprintf("sim-%s", uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d-%d", seed, i)))),
			speed:  cfg.BaseSpeed * (0.8 + 0.4*rng.Float64()),
		}
	}

	return &Simulator{
		corrector: corrector,
		course:    c,
		logger:    logger,
		cfg:       cfg,
		rng:       rng,
		runners:   runners,
		clock:     start,
	}, nil
}

// Tick advances every unfinished runner by one interval and sends its fix.
// It returns the number of fixes sent; zero means the field has finished.
func (s *Simulator) Tick(ctx context.Context, stats *Stats) (int, error) {
	s.clock = s.clock.Add(s.cfg.TickInterval)
	sent := 0

	for _, r := range s.runners {
		if r.finished {
			continue
		}
		r.distance += r.speed * s.cfg.TickInterval.Seconds()
		if r.distance >= s.course.TotalDistance {
			r.distance = s.course.TotalDistance
			r.finished = true
			stats.Finished++
		}

		lat, lon, bearing := course.LocationAtDistance(s.course, r.distance)
		lat, lon = s.jitter(lat, lon)

		speed := r.speed
		heading := bearing
		resp, err := s.corrector.CorrectLocation(ctx, correction.Request{
			UserID:        r.userID,
			EventID:       s.cfg.EventID,
			EventDetailID: s.cfg.EventDetailID,
			Fixes: []race.Fix{{
				Lat:       lat,
				Lon:       lon,
				Speed:     &speed,
				Heading:   &heading,
				Timestamp: race.FlexTime{Time: s.clock},
			}},
		})
		if err != nil {
			return sent, fmt.Errorf("correct %s: %w", r.userID, err)
		}
		sent++
		stats.FixesSent++
		stats.Crossings += len(resp.CheckpointReaches)
		if !resp.Matched {
			stats.Unmatched++
		}
	}

	stats.Ticks++
	return sent, nil
}

// Run ticks until every runner finishes or the context ends.
func (s *Simulator) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{Participants: len(s.runners)}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		sent, err := s.Tick(ctx, stats)
		if err != nil {
			return stats, err
		}
		if sent == 0 {
			s.logger.Info("simulation complete",
				"participants", stats.Participants,
				"ticks", stats.Ticks,
				"fixes", stats.FixesSent,
				"crossings", stats.Crossings,
				"unmatched", stats.Unmatched)
			return stats, nil
		}
	}
}

// jitter displaces a position by a uniform error within the configured radius.
func (s *Simulator) jitter(lat, lon float64) (float64, float64) {
	maxErr := s.cfg.positionError()
	if maxErr <= 0 {
		return lat, lon
	}
	dist := s.rng.Float64() * maxErr
	angle := s.rng.Float64() * 2 * math.Pi

	dLat := dist * math.Cos(angle) / metresPerDegreeLat
	dLon := dist * math.Sin(angle) / (metresPerDegreeLat * math.Cos(lat*math.Pi/180))
	return lat + dLat, lon + dLon
}
