package sim

import (
	"errors"
	"runtime"

	"github.com/kelseyhightower/envconfig"
)

// Config validation errors
var (
	ErrNumAgents     = errors.New("num_agents must be positive")
	ErrSpawnExtents  = errors.New("spawn_extents must be positive")
	ErrCellFactor    = errors.New("cell_size_factor must be positive")
	ErrSeekRadius    = errors.New("seek_radius must be positive and at least the flee and align radii")
	ErrVelocityRange = errors.New("velocity clamps need 0 <= min_vel <= max_vel")
	ErrMaxAccel      = errors.New("max_accel must be positive")
	ErrQueueCapacity = errors.New("queue_capacity must cover the per-frame submission burst")
	ErrArenaSize     = errors.New("arena sizes must be positive")
	ErrMinDT         = errors.New("min_dt must be positive")
)

// Config carries every process-wide simulation parameter. Supplied at
// init; nothing here changes at runtime.
type Config struct {
	NumAgents    int     `split_words:"true" default:"5000"`
	SpawnExtents float32 `split_words:"true" default:"1.0"`

	// CellSizeFactor scales the query radius into the hash cell size.
	// Near 2 trades grid memory against candidate tightness.
	CellSizeFactor float32 `split_words:"true" default:"2.0"`

	SeekRadius  float32 `split_words:"true" default:"0.25"`
	FleeRadius  float32 `split_words:"true" default:"0.15"`
	AlignRadius float32 `split_words:"true" default:"0.25"`

	MinVel   float32 `split_words:"true" default:"0.15"`
	MaxVel   float32 `split_words:"true" default:"0.5"`
	MaxAccel float32 `split_words:"true" default:"0.25"`

	// Workers of zero selects the hardware thread count.
	Workers       int `split_words:"true" default:"0"`
	QueueCapacity int `split_words:"true" default:"1024"`

	ArenaBytesPerWorker uint32 `split_words:"true" default:"8388608"`
	HashArenaBytes      uint32 `split_words:"true" default:"67108864"`

	// MinDT is the lower clamp on the frame delta; there is no upper
	// clamp, callers that need one clamp before stepping.
	MinDT float32 `envconfig:"MIN_DT" default:"0.004"`

	BoidScale float32 `split_words:"true" default:"0.1"`

	// MetricsAddr enables the Prometheus listener when non-empty.
	MetricsAddr string `split_words:"true" default:""`

	Seed int64 `default:"1"`
}

// Load reads SWARM_* environment variables into a validated Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("swarm", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns an error if invalid
func (c Config) Validate() error {
	if c.NumAgents <= 0 {
		return ErrNumAgents
	}
	if c.SpawnExtents <= 0 {
		return ErrSpawnExtents
	}
	if c.CellSizeFactor <= 0 {
		return ErrCellFactor
	}
	if c.SeekRadius <= 0 || c.SeekRadius < c.FleeRadius || c.SeekRadius < c.AlignRadius {
		return ErrSeekRadius
	}
	if c.MinVel < 0 || c.MaxVel < c.MinVel {
		return ErrVelocityRange
	}
	if c.MaxAccel <= 0 {
		return ErrMaxAccel
	}
	if c.QueueCapacity <= 0 {
		return ErrQueueCapacity
	}
	if c.ArenaBytesPerWorker == 0 || c.HashArenaBytes == 0 {
		return ErrArenaSize
	}
	if c.MinDT <= 0 {
		return ErrMinDT
	}
	return nil
}

// CellSize derives the hash cell edge from the factor and query radius.
func (c Config) CellSize() float32 {
	return c.CellSizeFactor * c.SeekRadius
}
