// Package policy holds the process-wide, hot-updatable tunables that
// the request pipeline consults on every decision: the block/throttle
// thresholds, throttle delay ceiling, ban duration, and backend URL.
package policy

import (
	"errors"
	"sync"
)

// Config is a snapshot of the current policy. Values are always
// returned by copy; callers never hold a reference into guarded
// storage.
type Config struct {
	ThresholdBlock     float64
	ThresholdThrottle  float64
	ThrottleMaxDelayMs int
	BanDurationSeconds int
	BackendURL         string
}

// Defaults returns the out-of-the-box policy thresholds.
func Defaults() Config {
	return Config{
		ThresholdBlock:     0.8,
		ThresholdThrottle:  0.5,
		ThrottleMaxDelayMs: 3000,
		BanDurationSeconds: 300,
		BackendURL:         "",
	}
}

// ErrThrottleAboveBlock is returned by Set when the candidate config
// would let throttle kick in above the block threshold.
var ErrThrottleAboveBlock = errors.New("policy: threshold_throttle must be <= threshold_block")

// Store guards a Config behind a read/write lock: writers are rare
// (management-endpoint calls), readers are on every request's hot
// path.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore returns a Store seeded with cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Get returns a copy of the current config.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set validates and clamps cfg, then installs it. On validation
// failure the prior value is retained and the error is returned.
func (s *Store) Set(cfg Config) error {
	cfg.ThresholdBlock = clamp01(cfg.ThresholdBlock)
	cfg.ThresholdThrottle = clamp01(cfg.ThresholdThrottle)
	if cfg.ThresholdThrottle > cfg.ThresholdBlock {
		return ErrThrottleAboveBlock
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// SetBackendURL updates only the backend URL, leaving thresholds
// untouched. Used by both the BACKEND_URL startup override and the
// POST /api/config/backend endpoint.
func (s *Store) SetBackendURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.BackendURL = url
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
