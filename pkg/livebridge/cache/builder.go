package cache

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bakarr/livebridge/pkg/livebridge/o11y"
)

// Builder provides a fluent interface for building Cache instances.
type Builder struct {
	logger          *zap.Logger
	maxAge          time.Duration
	sweepSchedule   string
	metricsProvider o11y.MetricsProvider
}

func New() *Builder {
	return &Builder{
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger for the cache.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithMaxAge sets how long entries stay readable. Zero disables expiry.
func (b *Builder) WithMaxAge(maxAge time.Duration) *Builder {
	if maxAge > 0 {
		b.maxAge = maxAge
	}
	return b
}

// WithSweepSchedule sets a cron schedule ("@every 5m" style specs work) on
// which expired entries are physically removed. Requires WithMaxAge.
func (b *Builder) WithSweepSchedule(spec string) *Builder {
	b.sweepSchedule = spec
	return b
}

// WithMetrics sets the metrics provider for the cache.
func (b *Builder) WithMetrics(provider o11y.MetricsProvider) *Builder {
	b.metricsProvider = provider
	return b
}

// IsValid checks the builder configuration.
func (b *Builder) IsValid() error {
	if b.sweepSchedule != "" {
		if b.maxAge <= 0 {
			return fmt.Errorf("sweep schedule requires a max age")
		}
		if _, err := cron.ParseStandard(b.sweepSchedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", b.sweepSchedule, err)
		}
	}
	return nil
}

// Build creates the Cache and starts the sweep janitor when a schedule was
// configured. Callers owning a janitor-backed cache should call Stop on
// shutdown.
func (b *Builder) Build() (*Cache, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	c := &Cache{
		logger:        b.logger,
		maxAge:        b.maxAge,
		sweepSchedule: b.sweepSchedule,
		entries:       make(map[string]entry),
	}

	if b.metricsProvider != nil {
		c.invalidationCounter = b.metricsProvider.Counter("cache_invalidations_total")
		c.entryGauge = b.metricsProvider.Gauge("cache_entries")
	}

	if b.sweepSchedule != "" {
		c.janitor = cron.New()
		if _, err := c.janitor.AddFunc(b.sweepSchedule, func() { c.Sweep() }); err != nil {
			return nil, fmt.Errorf("schedule cache sweep: %w", err)
		}
		c.janitor.Start()
	}

	return c, nil
}
