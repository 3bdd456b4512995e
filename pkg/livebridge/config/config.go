// Package config loads the HCL configuration used by bakarr-watch and
// embedding applications.
//
// Example:
//
//	server {
//	  url            = "http://localhost:8989/api/events"
//	  transport      = "sse"
//	  api_key        = "secret"
//	  retry_interval = "5s"
//	}
//
//	notifications {
//	  min_level = "info"
//	}
//
//	cache {
//	  max_age        = "10m"
//	  sweep_schedule = "@every 1m"
//	}
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/robfig/cron/v3"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
)

const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"

	DefaultRetryInterval = 5 * time.Second
)

type Config struct {
	Server        ServerConfig         `hcl:"server,block"`
	Notifications *NotificationsConfig `hcl:"notifications,block"`
	Cache         *CacheConfig         `hcl:"cache,block"`

	retryInterval time.Duration
	cacheMaxAge   time.Duration
}

type ServerConfig struct {
	URL           string `hcl:"url"`
	Transport     string `hcl:"transport,optional"`
	APIKey        string `hcl:"api_key,optional"`
	RetryInterval string `hcl:"retry_interval,optional"`
}

type NotificationsConfig struct {
	MinLevel string `hcl:"min_level,optional"`
}

type CacheConfig struct {
	MaxAge        string `hcl:"max_age,optional"`
	SweepSchedule string `hcl:"sweep_schedule,optional"`
}

// Load reads and validates a configuration file. Defaults are applied before
// validation, so a file containing only the server URL is valid.
func Load(path string) (*Config, error) {
	var config Config
	if err := hclsimple.DecodeFile(path, nil, &config); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := config.normalize(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &config, nil
}

// LoadBytes parses configuration from memory; the filename only labels
// diagnostics and must carry an .hcl extension.
func LoadBytes(filename string, src []byte) (*Config, error) {
	var config Config
	if err := hclsimple.Decode(filename, src, nil, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) normalize() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server url is required")
	}

	if c.Server.Transport == "" {
		c.Server.Transport = TransportSSE
	}
	switch c.Server.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)",
			c.Server.Transport, TransportSSE, TransportWebSocket)
	}

	c.retryInterval = DefaultRetryInterval
	if c.Server.RetryInterval != "" {
		interval, err := time.ParseDuration(c.Server.RetryInterval)
		if err != nil {
			return fmt.Errorf("invalid retry_interval: %w", err)
		}
		if interval <= 0 {
			return fmt.Errorf("retry_interval must be positive, got %s", interval)
		}
		c.retryInterval = interval
	}

	if c.Notifications != nil && c.Notifications.MinLevel != "" {
		switch events.Level(c.Notifications.MinLevel) {
		case events.LevelInfo, events.LevelSuccess, events.LevelWarning, events.LevelError:
		default:
			return fmt.Errorf("unknown notifications min_level %q", c.Notifications.MinLevel)
		}
	}

	if c.Cache != nil {
		if c.Cache.MaxAge != "" {
			maxAge, err := time.ParseDuration(c.Cache.MaxAge)
			if err != nil {
				return fmt.Errorf("invalid cache max_age: %w", err)
			}
			c.cacheMaxAge = maxAge
		}
		if c.Cache.SweepSchedule != "" {
			if c.Cache.MaxAge == "" {
				return fmt.Errorf("cache sweep_schedule requires max_age")
			}
			if _, err := cron.ParseStandard(c.Cache.SweepSchedule); err != nil {
				return fmt.Errorf("invalid cache sweep_schedule: %w", err)
			}
		}
	}

	return nil
}

// RetryInterval returns the parsed reconnect delay.
func (c *Config) RetryInterval() time.Duration {
	return c.retryInterval
}

// CacheMaxAge returns the parsed cache entry lifetime, zero when unset.
func (c *Config) CacheMaxAge() time.Duration {
	return c.cacheMaxAge
}

// MinLevel returns the configured notification floor, LevelInfo when unset.
func (c *Config) MinLevel() events.Level {
	if c.Notifications == nil || c.Notifications.MinLevel == "" {
		return events.LevelInfo
	}
	return events.Level(c.Notifications.MinLevel)
}
