package notify

import (
	"fmt"
	"time"

	"github.com/kilianp07/tendering/core/factory"
)

// Config controls delivery of outbound events.
type Config struct {
	MaxRetries    int                    `json:"max_retries"`
	BaseBackoffMS int                    `json:"base_backoff_ms"`
	MaxBackoffMS  int                    `json:"max_backoff_ms"`
	Workers       int                    `json:"workers"`
	QueueSize     int                    `json:"queue_size"`
	Publishers    []factory.ModuleConfig `json:"publishers"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoffMS <= 0 {
		c.BaseBackoffMS = 200
	}
	if c.MaxBackoffMS <= 0 {
		c.MaxBackoffMS = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Validate checks value consistency.
func (c Config) Validate() error {
	if c.MaxBackoffMS > 0 && c.BaseBackoffMS > c.MaxBackoffMS {
		return fmt.Errorf("notify: base_backoff_ms %d exceeds max_backoff_ms %d", c.BaseBackoffMS, c.MaxBackoffMS)
	}
	return nil
}

// Backoff returns the wait before retry number attempt+1.
func (c Config) Backoff(attempt int) time.Duration {
	base := time.Duration(c.BaseBackoffMS) * time.Millisecond
	limit := time.Duration(c.MaxBackoffMS) * time.Millisecond
	if attempt > 30 {
		return limit
	}
	d := base * time.Duration(1<<attempt)
	if d > limit || d <= 0 {
		return limit
	}
	return d
}
