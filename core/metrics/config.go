package metrics

import (
	"fmt"

	"github.com/kilianp07/tendering/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	PrometheusPort int                    `json:"prometheus_port" yaml:"prometheus_port"`
}

// Validate checks the configured port.
func (c Config) Validate() error {
	if c.PrometheusPort < 0 || c.PrometheusPort > 65535 {
		return fmt.Errorf("metrics: invalid prometheus_port %d", c.PrometheusPort)
	}
	return nil
}
