package metrics_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/tendering/core/factory"
	metrics "github.com/kilianp07/tendering/core/metrics"
	_ "github.com/kilianp07/tendering/infra/metrics"
)

func TestMetricsFactoryBuiltins(t *testing.T) {
	s, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.NotNil(t, s)

	s, err = metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	_, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}})
	assert.Error(t, err)
}

func TestMetricsConfigDecodeYAML(t *testing.T) {
	data := `sinks:
  - type: nop
  - type: nop
prometheus_port: 9100
`
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 9100, cfg.PrometheusPort)
	s, err := metrics.NewMetricsSink(cfg.Sinks)
	require.NoError(t, err)
	assert.IsType(t, &metrics.MultiSink{}, s)
}

type closingSink struct {
	metrics.NopSink
	closed *bool
}

func (c closingSink) Close() { *c.closed = true }

func TestMetricsFactoryClosesBuiltSinksOnError(t *testing.T) {
	closed := false
	name := fmt.Sprintf("closing-%p", &closed)
	require.NoError(t, metrics.RegisterMetricsSink(name, func(map[string]any) (metrics.MetricsSink, error) {
		return closingSink{closed: &closed}, nil
	}))
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: name}, {Type: "missing"}})
	assert.ErrorContains(t, err, "sink 1 (missing)")
	assert.True(t, closed)
	assert.Contains(t, metrics.SinkTypes(), name)
}
