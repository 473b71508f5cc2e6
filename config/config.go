package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/catalog"
	"github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/notify"
	"github.com/kilianp07/tendering/core/tender"
	"github.com/kilianp07/tendering/infra/mqtt"
)

// EnvPrefix marks environment variables that override file values.
// K_ENGINE__MAX_DECISION_ATTEMPTS sets engine.max_decision_attempts.
const EnvPrefix = "K_"

var errSampleRate = errors.New("sentry: traces_sample_rate must be within [0,1]")

type Config struct {
	Engine  tender.Config     `json:"engine"`
	Catalog catalog.Config    `json:"catalog"`
	Notify  notify.Config     `json:"notify"`
	Metrics metrics.Config    `json:"metrics"`
	Audit   audit.Config      `json:"audit"`
	HTTP    HTTPConfig        `json:"http"`
	Logging LoggingConfig     `json:"logging"`
	Sentry  SentryConfig      `json:"sentry"`
	Intake  mqtt.IntakeConfig `json:"intake"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Engine.SetDefaults()
	c.Notify.SetDefaults()
	c.HTTP.SetDefaults()
	c.Logging.SetDefaults()
	c.Intake.SetDefaults()
}

func (c Config) Validate() error {
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog: path is required")
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Notify.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Sentry.Validate(); err != nil {
		return err
	}
	if err := c.Intake.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}
