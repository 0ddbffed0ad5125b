package source

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// Config is the declarative source registry loaded from sources.yaml.
// Confidence lives in named tiers rather than per-source magic numbers,
// so tuning a tier adjusts every source registered under it.
type Config struct {
	Defaults DefaultConfig         `yaml:"defaults"`
	Tiers    map[string]float64    `yaml:"tiers"`
	Sources  []SourceSpec          `yaml:"sources"`
	byName   map[string]SourceSpec `yaml:"-"`
}

// DefaultConfig holds per-source fallbacks.
type DefaultConfig struct {
	CacheTTLHours int      `yaml:"cache_ttl_hours"`
	Rate          RateSpec `yaml:"rate"`
	TimeoutSecs   int      `yaml:"timeout_secs"`
}

// RateSpec is a token-bucket shape: sustained requests per second plus
// burst capacity.
type RateSpec struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// SourceSpec declares one adapter registration.
type SourceSpec struct {
	Name          string            `yaml:"name"`
	Pool          Pool              `yaml:"pool"`
	Priority      int               `yaml:"priority"`
	Tier          string            `yaml:"tier"`
	Fields        []model.FieldName `yaml:"fields"`
	Rate          *RateSpec         `yaml:"rate,omitempty"`
	CacheTTLHours int               `yaml:"cache_ttl_hours,omitempty"`
	TimeoutSecs   int               `yaml:"timeout_secs,omitempty"`
}

// DefaultTiers are the documented confidence tiers. Treat as tunable
// heuristics, not ground truth.
func DefaultTiers() map[string]float64 {
	return map[string]float64{
		"reference":  0.95,
		"aggregator": 0.85,
		"community":  0.80,
		"scrape":     0.70,
	}
}

// NewDefaultConfig returns a config with no declared sources and all
// defaults applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the source registry from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read config %s", path)
	}

	var wrapper struct {
		Sources Config `yaml:"sources_config"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "source: parse config")
	}

	cfg := &wrapper.Sources
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Tiers == nil {
		c.Tiers = DefaultTiers()
	} else {
		for name, conf := range DefaultTiers() {
			if _, ok := c.Tiers[name]; !ok {
				c.Tiers[name] = conf
			}
		}
	}
	if c.Defaults.CacheTTLHours <= 0 {
		c.Defaults.CacheTTLHours = 24
	}
	if c.Defaults.Rate.RPS <= 0 {
		c.Defaults.Rate.RPS = 4
	}
	if c.Defaults.Rate.Burst <= 0 {
		c.Defaults.Rate.Burst = 4
	}
	if c.Defaults.TimeoutSecs <= 0 {
		c.Defaults.TimeoutSecs = 15
	}

	c.byName = make(map[string]SourceSpec, len(c.Sources))
	for i, s := range c.Sources {
		if s.Pool == "" {
			s.Pool = PoolPrimary
		}
		if s.Rate == nil {
			r := c.Defaults.Rate
			s.Rate = &r
		}
		if s.CacheTTLHours <= 0 {
			s.CacheTTLHours = c.Defaults.CacheTTLHours
		}
		if s.TimeoutSecs <= 0 {
			s.TimeoutSecs = c.Defaults.TimeoutSecs
		}
		c.Sources[i] = s
		c.byName[s.Name] = s
	}
}

// Spec returns the declaration for a source name.
func (c *Config) Spec(name string) (SourceSpec, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// TierConfidence resolves a tier name to its base confidence. Unknown
// tiers fall back to the scrape tier so a typo degrades trust instead of
// inflating it.
func (c *Config) TierConfidence(tier string) float64 {
	if conf, ok := c.Tiers[tier]; ok {
		return conf
	}
	return c.Tiers["scrape"]
}
