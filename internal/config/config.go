package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/scoutlabs/researcher/internal/research"
)

// DepthProfile maps a search depth to its fan-out limits.
type DepthProfile struct {
	Strategies       int `mapstructure:"strategies"`
	MaxCandidates    int `mapstructure:"max_candidates"`
	ResultsPerSearch int `mapstructure:"results_per_search"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CacheConfig struct {
	Backend    string        `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr  string        `mapstructure:"redis_addr"`
	SearchTTL  time.Duration `mapstructure:"search_ttl"`
	LLMTTL     time.Duration `mapstructure:"llm_ttl"`
	CompanyTTL time.Duration `mapstructure:"company_ttl"`
}

type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPM     int           `mapstructure:"rpm"`
}

type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type ProvidersConfig struct {
	LLM    LLMConfig    `mapstructure:"llm"`
	Search SearchConfig `mapstructure:"search"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
}

type ResearchConfig struct {
	OverallTimeout time.Duration           `mapstructure:"overall_timeout"`
	Depths         map[string]DepthProfile `mapstructure:"depths"`
	EventCapacity  int                     `mapstructure:"event_capacity"`
}

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Research  ResearchConfig  `mapstructure:"research"`
}

// Load reads configuration from CONFIG_PATH (default config/research.yaml)
// if the file exists, with env overrides (RESEARCHER_ prefix) and built-in
// defaults. A missing file is not an error; env and defaults still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RESEARCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/research.yaml"
	}
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0) // streaming responses must not be cut off

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.search_ttl", 2*time.Hour)
	v.SetDefault("cache.llm_ttl", time.Hour)
	v.SetDefault("cache.company_ttl", 24*time.Hour)

	v.SetDefault("providers.llm.base_url", "http://llm-service:8000")
	v.SetDefault("providers.llm.api_key", "")
	v.SetDefault("providers.llm.model", "default")
	v.SetDefault("providers.llm.timeout", 120*time.Second)
	v.SetDefault("providers.search.base_url", "https://google.serper.dev")
	v.SetDefault("providers.search.api_key", "")
	v.SetDefault("providers.search.timeout", 20*time.Second)
	v.SetDefault("providers.search.rpm", 300)
	v.SetDefault("providers.fetch.timeout", 15*time.Second)
	v.SetDefault("providers.fetch.max_body_bytes", int64(512*1024))

	v.SetDefault("research.overall_timeout", 10*time.Minute)
	v.SetDefault("research.event_capacity", 256)
	v.SetDefault("research.depths", map[string]DepthProfile{
		string(research.DepthQuick):         {Strategies: 5, MaxCandidates: 50, ResultsPerSearch: 10},
		string(research.DepthStandard):      {Strategies: 10, MaxCandidates: 100, ResultsPerSearch: 20},
		string(research.DepthComprehensive): {Strategies: 15, MaxCandidates: 200, ResultsPerSearch: 30},
	})
}

// Validate checks invariants that later components rely on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	for _, d := range []research.Depth{research.DepthQuick, research.DepthStandard, research.DepthComprehensive} {
		p, ok := c.Research.Depths[string(d)]
		if !ok {
			return fmt.Errorf("research.depths missing profile for %s", d)
		}
		if p.Strategies < 1 || p.MaxCandidates < 1 || p.ResultsPerSearch < 1 {
			return fmt.Errorf("research.depths.%s has non-positive limits", d)
		}
	}
	return nil
}

// DepthProfile returns the fan-out limits for a depth. The depth is assumed
// validated; unknown values fall back to the quick profile.
func (c *Config) DepthProfile(d research.Depth) DepthProfile {
	if p, ok := c.Research.Depths[string(d)]; ok {
		return p
	}
	return c.Research.Depths[string(research.DepthQuick)]
}
