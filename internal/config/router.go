package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/dexrouter/internal/catalog"
	"github.com/sawpanic/dexrouter/internal/venue"
)

// RouterConfig is the complete operational configuration for the dexrouter
// binary: top-level sections, snake_case yaml tags, and millisecond/second
// integer fields converted to time.Duration by helper methods (CacheTTL,
// HTTPTimeout, Timeout).
type RouterConfig struct {
	Catalog     CatalogConfig      `yaml:"catalog"`
	Feed        FeedConfig         `yaml:"feed"`
	Aggregators []AggregatorConfig `yaml:"aggregators"`
	AggCache    AggCacheConfig     `yaml:"aggregator_cache"`
	Executor    ExecutorConfig     `yaml:"executor"`
	AuditSink   AuditSinkConfig    `yaml:"audit_sink"`
	Server      ServerConfig       `yaml:"server"`
	Fanout      FanoutConfig       `yaml:"fanout"`
}

// FanoutConfig configures the optional Redis Pub/Sub announcement of
// applied ingest updates (SPEC_FULL.md §4.4 supplement). Disabled by
// default: the venue-update path never depends on this.
type FanoutConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Topic   string `yaml:"topic"`
}

// AggCacheConfig points at the Redis instance aggregator adapters cache
// quotes in; unused when no configured aggregator sets a cache_ttl_seconds.
type AggCacheConfig struct {
	Addr string `yaml:"addr"`
}

// CatalogConfig locates the venue catalog: exactly one of Path or URL must
// be set, matching the loader's file-or-URL contract. KindMapping is the
// operator-supplied program_owner (hex) -> Kind name table the spec calls
// a "static table keyed by program_owner" (spec §4.1); it lives in config
// rather than compiled-in since which program ids are deployed varies by
// cluster/environment.
type CatalogConfig struct {
	Path           string            `yaml:"path"`
	URL            string            `yaml:"url"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	KindMapping    map[string]string `yaml:"kind_mapping"`
}

// FeedConfig points at the upstream account-update stream the ingestor
// subscribes to. Ping cadence and handshake timeout are fixed in WSFeed
// itself (matching the teacher's kraken client), so they are not
// configurable here.
type FeedConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// AggregatorConfig configures one external aggregator HTTP endpoint.
type AggregatorConfig struct {
	Name            string  `yaml:"name"`
	KeyHex          string  `yaml:"key"`
	QuoteURL        string  `yaml:"quote_url"`
	SwapURL         string  `yaml:"swap_url"`
	InputMint       string  `yaml:"input_mint"`
	OutputMint      string  `yaml:"output_mint"`
	BurstLimit      int     `yaml:"burst_limit"`
	SustainedRPS    float64 `yaml:"sustained_rps"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	HTTPTimeoutMS   int     `yaml:"http_timeout_ms"`
}

// ExecutorConfig tunes the swap hand-off stage.
type ExecutorConfig struct {
	QueueDepth int `yaml:"queue_depth"`
}

// AuditSinkConfig configures the optional Postgres receipt sink; Enabled
// false (the zero value) means executor receipts are not persisted.
type AuditSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// ServerConfig configures the ops HTTP mux (health + metrics).
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoadRouterConfig loads and validates the router configuration from a YAML
// file.
func LoadRouterConfig(configPath string) (*RouterConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read router config: %w", err)
	}

	var cfg RouterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse router config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid router config: %w", err)
	}
	return &cfg, nil
}

// Validate ensures the configuration is self-consistent before boot.
func (c *RouterConfig) Validate() error {
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.Feed.Validate(); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	for _, agg := range c.Aggregators {
		if err := agg.Validate(); err != nil {
			return fmt.Errorf("aggregator %s: %w", agg.Name, err)
		}
	}
	if c.Executor.QueueDepth <= 0 {
		c.Executor.QueueDepth = 64
	}
	if c.AuditSink.Enabled && c.AuditSink.DSN == "" {
		return fmt.Errorf("audit_sink: dsn required when enabled")
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":9090"
	}
	if c.AggCache.Addr == "" {
		c.AggCache.Addr = "localhost:6379"
	}
	if c.Fanout.Enabled {
		if c.Fanout.Addr == "" {
			c.Fanout.Addr = c.AggCache.Addr
		}
		if c.Fanout.Topic == "" {
			c.Fanout.Topic = "dexrouter:ingest:updates"
		}
	}
	return nil
}

// Validate ensures exactly one of Path or URL is set.
func (c *CatalogConfig) Validate() error {
	if c.Path == "" && c.URL == "" {
		return fmt.Errorf("exactly one of path or url must be set")
	}
	if c.Path != "" && c.URL != "" {
		return fmt.Errorf("path and url are mutually exclusive")
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if len(c.KindMapping) == 0 {
		return fmt.Errorf("kind_mapping must name at least one program_owner")
	}
	if _, err := c.BuildKindMapping(); err != nil {
		return err
	}
	return nil
}

// BuildKindMapping translates the YAML program_owner -> kind-name table
// into the catalog.KindMapping the loader consumes, failing fast on any
// name Kind.String doesn't recognize (spec §4.1: unknown kinds are a
// config-time error, not a silent drop).
func (c *CatalogConfig) BuildKindMapping() (catalog.KindMapping, error) {
	out := make(catalog.KindMapping, len(c.KindMapping))
	for programOwner, kindName := range c.KindMapping {
		kind, err := venue.KindFromString(kindName)
		if err != nil {
			return nil, fmt.Errorf("kind_mapping[%s]: %w", programOwner, err)
		}
		out[programOwner] = kind
	}
	return out, nil
}

// Validate ensures the feed endpoint is present.
func (c *FeedConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	return nil
}

// Validate ensures an aggregator entry names its endpoints and pair.
func (c *AggregatorConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if c.KeyHex == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if c.QuoteURL == "" {
		return fmt.Errorf("quote_url cannot be empty")
	}
	if c.InputMint == "" || c.OutputMint == "" {
		return fmt.Errorf("input_mint and output_mint are required")
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = 5
	}
	if c.SustainedRPS <= 0 {
		c.SustainedRPS = 2
	}
	if c.HTTPTimeoutMS <= 0 {
		c.HTTPTimeoutMS = 2_000
	}
	return nil
}

// CacheTTL returns the aggregator's cache TTL as a time.Duration.
func (c *AggregatorConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// HTTPTimeout returns the aggregator's request timeout as a time.Duration.
func (c *AggregatorConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// Timeout returns the catalog fetch timeout.
func (c *CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
