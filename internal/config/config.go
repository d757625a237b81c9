// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Store     StoreConfig     `mapstructure:"store"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	JobLog    JobLogConfig    `mapstructure:"joblog"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig is shared by every outbound client.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// DiscoveryConfig governs the discoverers and the orchestrator defaults.
type DiscoveryConfig struct {
	DelayMs            int           `mapstructure:"delay_ms"`
	MaxHubs            int           `mapstructure:"max_hubs"`
	ResolveRedirects   bool          `mapstructure:"resolve_redirects"`
	MaxRedirects       int           `mapstructure:"max_redirects"`
	AllowedHosts       []string      `mapstructure:"allowed_hosts"`
	AllowPathPatterns  []string      `mapstructure:"allow_path_patterns"`
	DocumentExtensions []string      `mapstructure:"document_extensions"`
	HubPathPatterns    []string      `mapstructure:"hub_path_patterns"`
	HubTextPatterns    []string      `mapstructure:"hub_text_patterns"`
	Hub                HubConfig     `mapstructure:"hub"`
	Sitemap            SitemapConfig `mapstructure:"sitemap"`
	Archive            ArchiveConfig `mapstructure:"archive"`
}

// HubConfig seeds the hub crawler.
type HubConfig struct {
	Seeds       []string `mapstructure:"seeds"`
	ProbePages  int      `mapstructure:"probe_pages"`
	MaxInferred int      `mapstructure:"max_inferred"`
}

// SitemapConfig seeds the sitemap walk.
type SitemapConfig struct {
	Seeds       []string `mapstructure:"seeds"`
	MaxSitemaps int      `mapstructure:"max_sitemaps"`
}

// ArchiveConfig selects the web-archive queries.
type ArchiveConfig struct {
	Endpoint  string   `mapstructure:"endpoint"`
	Patterns  []string `mapstructure:"patterns"`
	MimeTypes []string `mapstructure:"mime_types"`
	Limit     int      `mapstructure:"limit"`
}

// ExtractConfig tunes the extraction pipeline and the pending batch.
type ExtractConfig struct {
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MinTextLength   int    `mapstructure:"min_text_length"`
	MinCharsPerPage int    `mapstructure:"min_chars_per_page"`
	BatchLimit      int    `mapstructure:"batch_limit"`
	BatchDelayMs    int    `mapstructure:"batch_delay_ms"`
	Topic           string `mapstructure:"topic"`
}

// StoreConfig picks the catalog backend.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// PubSubConfig holds metadata for indexed-document notifications.
type PubSubConfig struct {
	// Driver is "none", "memory" or "pubsub".
	Driver    string `mapstructure:"driver"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// JobLogConfig sizes the job log hub.
type JobLogConfig struct {
	BufferSize      int  `mapstructure:"buffer_size"`
	MaxBatchEntries int  `mapstructure:"max_batch_entries"`
	MaxBatchWaitMs  int  `mapstructure:"max_batch_wait_ms"`
	PersistToStore  bool `mapstructure:"persist_to_store"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", "docket-crawler/0.1 (+https://github.com/JakeFAU/docket-crawler)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("discovery.delay_ms", 1500)
	v.SetDefault("discovery.max_hubs", 50)
	v.SetDefault("discovery.resolve_redirects", false)
	v.SetDefault("discovery.max_redirects", 5)
	v.SetDefault("discovery.hub.probe_pages", 2)
	v.SetDefault("discovery.hub.max_inferred", 10000)
	v.SetDefault("discovery.sitemap.max_sitemaps", 50)
	v.SetDefault("discovery.archive.endpoint", "https://web.archive.org/cdx/search/cdx")
	v.SetDefault("discovery.archive.mime_types", []string{"application/pdf", "text/html"})
	v.SetDefault("discovery.archive.limit", 5000)
	v.SetDefault("extract.max_body_bytes", 50<<20)
	v.SetDefault("extract.timeout_seconds", 60)
	v.SetDefault("extract.min_text_length", 50)
	v.SetDefault("extract.min_chars_per_page", 50)
	v.SetDefault("extract.batch_limit", 50)
	v.SetDefault("extract.batch_delay_ms", 1000)
	v.SetDefault("extract.topic", "document.indexed")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("pubsub.driver", "none")
	v.SetDefault("joblog.buffer_size", 1024)
	v.SetDefault("joblog.max_batch_entries", 100)
	v.SetDefault("joblog.max_batch_wait_ms", 500)
	v.SetDefault("joblog.persist_to_store", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Discovery.DelayMs < 0 {
		return fmt.Errorf("discovery.delay_ms must be >= 0")
	}
	if c.Extract.MaxBodyBytes <= 0 {
		return fmt.Errorf("extract.max_body_bytes must be > 0")
	}
	if c.Extract.BatchLimit <= 0 {
		return fmt.Errorf("extract.batch_limit must be > 0")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when store.driver is postgres")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	switch c.PubSub.Driver {
	case "none", "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.driver is pubsub")
		}
	default:
		return fmt.Errorf("pubsub.driver %q is not supported", c.PubSub.Driver)
	}
	return nil
}

// HTTPTimeout converts the outbound timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DiscoveryDelay is the default spacing between requests to one host.
func (c Config) DiscoveryDelay() time.Duration {
	return time.Duration(c.Discovery.DelayMs) * time.Millisecond
}

// BatchDelay is the spacing between documents in a pending batch.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.Extract.BatchDelayMs) * time.Millisecond
}
