// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// CrawlConfig describes the catalog and the worker pool.
type CrawlConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	IndexPath    string        `mapstructure:"index_path"`
	From         int           `mapstructure:"from"`
	To           int           `mapstructure:"to"`
	ItemSelector string        `mapstructure:"item_selector"`
	Extensions   []string      `mapstructure:"extensions"`
	OutputDir    string        `mapstructure:"output_dir"`
	Workers      int           `mapstructure:"workers"`
	QueueDepth   int           `mapstructure:"queue_depth"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// HTTPConfig configures page and document requests.
type HTTPConfig struct {
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`
	DownloadTimeoutSeconds int    `mapstructure:"download_timeout_seconds"`
	UserAgent              string `mapstructure:"user_agent"`
	MaxRetries             int    `mapstructure:"max_retries"`
	BackoffInitialMs       int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs           int    `mapstructure:"backoff_max_ms"`
}

// StorageConfig selects where documents are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres outcome ledger.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for download notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the status server; an empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReportConfig sets the optional JSON report path.
type ReportConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls the OpenTelemetry tracer provider.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"from":          "crawl.from",
	"to":            "crawl.to",
	"workers":       "crawl.workers",
	"output":        "crawl.output_dir",
	"drain-timeout": "crawl.drain_timeout",
	"report":        "report.path",
	"addr":          "server.addr",
	"storage":       "storage.backend",
}

// Load builds a Config from defaults, an optional file, HARVESTER_* environment
// variables and any flags present in flags (highest precedence). With an empty
// path, config.yaml is looked up in the working directory, /etc/harvester and
// $HOME/.harvester; a missing file is not an error.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/harvester/")
		v.AddConfigPath("$HOME/.harvester")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
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
	v.SetDefault("crawl.base_url", "https://papers.nips.cc")
	v.SetDefault("crawl.index_path", "/paper/"+crawler.PartitionPlaceholder)
	v.SetDefault("crawl.from", 2021)
	v.SetDefault("crawl.to", 2021)
	v.SetDefault("crawl.item_selector", crawler.DefaultItemSelector)
	v.SetDefault("crawl.extensions", []string{".pdf"})
	v.SetDefault("crawl.output_dir", "mydocuments")
	v.SetDefault("crawl.workers", 30)
	v.SetDefault("crawl.queue_depth", 256)
	v.SetDefault("crawl.drain_timeout", 30*time.Minute)
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.download_timeout_seconds", 600)
	v.SetDefault("http.user_agent", "proceedings-harvester/0.1")
	v.SetDefault("http.max_retries", 0)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("db.table_prefix", "harvest")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", false)
	v.SetDefault("telemetry.service_name", "proceedings-harvester")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Catalog().Validate(); err != nil {
		return err
	}
	if len(c.Crawl.Extensions) == 0 {
		return fmt.Errorf("crawl.extensions must not be empty")
	}
	for _, ext := range c.Crawl.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("crawl.extensions entry %q must start with a dot", ext)
		}
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.QueueDepth < 0 {
		return fmt.Errorf("crawl.queue_depth must be >= 0")
	}
	if c.Crawl.DrainTimeout <= 0 {
		return fmt.Errorf("crawl.drain_timeout must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.DownloadTimeoutSeconds <= 0 {
		return fmt.Errorf("http.download_timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Crawl.OutputDir == "" {
			return fmt.Errorf("crawl.output_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

// Catalog returns the partition range settings.
func (c Config) Catalog() crawler.CatalogConfig {
	return crawler.CatalogConfig{
		BaseURL:   c.Crawl.BaseURL,
		IndexPath: c.Crawl.IndexPath,
		From:      c.Crawl.From,
		To:        c.Crawl.To,
	}
}

// PageTimeout is the per-request budget for index and detail pages.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DownloadTimeout is the per-document budget including the body transfer.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.HTTP.DownloadTimeoutSeconds) * time.Second
}

// RetryPolicy returns nil when retries are disabled so every call is attempted once.
func (c Config) RetryPolicy() crawler.RetryPolicy {
	if c.HTTP.MaxRetries <= 0 {
		return nil
	}
	return crawler.NewExponentialRetryPolicy(
		c.HTTP.MaxRetries+1,
		time.Duration(c.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs)*time.Millisecond,
	)
}
