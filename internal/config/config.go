// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BROCHURES_CRAWL_CONCURRENCY.
const EnvPrefix = "BROCHURES"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Egress  EgressConfig  `mapstructure:"egress"`
	Secrets SecretsConfig `mapstructure:"secrets"`
	Records RecordsConfig `mapstructure:"records"`
	Blobs   BlobsConfig   `mapstructure:"blobs"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlConfig governs the pipeline, collector and politeness behavior.
type CrawlConfig struct {
	// Stores is the default selection when crawl is run without arguments.
	Stores               []string      `mapstructure:"stores"`
	Concurrency          int           `mapstructure:"concurrency"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
	MaxPageIDs           int           `mapstructure:"max_page_ids"`
	MinAssetBytes        int           `mapstructure:"min_asset_bytes"`
	MaxBodyBytes         int           `mapstructure:"max_body_bytes"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	DelayMin             time.Duration `mapstructure:"delay_min"`
	DelayMax             time.Duration `mapstructure:"delay_max"`
	RequestsPerSecond    float64       `mapstructure:"requests_per_second"`
	UserAgent            string        `mapstructure:"user_agent"`
	BrochureTimeout      time.Duration `mapstructure:"brochure_timeout"`
}

// EgressConfig selects the proxy identities used for outbound fetches.
type EgressConfig struct {
	Provider        string   `mapstructure:"provider"`
	Rotation        string   `mapstructure:"rotation"`
	StaticProxies   []string `mapstructure:"static_proxies"`
	CountryCode     string   `mapstructure:"country_code"`
	WebshareBaseURL string   `mapstructure:"webshare_base_url"`
	WebshareMode    string   `mapstructure:"webshare_mode"`
	// TokenSecret names the secret holding the Webshare API token.
	TokenSecret string `mapstructure:"token_secret"`
}

// SecretsConfig selects where secrets are read from.
type SecretsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	EnvPrefix string `mapstructure:"env_prefix"`
}

// RecordsConfig selects the crawl record store.
type RecordsConfig struct {
	Provider  string          `mapstructure:"provider"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
}

// FirestoreConfig locates the Firestore collection.
type FirestoreConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	Collection string `mapstructure:"collection"`
}

// PostgresConfig controls access to the relational record store.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// BlobsConfig sets where brochure documents are written.
type BlobsConfig struct {
	Provider  string `mapstructure:"provider"`
	Bucket    string `mapstructure:"bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
	MirrorDir string `mapstructure:"mirror_dir"`
}

// NotifyConfig holds metadata for brochure notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the optional Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("logging.development", false)
	v.SetDefault("crawl.stores", []string{})
	v.SetDefault("crawl.concurrency", 1)
	v.SetDefault("crawl.max_consecutive_errors", 3)
	v.SetDefault("crawl.max_page_ids", 2000)
	v.SetDefault("crawl.min_asset_bytes", 1024)
	v.SetDefault("crawl.max_body_bytes", 64<<20)
	v.SetDefault("crawl.fetch_timeout", "30s")
	v.SetDefault("crawl.delay_min", "200ms")
	v.SetDefault("crawl.delay_max", "2500ms")
	v.SetDefault("crawl.requests_per_second", 0)
	v.SetDefault("crawl.user_agent", defaultUserAgent)
	v.SetDefault("crawl.brochure_timeout", "15m")
	v.SetDefault("egress.provider", "none")
	v.SetDefault("egress.rotation", "round_robin")
	v.SetDefault("egress.static_proxies", []string{})
	v.SetDefault("egress.country_code", "BG")
	v.SetDefault("egress.webshare_mode", "direct")
	v.SetDefault("egress.token_secret", "webshare-api-token")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.env_prefix", EnvPrefix+"_SECRET")
	v.SetDefault("records.provider", "memory")
	v.SetDefault("records.firestore.collection", "crawled_brochures")
	v.SetDefault("records.postgres.table", "crawled_brochures")
	v.SetDefault("records.postgres.max_conns", 4)
	v.SetDefault("blobs.provider", "memory")
	v.SetDefault("blobs.base_dir", "data/brochures")
	v.SetDefault("notify.provider", "none")
	v.SetDefault("notify.topic", "brochures-stored")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("crawl.max_consecutive_errors must be > 0")
	}
	if c.Crawl.MaxPageIDs <= 0 {
		return fmt.Errorf("crawl.max_page_ids must be > 0")
	}
	if c.Crawl.FetchTimeout <= 0 {
		return fmt.Errorf("crawl.fetch_timeout must be > 0")
	}
	if c.Crawl.MaxBodyBytes <= c.Crawl.MinAssetBytes {
		return fmt.Errorf("crawl.max_body_bytes must exceed crawl.min_asset_bytes")
	}
	if c.Crawl.DelayMin < 0 || c.Crawl.DelayMax < c.Crawl.DelayMin {
		return fmt.Errorf("crawl.delay_min/delay_max must satisfy 0 <= min <= max")
	}

	switch c.Egress.Provider {
	case "none":
	case "static":
		if len(c.Egress.StaticProxies) == 0 {
			return fmt.Errorf("egress.static_proxies must be set when egress.provider is static")
		}
	case "webshare":
		if c.Egress.TokenSecret == "" {
			return fmt.Errorf("egress.token_secret must be set when egress.provider is webshare")
		}
	default:
		return fmt.Errorf("unknown egress.provider %q", c.Egress.Provider)
	}
	if c.Egress.Provider != "none" {
		switch c.Egress.Rotation {
		case "round_robin", "random":
		default:
			return fmt.Errorf("unknown egress.rotation %q", c.Egress.Rotation)
		}
	}

	switch c.Secrets.Provider {
	case "env":
	case "gsm":
		if c.Secrets.ProjectID == "" {
			return fmt.Errorf("secrets.project_id must be set when secrets.provider is gsm")
		}
	default:
		return fmt.Errorf("unknown secrets.provider %q", c.Secrets.Provider)
	}

	switch c.Records.Provider {
	case "memory":
	case "firestore":
		if c.Records.Firestore.ProjectID == "" {
			return fmt.Errorf("records.firestore.project_id must be set when records.provider is firestore")
		}
	case "postgres":
		if c.Records.Postgres.DSN == "" {
			return fmt.Errorf("records.postgres.dsn must be set when records.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown records.provider %q", c.Records.Provider)
	}

	switch c.Blobs.Provider {
	case "memory":
	case "local":
		if c.Blobs.BaseDir == "" {
			return fmt.Errorf("blobs.base_dir must be set when blobs.provider is local")
		}
	case "gcs":
		if c.Blobs.Bucket == "" {
			return fmt.Errorf("blobs.bucket must be set when blobs.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown blobs.provider %q", c.Blobs.Provider)
	}

	switch c.Notify.Provider {
	case "none":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set when notify.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	return nil
}
