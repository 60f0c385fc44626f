// Package config loads the connector configuration from YAML and the
// environment, and checks that every selected backend is usable.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRunID is used when RUN_ID is not set.
const DefaultRunID = "local-run"

// DefaultBaseURL is the Statistics Canada WDS REST root.
const DefaultBaseURL = "https://www150.statcan.gc.ca/t1/wds/rest"

// KeyVectors are the economic indicator series fetched by default:
// GDP, labour force, CPI, trade and a few headline macro series.
var KeyVectors = []int64{
	41881485, 41881486,
	41690973, 41690914, 41690926, 41690943, 41690952,
	282733, 282735, 282736, 282734,
	1513259, 1513263, 1513267,
	20974,
	1558,
	34457, 36200,
}

// Config is the complete connector configuration.
type Config struct {
	RunID      string           `yaml:"run_id"`
	API        APIConfig        `yaml:"api"`
	Indicators IndicatorsConfig `yaml:"indicators"`
	Raw        RawConfig        `yaml:"raw"`
	Sink       SinkConfig       `yaml:"sink"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
}

// APIConfig configures the WDS client.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	CallsPerPeriod int           `yaml:"calls_per_period"`
	Period         time.Duration `yaml:"period"`
	Timeout        time.Duration `yaml:"timeout"`
}

// IndicatorsConfig lists the series pulled by the economic indicators ingest.
type IndicatorsConfig struct {
	// Vectors is kept in the given order; requests are built in this order.
	Vectors []int64 `yaml:"vectors"`
	LatestN int     `yaml:"latest_n"`
}

// RawConfig selects where raw API responses are kept between phases.
type RawConfig struct {
	// Backend is one of fs, memory, pebble, badger, s3, gcs.
	Backend  string    `yaml:"backend"`
	Dir      string    `yaml:"dir"`
	Compress bool      `yaml:"compress"`
	S3       S3Config  `yaml:"s3"`
	GCS      GCSConfig `yaml:"gcs"`
}

// S3Config holds bucket settings for the s3 raw backend.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // MinIO, LocalStack
	Prefix   string `yaml:"prefix"`
}

// GCSConfig holds bucket settings for the gcs raw backend.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// SinkConfig selects where finished tables are uploaded.
type SinkConfig struct {
	// Backend is one of file, sqlite, postgres, mysql, kafka.
	Backend        string `yaml:"backend"`
	Dir            string `yaml:"dir"`
	DSN            string `yaml:"dsn"`
	KafkaBootstrap string `yaml:"kafka_bootstrap"`
	TopicPrefix    string `yaml:"topic_prefix"`
}

// CatalogConfig selects where dataset metadata is published.
type CatalogConfig struct {
	// Backends may contain file, kafka, nats and sql. sql reuses the sink
	// database and is only valid with a SQL sink.
	Backends       []string `yaml:"backends"`
	Dir            string   `yaml:"dir"`
	KafkaBootstrap string   `yaml:"kafka_bootstrap"`
	KafkaTopic     string   `yaml:"kafka_topic"`
	NATSURL        string   `yaml:"nats_url"`
	NATSSubject    string   `yaml:"nats_subject"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Listen         string `yaml:"listen"`
}

// ScheduleConfig configures the schedule subcommand.
type ScheduleConfig struct {
	Every time.Duration `yaml:"every"`
}

// Run identifies one execution of the pipeline.
type Run struct {
	ID        string
	StartedAt time.Time
}

// DefaultConfig returns a Config that runs fully locally.
func DefaultConfig() *Config {
	return &Config{
		RunID: DefaultRunID,
		API: APIConfig{
			BaseURL:        DefaultBaseURL,
			CallsPerPeriod: 20,
			Period:         time.Second,
			Timeout:        60 * time.Second,
		},
		Indicators: IndicatorsConfig{
			Vectors: append([]int64(nil), KeyVectors...),
			LatestN: 500,
		},
		Raw: RawConfig{
			Backend: "fs",
			Dir:     "./data/raw",
		},
		Sink: SinkConfig{
			Backend:     "file",
			Dir:         "./data/out",
			TopicPrefix: "statcan",
		},
		Catalog: CatalogConfig{
			Backends:    []string{"file"},
			Dir:         "./data/catalog",
			KafkaTopic:  "statcan.catalog",
			NATSSubject: "statcan.catalog",
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
		Schedule: ScheduleConfig{
			Every: 24 * time.Hour,
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Load reads path (or the defaults when path is empty) and applies
// environment overrides read through getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. Unset or empty
// variables leave the current value alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("RUN_ID", &c.RunID)
	str("STATCAN_BASE_URL", &c.API.BaseURL)
	str("STATCAN_RAW_BACKEND", &c.Raw.Backend)
	str("STATCAN_RAW_DIR", &c.Raw.Dir)
	str("STATCAN_S3_BUCKET", &c.Raw.S3.Bucket)
	str("STATCAN_S3_REGION", &c.Raw.S3.Region)
	str("STATCAN_S3_ENDPOINT", &c.Raw.S3.Endpoint)
	str("STATCAN_S3_PREFIX", &c.Raw.S3.Prefix)
	str("STATCAN_GCS_BUCKET", &c.Raw.GCS.Bucket)
	str("STATCAN_GCS_PREFIX", &c.Raw.GCS.Prefix)
	str("STATCAN_SINK", &c.Sink.Backend)
	str("STATCAN_SINK_DIR", &c.Sink.Dir)
	str("STATCAN_SINK_DSN", &c.Sink.DSN)
	str("STATCAN_KAFKA_BOOTSTRAP", &c.Sink.KafkaBootstrap)
	str("STATCAN_CATALOG_DIR", &c.Catalog.Dir)
	str("STATCAN_NATS_URL", &c.Catalog.NATSURL)
	str("STATCAN_PUSHGATEWAY_URL", &c.Metrics.PushgatewayURL)

	if v := strings.TrimSpace(getenv("STATCAN_CATALOG")); v != "" {
		c.Catalog.Backends = splitList(v)
	}
	if v := strings.TrimSpace(getenv("STATCAN_VECTORS")); v != "" {
		vectors, err := ParseVectors(v)
		if err != nil {
			return fmt.Errorf("STATCAN_VECTORS: %w", err)
		}
		c.Indicators.Vectors = vectors
	}
	return nil
}

// ParseVectors parses a comma-separated list of vector ids, keeping order.
func ParseVectors(s string) ([]int64, error) {
	var out []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(part), "v"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad vector id %q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Run returns the identity of the current execution.
func (c *Config) Run() Run {
	id := c.RunID
	if id == "" {
		id = DefaultRunID
	}
	return Run{ID: id, StartedAt: time.Now().UTC()}
}

// CatalogKafkaBootstrap falls back to the sink brokers when the catalog has
// none of its own.
func (c *Config) CatalogKafkaBootstrap() string {
	if c.Catalog.KafkaBootstrap != "" {
		return c.Catalog.KafkaBootstrap
	}
	return c.Sink.KafkaBootstrap
}

// Validate checks that the configuration can drive a run. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if u, err := url.Parse(c.API.BaseURL); c.API.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		add("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.CallsPerPeriod <= 0 {
		add("api.calls_per_period must be positive")
	}
	if c.API.Period <= 0 {
		add("api.period must be positive")
	}
	if c.API.Timeout <= 0 {
		add("api.timeout must be positive")
	}

	if len(c.Indicators.Vectors) == 0 {
		add("indicators.vectors is empty")
	}
	seen := make(map[int64]bool, len(c.Indicators.Vectors))
	for _, v := range c.Indicators.Vectors {
		if v <= 0 {
			add("indicators.vectors: invalid vector id %d", v)
		}
		if seen[v] {
			add("indicators.vectors: duplicate vector id %d", v)
		}
		seen[v] = true
	}
	if c.Indicators.LatestN <= 0 {
		add("indicators.latest_n must be positive")
	}

	switch c.Raw.Backend {
	case "fs", "pebble", "badger":
		if c.Raw.Dir == "" {
			add("raw.dir is required for the %s backend", c.Raw.Backend)
		}
	case "memory":
	case "s3":
		if c.Raw.S3.Bucket == "" || c.Raw.S3.Region == "" {
			add("raw.s3.bucket and raw.s3.region are required for the s3 backend")
		}
	case "gcs":
		if c.Raw.GCS.Bucket == "" {
			add("raw.gcs.bucket is required for the gcs backend")
		}
	default:
		add("raw.backend: unknown backend %q", c.Raw.Backend)
	}

	sqlSink := false
	switch c.Sink.Backend {
	case "file":
		if c.Sink.Dir == "" {
			add("sink.dir is required for the file backend")
		}
	case "sqlite":
		sqlSink = true
		if c.Sink.DSN == "" && c.Sink.Dir == "" {
			add("sink.dsn or sink.dir is required for the sqlite backend")
		}
	case "postgres", "mysql":
		sqlSink = true
		if c.Sink.DSN == "" {
			add("sink.dsn is required for the %s backend", c.Sink.Backend)
		}
	case "kafka":
		if c.Sink.KafkaBootstrap == "" {
			add("sink.kafka_bootstrap is required for the kafka backend")
		}
	default:
		add("sink.backend: unknown backend %q", c.Sink.Backend)
	}

	if len(c.Catalog.Backends) == 0 {
		add("catalog.backends is empty")
	}
	for _, b := range c.Catalog.Backends {
		switch b {
		case "file":
			if c.Catalog.Dir == "" {
				add("catalog.dir is required for the file catalog")
			}
		case "kafka":
			if c.CatalogKafkaBootstrap() == "" || c.Catalog.KafkaTopic == "" {
				add("catalog kafka needs a bootstrap server and catalog.kafka_topic")
			}
		case "nats":
			if c.Catalog.NATSURL == "" || c.Catalog.NATSSubject == "" {
				add("catalog nats needs catalog.nats_url and catalog.nats_subject")
			}
		case "sql":
			if !sqlSink {
				add("catalog sql requires a sqlite, postgres or mysql sink")
			}
		default:
			add("catalog.backends: unknown backend %q", b)
		}
	}
	return errors.Join(errs...)
}
