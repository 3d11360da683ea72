// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Analysis, Indexer, Search,
// Gateway, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	RPC      RPCConfig      `yaml:"rpc"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentEvents  string `yaml:"documentEvents"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalysisConfig controls text normalization. The same settings feed the
// indexing and the query side so both always tokenize identically.
type AnalysisConfig struct {
	// Stopwords replaces the built-in stopword list when non-empty.
	Stopwords []string `yaml:"stopwords"`
	// DisableStopwords turns stopword removal off entirely.
	DisableStopwords bool `yaml:"disableStopwords"`
	// EnableStemming turns on suffix stripping. Off by default so indexed
	// lexemes stay literal substrings of the source text.
	EnableStemming bool `yaml:"enableStemming"`
	// MinTokenLength drops tokens shorter than this many runes.
	MinTokenLength int `yaml:"minTokenLength"`
}

// IndexerConfig controls the sharded engine's data directory and checkpoint
// policy.
type IndexerConfig struct {
	DataDir            string        `yaml:"dataDir"`
	NumShards          int           `yaml:"numShards"`
	CheckpointInterval time.Duration `yaml:"checkpointInterval"`
	// CheckpointKeep is how many checkpoint generations to retain per shard.
	CheckpointKeep int `yaml:"checkpointKeep"`
	// RebuildOnStart repopulates the index from the document store when no
	// usable checkpoint exists.
	RebuildOnStart bool `yaml:"rebuildOnStart"`
}

// FieldWeight names a searchable document field and its score multiplier.
type FieldWeight struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// SearchConfig controls the target field set, scoring, and query execution
// limits.
type SearchConfig struct {
	// Fields enumerates the searchable fields and their weights. Searches
	// with no explicit field filter target all of them.
	Fields []FieldWeight `yaml:"fields"`
	// PrefixDefault is the prefix-mode applied when a request does not set
	// one explicitly.
	PrefixDefault bool `yaml:"prefixDefault"`
	// Scorer selects the ranking formula: "occurrence" or "bm25".
	Scorer       string        `yaml:"scorer"`
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxResults   int           `yaml:"maxResults"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheEnabled bool          `yaml:"cacheEnabled"`
}

// FieldWeights returns the configured fields as a name → weight map.
func (s SearchConfig) FieldWeights() map[string]float64 {
	m := make(map[string]float64, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Name] = f.Weight
	}
	return m
}

// RPCConfig holds the searcher's internal RPC listener address.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls in-process span tracing of search requests.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// GatewayConfig holds the API gateway port and upstream service addresses.
type GatewayConfig struct {
	Port         int    `yaml:"port"`
	IngestionURL string `yaml:"ingestionUrl"`
	SearcherURL  string `yaml:"searcherUrl"`
	AnalyticsURL string `yaml:"analyticsUrl"`
	// SearcherRPCAddr is the searcher's internal RPC address used by the
	// index-admin endpoints.
	SearcherRPCAddr string `yaml:"searcherRpcAddr"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, and validates the result. It returns a Config populated with
// sensible defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks the construction-time rules for the analysis, indexer, and
// search blocks. Everything else is validated by the component that consumes
// it.
func (c *Config) Validate() error {
	if c.Analysis.MinTokenLength < 1 {
		return fmt.Errorf("analysis.minTokenLength must be >= 1, got %d", c.Analysis.MinTokenLength)
	}
	if c.Indexer.NumShards < 1 {
		return fmt.Errorf("indexer.numShards must be >= 1, got %d", c.Indexer.NumShards)
	}
	if c.Indexer.CheckpointKeep < 1 {
		return fmt.Errorf("indexer.checkpointKeep must be >= 1, got %d", c.Indexer.CheckpointKeep)
	}
	if len(c.Search.Fields) == 0 {
		return fmt.Errorf("search.fields must name at least one field")
	}
	seen := make(map[string]bool, len(c.Search.Fields))
	for _, f := range c.Search.Fields {
		if f.Name == "" {
			return fmt.Errorf("search.fields entries must have a name")
		}
		if f.Weight <= 0 {
			return fmt.Errorf("search.fields[%s].weight must be > 0, got %g", f.Name, f.Weight)
		}
		if seen[f.Name] {
			return fmt.Errorf("search.fields names duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	switch c.Search.Scorer {
	case "occurrence", "bm25":
	default:
		return fmt.Errorf("search.scorer must be \"occurrence\" or \"bm25\", got %q", c.Search.Scorer)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be >= 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)",
			c.Search.MaxResults, c.Search.DefaultLimit)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "openfts",
			User:            "openfts",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "openfts-group",
			Topics: KafkaTopics{
				DocumentEvents:  "document-events",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Analysis: AnalysisConfig{
			MinTokenLength: 2,
		},
		Indexer: IndexerConfig{
			DataDir:            "data/index",
			NumShards:          8,
			CheckpointInterval: 30 * time.Second,
			CheckpointKeep:     2,
			RebuildOnStart:     true,
		},
		Search: SearchConfig{
			Fields: []FieldWeight{
				{Name: "title", Weight: 2.0},
				{Name: "body", Weight: 1.0},
			},
			PrefixDefault: true,
			Scorer:        "occurrence",
			DefaultLimit:  10,
			MaxResults:    100,
			Timeout:       2 * time.Second,
			CacheEnabled:  true,
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    ":7700",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			SampleRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Gateway: GatewayConfig{
			Port:            8082,
			IngestionURL:    "http://localhost:8081",
			SearcherURL:     "http://localhost:8080",
			AnalyticsURL:    "http://localhost:8083",
			SearcherRPCAddr: "localhost:7700",
		},
	}
}

// applyEnvOverrides reads OFTS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OFTS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("OFTS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("OFTS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("OFTS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("OFTS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("OFTS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("OFTS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("OFTS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("OFTS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("OFTS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OFTS_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("OFTS_INDEXER_NUM_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.NumShards = n
		}
	}
	if v := os.Getenv("OFTS_SEARCH_PREFIX_DEFAULT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.PrefixDefault = b
		}
	}
	if v := os.Getenv("OFTS_SEARCH_SCORER"); v != "" {
		cfg.Search.Scorer = v
	}
	if v := os.Getenv("OFTS_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("OFTS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OFTS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("OFTS_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("OFTS_GATEWAY_INGESTION_URL"); v != "" {
		cfg.Gateway.IngestionURL = v
	}
	if v := os.Getenv("OFTS_GATEWAY_SEARCHER_URL"); v != "" {
		cfg.Gateway.SearcherURL = v
	}
	if v := os.Getenv("OFTS_GATEWAY_ANALYTICS_URL"); v != "" {
		cfg.Gateway.AnalyticsURL = v
	}
	if v := os.Getenv("OFTS_GATEWAY_SEARCHER_RPC_ADDR"); v != "" {
		cfg.Gateway.SearcherRPCAddr = v
	}
}
