// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem: the served books, query pipeline tuning, caching, messaging,
// storage and the observability stack.
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
	Server    ServerConfig    `yaml:"server"`
	Books     []BookConfig    `yaml:"books"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Planner   PlannerConfig   `yaml:"planner"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Search    SearchConfig    `yaml:"search"`
	Snippet   SnippetConfig   `yaml:"snippet"`
	Content   ContentConfig   `yaml:"content"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	MCP       MCPConfig       `yaml:"mcp"`
	Admin     AdminConfig     `yaml:"admin"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// BookConfig describes one published search index. Source is a local path to
// searchindex.js (or its JSON body) or an http(s) URL.
type BookConfig struct {
	Name          string        `yaml:"name"`
	Source        string        `yaml:"source"`
	Default       bool          `yaml:"default"`
	LinkSuffix    string        `yaml:"linkSuffix"`
	WatchInterval time.Duration `yaml:"watchInterval"`
	ContentDir    string        `yaml:"contentDir"`
}

// TokenizerConfig must match the rules the index builder used, otherwise
// query terms will not line up with indexed terms.
type TokenizerConfig struct {
	MinLength       int      `yaml:"minLength"`
	Allowlist       []string `yaml:"allowlist"`
	StopWords       []string `yaml:"stopWords"`
	Stemmer         string   `yaml:"stemmer"`
	KeepApostrophes bool     `yaml:"keepApostrophes"`
}

type PlannerConfig struct {
	PrefixScanLimit   int `yaml:"prefixScanLimit"`
	MinPrefixLength   int `yaml:"minPrefixLength"`
	ObjectPrefixLimit int `yaml:"objectPrefixLimit"`
}

// ScoringConfig holds the additive weights used by the ranker.
type ScoringConfig struct {
	Term           float64         `yaml:"term"`
	PartialTerm    float64         `yaml:"partialTerm"`
	Title          float64         `yaml:"title"`
	PartialTitle   float64         `yaml:"partialTitle"`
	Object         float64         `yaml:"object"`
	ObjectPartial  float64         `yaml:"objectPartial"`
	ObjectPriority map[int]float64 `yaml:"objectPriority"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	CacheEnabled bool          `yaml:"cacheEnabled"`
}

type SnippetConfig struct {
	Length  int `yaml:"length"`
	Context int `yaml:"context"`
}

// ContentConfig selects where page text for snippets comes from.
// Backend is one of "none", "dir" or "postgres".
type ContentConfig struct {
	Backend          string        `yaml:"backend"`
	Timeout          time.Duration `yaml:"timeout"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
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
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexPublished  string `yaml:"indexPublished"`
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

type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Port             int           `yaml:"port"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`

	// SnapshotRetention bounds how long snapshots are kept; zero keeps all.
	SnapshotRetention time.Duration `yaml:"snapshotRetention"`
}

// SecretsConfig names AWS Secrets Manager entries that replace plain-text
// passwords at startup. Empty names are left alone.
type SecretsConfig struct {
	Provider         string `yaml:"provider"`
	Region           string `yaml:"region"`
	RedisPassword    string `yaml:"redisPassword"`
	PostgresPassword string `yaml:"postgresPassword"`
	AdminToken       string `yaml:"adminToken"`
}

type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Name    string `yaml:"name"`
}

type AdminConfig struct {
	Token string `yaml:"token"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls OpenTelemetry span emission.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values, validated.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied, for tools that run without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Tokenizer: TokenizerConfig{
			MinLength: 3,
			Allowlist: []string{"ai", "ml", "ui", "ux", "io", "db", "os", "go"},
			Stemmer:   "porter",
		},
		Planner: PlannerConfig{
			PrefixScanLimit:   20,
			MinPrefixLength:   3,
			ObjectPrefixLimit: 10,
		},
		Scoring: ScoringConfig{
			Term:           5,
			PartialTerm:    2,
			Title:          15,
			PartialTitle:   7,
			Object:         40,
			ObjectPartial:  20,
			ObjectPriority: map[int]float64{0: 15, 1: 5, 2: -5},
		},
		Search: SearchConfig{
			MaxResults:   50,
			DefaultLimit: 10,
			QueryTimeout: 2 * time.Second,
		},
		Snippet: SnippetConfig{
			Length:  240,
			Context: 120,
		},
		Content: ContentConfig{
			Backend:          "none",
			Timeout:          200 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch-group",
			Topics: KafkaTopics{
				IndexPublished:  "index-published",
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
		Analytics: AnalyticsConfig{
			Port:              8083,
			BatchSize:         100,
			FlushInterval:     5 * time.Second,
			SnapshotInterval:  time.Minute,
			SnapshotRetention: 30 * 24 * time.Hour,
		},
		MCP: MCPConfig{
			Path: "/mcp",
			Name: "docsearch",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "docsearch",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports configuration that would make the search pipeline
// misbehave rather than fail loudly.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Books))
	defaults := 0
	for i, b := range c.Books {
		if b.Name == "" {
			return fmt.Errorf("books[%d]: name is required", i)
		}
		if b.Source == "" {
			return fmt.Errorf("books[%d] %q: source is required", i, b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("books[%d]: duplicate book name %q", i, b.Name)
		}
		seen[b.Name] = true
		if b.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("books: %d books marked default, at most one allowed", defaults)
	}

	switch c.Tokenizer.Stemmer {
	case "porter", "snowball", "suffix", "none":
	default:
		return fmt.Errorf("tokenizer.stemmer: unknown stemmer %q", c.Tokenizer.Stemmer)
	}
	if c.Tokenizer.MinLength < 1 {
		return fmt.Errorf("tokenizer.minLength must be at least 1, got %d", c.Tokenizer.MinLength)
	}
	if c.Planner.PrefixScanLimit < 0 || c.Planner.ObjectPrefixLimit < 0 {
		return fmt.Errorf("planner: prefix limits must not be negative")
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.maxResults must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("search.defaultLimit must be in [1, %d], got %d", c.Search.MaxResults, c.Search.DefaultLimit)
	}

	s := c.Scoring
	if s.Title <= s.Term {
		return fmt.Errorf("scoring: title weight %.1f must exceed term weight %.1f", s.Title, s.Term)
	}
	lowest := 0.0
	for _, w := range s.ObjectPriority {
		lowest = min(lowest, w)
	}
	if s.Object+lowest <= s.Title {
		return fmt.Errorf("scoring: object weight %.1f with priority bonus %.1f must exceed title weight %.1f",
			s.Object, lowest, s.Title)
	}

	switch c.Content.Backend {
	case "none", "dir", "postgres":
	default:
		return fmt.Errorf("content.backend: unknown backend %q", c.Content.Backend)
	}
	switch c.Secrets.Provider {
	case "", "aws":
	default:
		return fmt.Errorf("secrets.provider: unknown provider %q", c.Secrets.Provider)
	}
	return nil
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_BOOK_SOURCE"); v != "" {
		name := os.Getenv("DS_BOOK_NAME")
		if name == "" {
			name = "default"
		}
		cfg.Books = []BookConfig{{Name: name, Source: v, Default: true}}
	}
	if v := os.Getenv("DS_TOKENIZER_STEMMER"); v != "" {
		cfg.Tokenizer.Stemmer = v
	}
	if v := os.Getenv("DS_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("DS_SEARCH_CACHE_ENABLED"); v != "" {
		cfg.Search.CacheEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DS_CONTENT_BACKEND"); v != "" {
		cfg.Content.Backend = v
	}
	if v := os.Getenv("DS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("DS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
