package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the triage service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Oracles    OraclesConfig    `yaml:"oracles"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Centroid   CentroidConfig   `yaml:"centroid"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Index      IndexConfig      `yaml:"index"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys            []string `yaml:"api_keys"`
	SlackSigningSecret string   `yaml:"slack_signing_secret"` // empty disables signature checks
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`

	CORSOrigins []string `yaml:"cors_origins"` // dashboard origins; empty allows any
}

// Storage drivers.
const (
	DriverValkey = "valkey"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, sqlite (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	SQLitePath       string   `yaml:"sqlite_path"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IsKeyValue reports whether the driver is valkey or redis.
func (d DatabaseConfig) IsKeyValue() bool {
	return d.Driver == DriverValkey || d.Driver == DriverRedis
}

// Vector index backends.
const (
	IndexMemory = "memory"
	IndexValkey = "valkey"
)

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Backend         string `yaml:"backend"` // memory, valkey (default: memory)
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding settings. Provider "local" selects the
// built-in hashing embedder and needs no credentials.
type EmbeddingConfig struct {
	Provider   string                    `yaml:"provider"`
	Model      string                    `yaml:"model"`
	Dimensions int                       `yaml:"dimensions"`
	CacheTTL   int                       `yaml:"cache_ttl_sec"`
	TimeoutSec int                       `yaml:"timeout_sec"` // per Embed call
	Providers  map[string]ProviderConfig `yaml:"providers"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// ProviderConfig holds remote provider credentials.
type ProviderConfig struct {
	Kind    string       `yaml:"kind"` // openai, anthropic
	APIKey  string       `yaml:"api_key"`
	BaseURL string       `yaml:"base_url"`
	Budget  BudgetConfig `yaml:"budget"`
}

// OraclesConfig holds the judgment oracles. The classifier labels messages,
// the judge answers follow-up and disambiguation questions.
type OraclesConfig struct {
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Classifier OracleConfig              `yaml:"classifier"`
	Judge      OracleConfig              `yaml:"judge"`
}

// OracleConfig selects a provider and bounds its calls.
type OracleConfig struct {
	Provider          string  `yaml:"provider"` // provider name, "keyword", or "" (disabled)
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	MaxConcurrent     int     `yaml:"max_concurrent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
	Burst             int     `yaml:"burst"`
}

// ClusteringConfig holds decision procedure parameters.
type ClusteringConfig struct {
	FetchK               int     `yaml:"fetch_k"`
	WeightSemantic       float64 `yaml:"weight_semantic"`
	WeightMetadata       float64 `yaml:"weight_metadata"`
	WeightTemporal       float64 `yaml:"weight_temporal"`
	LabelMatchBoost      float64 `yaml:"label_match_boost"`
	LabelMismatchPenalty float64 `yaml:"label_mismatch_penalty"`
	HalfLifeHours        float64 `yaml:"half_life_hours"`
	BaseThreshold        float64 `yaml:"base_threshold"`
	HighThreshold        float64 `yaml:"high_threshold"`
	FollowupThreshold    float64 `yaml:"followup_threshold"`
	ShortTextWords       int     `yaml:"short_text_words"`
}

// CentroidConfig holds centroid recomputation parameters.
type CentroidConfig struct {
	MaxMessages int     `yaml:"max_messages"`
	MinWords    int     `yaml:"min_words"`
	ScanLimit   int     `yaml:"scan_limit"`
	MaxWeight   float64 `yaml:"max_weight"`
	MinWeight   float64 `yaml:"min_weight"`
}

// DedupConfig holds the recency cache size.
type DedupConfig struct {
	Capacity int `yaml:"capacity"`
}

// IngestConfig holds the async ingestion worker pool settings.
type IngestConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Backend == "" {
		c.Index.Backend = IndexMemory
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 15
	}
	applyOracleDefaults(&c.Oracles.Classifier)
	applyOracleDefaults(&c.Oracles.Judge)
	c.Clustering.applyDefaults()
	c.Centroid.applyDefaults()
	if c.Dedup.Capacity <= 0 {
		c.Dedup.Capacity = 10000
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.QueueSize <= 0 {
		c.Ingest.QueueSize = 256
	}
}

func applyOracleDefaults(o *OracleConfig) {
	if o.TimeoutSec <= 0 {
		o.TimeoutSec = 15
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 8
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
}

func (c *ClusteringConfig) applyDefaults() {
	if c.FetchK <= 0 {
		c.FetchK = 25
	}
	if c.WeightSemantic <= 0 && c.WeightMetadata <= 0 && c.WeightTemporal <= 0 {
		c.WeightSemantic, c.WeightMetadata, c.WeightTemporal = 0.3, 0.3, 0.2
	}
	if c.LabelMatchBoost <= 0 {
		c.LabelMatchBoost = 0.15
	}
	if c.LabelMismatchPenalty <= 0 {
		c.LabelMismatchPenalty = 0.05
	}
	if c.HalfLifeHours <= 0 {
		c.HalfLifeHours = 24
	}
	if c.BaseThreshold <= 0 {
		c.BaseThreshold = 0.35
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = 0.6
	}
	if c.FollowupThreshold <= 0 {
		c.FollowupThreshold = 0.6
	}
	if c.ShortTextWords <= 0 {
		c.ShortTextWords = 6
	}
}

func (c *CentroidConfig) applyDefaults() {
	if c.MaxMessages <= 0 {
		c.MaxMessages = 5
	}
	if c.MinWords <= 0 {
		c.MinWords = 5
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = 50
	}
	if c.MaxWeight <= 0 {
		c.MaxWeight = 1.0
	}
	if c.MinWeight <= 0 {
		c.MinWeight = 0.3
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverValkey, DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be valkey, redis or sqlite, got %q", c.Database.Driver)
	}
	switch c.Index.Backend {
	case IndexMemory:
	case IndexValkey:
		if !c.Database.IsKeyValue() {
			return fmt.Errorf("index.backend valkey requires database.driver valkey or redis")
		}
	default:
		return fmt.Errorf("index.backend must be memory or valkey, got %q", c.Index.Backend)
	}
	if c.Embedding.Provider != "local" {
		if _, ok := c.Embedding.Providers[c.Embedding.Provider]; !ok {
			return fmt.Errorf("embedding.provider %q is not defined in embedding.providers", c.Embedding.Provider)
		}
		if c.Embedding.Providers[c.Embedding.Provider].Kind == "anthropic" {
			return fmt.Errorf("embedding.provider %q: anthropic has no embeddings API", c.Embedding.Provider)
		}
	}
	if err := validateProviders("embedding.providers", c.Embedding.Providers); err != nil {
		return err
	}
	if err := validateProviders("oracles.providers", c.Oracles.Providers); err != nil {
		return err
	}
	for name, o := range map[string]OracleConfig{"classifier": c.Oracles.Classifier, "judge": c.Oracles.Judge} {
		switch o.Provider {
		case "", "keyword":
		default:
			if _, ok := c.Oracles.Providers[o.Provider]; !ok {
				return fmt.Errorf("oracles.%s.provider %q is not defined in oracles.providers", name, o.Provider)
			}
		}
	}
	cl := c.Clustering
	if cl.BaseThreshold > 1 || cl.HighThreshold > 1 || cl.FollowupThreshold > 1 {
		return fmt.Errorf("clustering thresholds must be within [0, 1]")
	}
	if cl.WeightSemantic < 0 || cl.WeightMetadata < 0 || cl.WeightTemporal < 0 {
		return fmt.Errorf("clustering weights must be non-negative")
	}
	if c.Centroid.MinWeight > c.Centroid.MaxWeight {
		return fmt.Errorf("centroid.min_weight must not exceed centroid.max_weight")
	}
	return nil
}

func validateProviders(section string, providers map[string]ProviderConfig) error {
	for name, p := range providers {
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"%s.%s.budget.action must be \"warn\" or \"reject\", got %q",
				section, name, p.Budget.Action,
			)
		}
		switch p.Kind {
		case "", "openai", "anthropic":
		default:
			return fmt.Errorf("%s.%s.kind must be openai or anthropic, got %q", section, name, p.Kind)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
