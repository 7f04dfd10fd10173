package triage

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver     string // "valkey", "redis" or "sqlite"
	addrs      []string
	password   string
	sqlitePath string

	embedder     Embedder
	dimensions   int
	embedTimeout time.Duration

	classifier Completer
	judge      Completer

	dailyTokenLimit int64
	dedupCapacity   int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey stores issues and messages in a Valkey instance with the search module.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis stores issues and messages in Redis 8+.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithSQLite stores issues and messages in a local SQLite file.
// The candidate index is then kept in memory and rebuilt on New.
func WithSQLite(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "sqlite"
		c.sqlitePath = path
	})
}

// WithEmbedder sets the text embedding provider.
// Defaults to a local feature-hashing embedder.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithDimensions sets the embedding dimension. Defaults to 384.
func WithDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dimensions = dim
	})
}

// WithEmbedTimeout bounds each embedding call. A message whose embedding
// times out is stored without a vector. Default: 15s.
func WithEmbedTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedTimeout = d
	})
}

// WithClassifierCompleter classifies messages with a chat model instead of keywords.
func WithClassifierCompleter(cp Completer) Option {
	return optionFunc(func(c *clientConfig) {
		c.classifier = cp
	})
}

// WithJudgeCompleter enables follow-up detection and disambiguation of
// ambiguous candidates with a chat model.
func WithJudgeCompleter(cp Completer) Option {
	return optionFunc(func(c *clientConfig) {
		c.judge = cp
	})
}

// WithDailyTokenLimit caps embedding tokens per UTC day. 0 (default) is unlimited.
func WithDailyTokenLimit(limit int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyTokenLimit = limit
	})
}

// WithDedupCapacity sets how many recent external ids are remembered
// for duplicate suppression. Default: 10000.
func WithDedupCapacity(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dedupCapacity = n
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
