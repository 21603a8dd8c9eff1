// Package config loads the process environment into a typed Config, per
// spec.md §6's configuration surface.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the fully-resolved, validated process configuration.
type Config struct {
	Token              string
	DBPath             string
	Host               string
	Port               string
	SSLPort            string
	SSLCert            string
	SSLKey             string
	CompressionLevel   int
	CacheBytes         int
	FlushIntervalMS    int
	LogLevel           string
	MaxBatchOps        int
	ShutdownTimeoutMS  int
}

// TLSEnabled reports whether both cert and key paths are configured, the
// condition under which the h2 listener is started (spec.md §6).
func (c Config) TLSEnabled() bool {
	return c.SSLCert != "" && c.SSLKey != ""
}

// Load reads and validates the environment, returning an error instead of
// exiting so callers (cmd/kvserver's main) control process-exit behavior
// uniformly through zap's Fatal logging.
func Load() (Config, error) {
	c := Config{
		DBPath:            getenv("DB_PATH", "./kv_db"),
		Host:              getenv("HOST", "0.0.0.0"),
		Port:              getenv("PORT", "3000"),
		SSLPort:           getenv("SSL_PORT", "3443"),
		SSLCert:           os.Getenv("SSL_CERT"),
		SSLKey:            os.Getenv("SSL_KEY"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
	}

	token := os.Getenv("TOKEN")
	if token == "" {
		return Config{}, fmt.Errorf("config: TOKEN is required")
	}
	c.Token = token

	level, err := getenvInt("COMPRESSION_LEVEL", 1)
	if err != nil {
		return Config{}, err
	}
	c.CompressionLevel = clamp(level, 0, 9)

	cache, err := getenvInt("KV_CACHE_CAPACITY", 1<<30)
	if err != nil {
		return Config{}, err
	}
	c.CacheBytes = cache

	flush, err := getenvInt("KV_FLUSH_INTERVAL_MS", 1000)
	if err != nil {
		return Config{}, err
	}
	c.FlushIntervalMS = flush

	maxBatch, err := getenvInt("MAX_BATCH_OPS", 1000)
	if err != nil {
		return Config{}, err
	}
	if maxBatch < 100 {
		maxBatch = 100
	}
	c.MaxBatchOps = maxBatch

	shutdown, err := getenvInt("SHUTDOWN_TIMEOUT_MS", 5000)
	if err != nil {
		return Config{}, err
	}
	c.ShutdownTimeoutMS = shutdown

	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", k, v, err)
	}
	return n, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
