// Package config handles graphkv configuration from a YAML file and environment variables.
//
// Configuration is read from a YAML file with Load(), or built from defaults with
// LoadFromEnv(). In both cases environment variables prefixed with GRAPHKV_ take
// precedence over file settings, which keeps container deployments free of config files.
//
// Example Usage:
//
//	cfg, err := config.Load("./graphkv.yaml")
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	engine, err := storage.Open(cfg.StorageOptions(logger))
//
// Environment Variables:
//   - GRAPHKV_DATA_DIR="./data"
//   - GRAPHKV_IN_MEMORY=false
//   - GRAPHKV_SYNC_WRITES=false
//   - GRAPHKV_LOW_MEMORY=false
//   - GRAPHKV_BLOCK_CACHE_SIZE="256MB"
//   - GRAPHKV_LOG_LEVEL="info"
//   - GRAPHKV_LOG_JSON=false
//   - GRAPHKV_INDICES="by_name:name,email" (name[:property], comma separated)
//
// Example YAML:
//
//	storage:
//	  data_dir: ./data
//	  sync_writes: true
//	logging:
//	  level: debug
//	schema:
//	  indices:
//	    - name: by_name
//	      property: name
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/orneryd/graphkv/pkg/log"
	"github.com/orneryd/graphkv/pkg/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all graphkv configuration.
//
// Configuration is organized into logical sections:
//   - Storage: Badger data directory and tuning
//   - Logging: zap level and encoding
//   - Schema: declared secondary indices, fixed once the engine opens
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Schema  SchemaConfig  `yaml:"schema"`
}

// StorageConfig holds storage engine settings.
type StorageConfig struct {
	// DataDir is the Badger directory. Env: GRAPHKV_DATA_DIR
	DataDir string `yaml:"data_dir"`
	// InMemory keeps all data in memory. Env: GRAPHKV_IN_MEMORY
	InMemory bool `yaml:"in_memory"`
	// SyncWrites fsyncs every commit. Env: GRAPHKV_SYNC_WRITES
	SyncWrites bool `yaml:"sync_writes"`
	// LowMemory shrinks Badger's memtables and caches. Env: GRAPHKV_LOW_MEMORY
	LowMemory bool `yaml:"low_memory"`
	// BlockCacheSize is a human-readable size such as "256MB"; empty or "0" keeps the
	// engine default. Env: GRAPHKV_BLOCK_CACHE_SIZE
	BlockCacheSize string `yaml:"block_cache_size,omitempty"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Env: GRAPHKV_LOG_LEVEL
	Level string `yaml:"level"`
	// JSON selects the JSON encoder. Env: GRAPHKV_LOG_JSON
	JSON bool `yaml:"json"`
}

// SchemaConfig declares the secondary indices.
type SchemaConfig struct {
	Indices []storage.IndexDef `yaml:"indices"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{DataDir: "./data"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadFromEnv returns the defaults with environment overrides applied.
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML file, fills unset fields from Default, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = Default().Storage.DataDir
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = Default().Logging.Level
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists, and otherwise falls back to LoadFromEnv.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return LoadFromEnv(), nil
	}
	return Load(path)
}

// Save writes the configuration as YAML, refusing to overwrite an existing file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Config) applyEnv() {
	c.Storage.DataDir = getEnv("GRAPHKV_DATA_DIR", c.Storage.DataDir)
	c.Storage.InMemory = getEnvBool("GRAPHKV_IN_MEMORY", c.Storage.InMemory)
	c.Storage.SyncWrites = getEnvBool("GRAPHKV_SYNC_WRITES", c.Storage.SyncWrites)
	c.Storage.LowMemory = getEnvBool("GRAPHKV_LOW_MEMORY", c.Storage.LowMemory)
	c.Storage.BlockCacheSize = getEnv("GRAPHKV_BLOCK_CACHE_SIZE", c.Storage.BlockCacheSize)
	c.Logging.Level = getEnv("GRAPHKV_LOG_LEVEL", c.Logging.Level)
	c.Logging.JSON = getEnvBool("GRAPHKV_LOG_JSON", c.Logging.JSON)

	if specs := getEnvStringSlice("GRAPHKV_INDICES", nil); specs != nil {
		c.Schema.Indices = parseIndexSpecs(specs)
	}
}

// parseIndexSpecs turns "name" or "name:property" entries into index definitions.
func parseIndexSpecs(specs []string) []storage.IndexDef {
	defs := make([]storage.IndexDef, 0, len(specs))
	for _, spec := range specs {
		name, property, _ := strings.Cut(spec, ":")
		defs = append(defs, storage.IndexDef{
			Name:     strings.TrimSpace(name),
			Property: strings.TrimSpace(property),
		})
	}
	return defs
}

// Validate checks the configuration for errors.
//
// Returns nil if configuration is valid, or an error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("%w: storage.data_dir is required unless in_memory is set", ErrInvalidConfig)
	}
	if _, err := parseMemorySize(c.Storage.BlockCacheSize); err != nil {
		return fmt.Errorf("%w: storage.block_cache_size: %w", ErrInvalidConfig, err)
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	seen := make(map[string]struct{}, len(c.Schema.Indices))
	for i, def := range c.Schema.Indices {
		switch {
		case def.Name == "":
			return fmt.Errorf("%w: schema.indices[%d] has no name", ErrInvalidConfig, i)
		case strings.ContainsRune(def.Name, 0) || strings.ContainsRune(def.Property, 0):
			return fmt.Errorf("%w: schema.indices[%d] contains a NUL byte", ErrInvalidConfig, i)
		}
		if _, dup := seen[def.Name]; dup {
			return fmt.Errorf("%w: duplicate index %q", ErrInvalidConfig, def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	return nil
}

// StorageOptions converts the configuration into engine options. Call Validate first;
// an unparseable cache size is ignored here.
func (c *Config) StorageOptions(logger *zap.Logger) storage.Options {
	cacheSize, _ := parseMemorySize(c.Storage.BlockCacheSize)
	return storage.Options{
		DataDir:        c.Storage.DataDir,
		InMemory:       c.Storage.InMemory,
		SyncWrites:     c.Storage.SyncWrites,
		LowMemory:      c.Storage.LowMemory,
		BlockCacheSize: cacheSize,
		Indices:        append([]storage.IndexDef(nil), c.Schema.Indices...),
		Logger:         logger,
	}
}

// LogOpts converts the logging section into logger options.
func (c *Config) LogOpts() *log.LogOpts {
	return &log.LogOpts{Level: c.Logging.Level, JSON: c.Logging.JSON}
}

// String returns a one-line summary suitable for logging.
func (c *Config) String() string {
	names := make([]string, len(c.Schema.Indices))
	for i, def := range c.Schema.Indices {
		names[i] = def.Name + ":" + def.PropertyKey()
	}
	cache := "default"
	if size, err := parseMemorySize(c.Storage.BlockCacheSize); err == nil && size > 0 {
		cache = FormatMemorySize(size)
	}
	return fmt.Sprintf(
		"Config{DataDir: %s, InMemory: %v, SyncWrites: %v, BlockCache: %s, LogLevel: %s, Indices: [%s]}",
		c.Storage.DataDir, c.Storage.InMemory, c.Storage.SyncWrites, cache,
		c.Logging.Level, strings.Join(names, ", "),
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB", "0", "" and "unlimited" (zero).
func parseMemorySize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0, nil
	}
	orig := s

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("size %q not understood", orig)
	}
	if val < 0 {
		return 0, fmt.Errorf("size %q is negative", orig)
	}
	return val * multiplier, nil
}

// FormatMemorySize formats bytes as human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
