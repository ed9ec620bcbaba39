// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Gateway   GatewayConfig
	Providers map[string]ProviderConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Usage     UsageConfig
	Storage   StorageConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string
	Port          string
	AccessCodes   []string
	BodySizeLimit string
}

// GatewayConfig holds the defaults applied when a request names no provider or model.
type GatewayConfig struct {
	DefaultProvider string
	DefaultModel    string
	// Timeout bounds a buffered exchange end to end, and idle time between
	// reads for a stream.
	Timeout time.Duration
}

// ProviderConfig is one provider entry, sourced from environment variables
// and optionally from the providers file.
type ProviderConfig struct {
	Name         string        `yaml:"name"`
	Shape        string        `yaml:"shape"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	DefaultModel string        `yaml:"default_model"`
	Models       []ModelConfig `yaml:"models"`
}

// ModelConfig is one catalogue entry in the providers file.
type ModelConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Context int    `yaml:"context"`
}

// LoggingConfig holds application log settings
type LoggingConfig struct {
	// Format is "json", "text" or "auto" (text on a terminal, JSON otherwise)
	Format string
	Level  string
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// UsageConfig holds usage ledger settings
type UsageConfig struct {
	Enabled       bool
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
}

// StorageConfig holds the usage ledger backend settings
type StorageConfig struct {
	// Type is "sqlite", "postgresql" or "mongodb"
	Type            string
	SQLitePath      string
	PostgresURL     string
	PostgresMaxConn int
	MongoURL        string
	MongoDatabase   string
}

// knownProviders are the providers configurable through <PREFIX>_API_KEY and
// <PREFIX>_BASE_URL environment variables.
var knownProviders = []string{"openai", "anthropic", "deepseek", "siliconflow"}

// Load reads configuration from the .env file, the environment and the
// optional providers file named by PROVIDERS_FILE.
func Load() (*Config, error) {
	// .env is optional; variables already in the environment win
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:          v.GetString("HOST"),
			Port:          v.GetString("PORT"),
			AccessCodes:   splitList(v.GetString("ACCESS_CODE_LIST")),
			BodySizeLimit: v.GetString("BODY_SIZE_LIMIT"),
		},
		Gateway: GatewayConfig{
			DefaultProvider: v.GetString("AI_PROVIDER"),
			DefaultModel:    v.GetString("AI_MODEL"),
			Timeout:         parseDuration(v.GetString("HTTP_TIMEOUT"), 120*time.Second),
		},
		Providers: make(map[string]ProviderConfig),
		Logging: LoggingConfig{
			Format: v.GetString("LOG_FORMAT"),
			Level:  v.GetString("LOG_LEVEL"),
		},
		Metrics: MetricsConfig{
			Enabled:  v.GetBool("METRICS_ENABLED"),
			Endpoint: v.GetString("METRICS_ENDPOINT"),
		},
		Usage: UsageConfig{
			Enabled:       v.GetBool("USAGE_ENABLED"),
			BufferSize:    v.GetInt("USAGE_BUFFER_SIZE"),
			FlushInterval: parseDuration(v.GetString("USAGE_FLUSH_INTERVAL"), 5*time.Second),
			RetentionDays: v.GetInt("USAGE_RETENTION_DAYS"),
		},
		Storage: StorageConfig{
			Type:            v.GetString("STORAGE_TYPE"),
			SQLitePath:      v.GetString("SQLITE_PATH"),
			PostgresURL:     v.GetString("POSTGRES_URL"),
			PostgresMaxConn: v.GetInt("POSTGRES_MAX_CONNS"),
			MongoURL:        v.GetString("MONGODB_URL"),
			MongoDatabase:   v.GetString("MONGODB_DATABASE"),
		},
	}

	if path := v.GetString("PROVIDERS_FILE"); path != "" {
		fileProviders, err := loadProvidersFile(path)
		if err != nil {
			return nil, err
		}
		for id, p := range fileProviders {
			cfg.Providers[id] = p
		}
	}

	for _, id := range knownProviders {
		prefix := strings.ToUpper(id)
		existing := cfg.Providers[id]
		if key := v.GetString(prefix + "_API_KEY"); key != "" {
			existing.APIKey = key
		}
		if baseURL := v.GetString(prefix + "_BASE_URL"); baseURL != "" {
			existing.BaseURL = baseURL
		}
		cfg.Providers[id] = existing
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "3001")
	v.SetDefault("BODY_SIZE_LIMIT", "10M")
	v.SetDefault("AI_PROVIDER", "openai")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("HTTP_TIMEOUT", "120")
	v.SetDefault("LOG_FORMAT", "auto")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("METRICS_ENABLED", false)
	v.SetDefault("METRICS_ENDPOINT", "/metrics")
	v.SetDefault("USAGE_ENABLED", false)
	v.SetDefault("USAGE_BUFFER_SIZE", 1000)
	v.SetDefault("USAGE_FLUSH_INTERVAL", "5s")
	v.SetDefault("USAGE_RETENTION_DAYS", 90)
	v.SetDefault("STORAGE_TYPE", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/chatgateway.db")
	v.SetDefault("POSTGRES_MAX_CONNS", 10)
	v.SetDefault("MONGODB_DATABASE", "chatgateway")
}

// providersFile is the top-level layout of the providers file.
type providersFile struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// loadProvidersFile reads provider profiles from a YAML file, expanding
// ${VAR} and ${VAR:-default} references in string values.
func loadProvidersFile(path string) (map[string]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %s: %w", path, err)
	}

	for id, p := range file.Providers {
		p.Name = expandString(p.Name)
		p.BaseURL = expandString(p.BaseURL)
		p.APIKey = expandString(p.APIKey)
		p.DefaultModel = expandString(p.DefaultModel)
		// an unresolved reference means the credential is absent
		if strings.Contains(p.APIKey, "${") {
			p.APIKey = ""
		}
		file.Providers[id] = p
	}
	return file.Providers, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// References that resolve to nothing and carry no default are left as-is.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRefPattern.FindStringSubmatch(ref)
		if val := os.Getenv(m[1]); val != "" {
			return val
		}
		if m[2] != "" {
			return m[3]
		}
		return ref
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration accepts plain integers (seconds) or Go duration strings.
func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}
