package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file search.
const PathEnvVar = "CLASSTRACE_CONFIG"

// DefaultPaths are searched in order when PathEnvVar is unset.
var DefaultPaths = []string{
	"classtrace.yaml",
	"classtrace.yml",
	"/etc/classtrace/classtrace.yaml",
}

// envKeys maps environment variable names onto koanf paths. Variables not in
// the table are ignored.
var envKeys = map[string]string{
	"CLASSTRACE_ADDRESS":           "server.address",
	"CLASSTRACE_READ_TIMEOUT":      "server.read_timeout",
	"CLASSTRACE_WRITE_TIMEOUT":     "server.write_timeout",
	"CLASSTRACE_SHUTDOWN_TIMEOUT":  "server.shutdown_timeout",
	"CLASSTRACE_CORS_ORIGINS":      "server.cors_origins",
	"CLASSTRACE_RATE_LIMIT":        "server.rate_limit",
	"CLASSTRACE_RATE_LIMIT_WINDOW": "server.rate_limit_window",
	"CLASSTRACE_DB_PATH":           "database.path",
	"CLASSTRACE_SINK_URL":          "sink.base_url",
	"CLASSTRACE_SINK_TIMEOUT":      "sink.timeout",
	"CLASSTRACE_BATCH_SIZE":        "sink.batch_size",
	"CLASSTRACE_MAX_ATTEMPTS":      "sink.max_attempts",
	"CLASSTRACE_FLUSH_INTERVAL":    "sink.flush_interval",
	"CLASSTRACE_BREAKER_FAILURES":  "sink.breaker_failures",
	"CLASSTRACE_BREAKER_OPEN_FOR":  "sink.breaker_open_for",
	"CLASSTRACE_SPOOL_ENABLED":     "spool.enabled",
	"CLASSTRACE_SPOOL_DIR":         "spool.dir",
	"CLASSTRACE_SCROLL_THROTTLE":   "tracker.scroll_throttle",
	"CLASSTRACE_HOVER_TTL":         "tracker.hover_ttl",
	"CLASSTRACE_TICK_INTERVAL":     "tracker.tick_interval",
	"CLASSTRACE_RECENT_ACTIONS":    "tracker.recent_actions",
	"LOG_LEVEL":                    "logging.level",
	"LOG_FORMAT":                   "logging.format",
	"LOG_CALLER":                   "logging.caller",
	// names used by the original dashboard deployment
	"PORT":         "server.port",
	"VITE_API_URL": "sink.base_url",
}

// Load builds the configuration: defaults, then the YAML file if one exists,
// then environment variables. A .env file in the working directory is loaded
// into the environment first; variables already set win.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path ("" for none) and
// without .env handling.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// PORT only carries a port number; fold it into the listen address.
	if port := k.String("server.port"); port != "" {
		host := "127.0.0.1"
		if addr := k.String("server.address"); addr != "" {
			if i := strings.LastIndex(addr, ":"); i >= 0 {
				host = addr[:i]
			}
		}
		if err := k.Set("server.address", host+":"+port); err != nil {
			return nil, fmt.Errorf("failed to apply PORT: %w", err)
		}
	}

	// Comma-separated env values for list fields.
	if raw, ok := k.Get("server.cors_origins").(string); ok {
		if err := k.Set("server.cors_origins", splitList(raw)); err != nil {
			return nil, fmt.Errorf("failed to split cors origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func envTransform(key string) string {
	return envKeys[key]
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
