package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for toolcall.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Server   ServerConfig   `json:"server"`
	Tools    ToolsConfig    `json:"tools"`
	Security SecurityConfig `json:"security"`
	Journal  JournalConfig  `json:"journal"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`          // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

// ServerConfig configures the HTTP endpoint that accepts protocol envelopes.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Path         string `json:"path"`
	APIKey       string `json:"apiKey,omitempty"` // optional bearer key; empty disables the check
	MaxBodyBytes int64  `json:"maxBodyBytes"`

	RateLimit RateLimitConfig `json:"rateLimit"`
}

// RateLimitConfig bounds protocol requests with a token bucket. PerMinute 0 disables it.
type RateLimitConfig struct {
	PerMinute float64 `json:"perMinute"`
	Burst     int     `json:"burst"`
}

type ToolsConfig struct {
	ExtraDir string            `json:"extraDir,omitempty"` // directory of YAML template tools
	Code     CodeToolConfig    `json:"code"`
	Deploy   DeployToolConfig  `json:"deploy"`
	Website  WebsiteToolConfig `json:"website"`
	Command  CommandToolConfig `json:"command"`
	GitHub   GitHubToolConfig  `json:"github"`
}

type CodeToolConfig struct {
	DefaultLanguage string `json:"defaultLanguage"`
}

type DeployToolConfig struct {
	DefaultTarget string `json:"defaultTarget"`
}

type WebsiteToolConfig struct {
	DefaultURL     string `json:"defaultUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type CommandToolConfig struct {
	WorkingDir     string `json:"workingDir,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxOutputBytes int    `json:"maxOutputBytes"`
}

type GitHubToolConfig struct {
	APIBase        string `json:"apiBase"`
	Token          string `json:"token,omitempty"` // falls back to $GITHUB_TOKEN at call time
	DefaultOwner   string `json:"defaultOwner"`
	DefaultRepo    string `json:"defaultRepo"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type SecurityConfig struct {
	DefaultPolicy string   `json:"defaultPolicy"` // "allow" | "deny"
	Blacklist     []string `json:"blacklist"`
	Whitelist     []string `json:"whitelist"`
}

// JournalConfig configures the SQLite invocation journal.
type JournalConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.toolcall).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolcall"
	}
	return filepath.Join(home, ".toolcall")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	cfg.Tools.ExtraDir = ExpandPath(cfg.Tools.ExtraDir)
	cfg.Tools.Command.WorkingDir = ExpandPath(cfg.Tools.Command.WorkingDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} yields "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if exists && val != "" {
			return val
		}
		if hasDefault {
			return groups[2]
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		errs = append(errs, "server.path must start with /")
	}
	if cfg.Server.MaxBodyBytes < 1 {
		errs = append(errs, "server.maxBodyBytes must be >= 1")
	}
	if cfg.Server.RateLimit.PerMinute < 0 {
		errs = append(errs, "server.rateLimit.perMinute must be >= 0")
	}
	if cfg.Server.RateLimit.PerMinute > 0 && cfg.Server.RateLimit.Burst < 1 {
		errs = append(errs, "server.rateLimit.burst must be >= 1 when rate limiting is enabled")
	}

	if cfg.Tools.Website.TimeoutSeconds < 1 {
		errs = append(errs, "tools.website.timeoutSeconds must be >= 1")
	}
	if cfg.Tools.Command.TimeoutSeconds < 1 {
		errs = append(errs, "tools.command.timeoutSeconds must be >= 1")
	}
	if cfg.Tools.GitHub.TimeoutSeconds < 1 {
		errs = append(errs, "tools.github.timeoutSeconds must be >= 1")
	}
	if cfg.Tools.GitHub.APIBase == "" {
		errs = append(errs, "tools.github.apiBase is required")
	}

	switch cfg.Security.DefaultPolicy {
	case "allow", "deny":
	default:
		errs = append(errs, "security.defaultPolicy must be one of: allow, deny")
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.DBPath == "" {
			errs = append(errs, "journal.dbPath is required when the journal is enabled")
		}
		if cfg.Journal.RetentionDays < 1 {
			errs = append(errs, "journal.retentionDays must be >= 1")
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
