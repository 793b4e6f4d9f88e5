// Package config loads takeout-fixer configuration from command-line flags,
// environment variables and an optional .env file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sidecar failure policies.
const (
	SidecarPolicyReport = "report"
	SidecarPolicyFatal  = "fatal"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	ExifTool ExifToolConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	Inbox    InboxConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the location of persisted run history.
type DataConfig struct {
	BasePath string
}

// ExifToolConfig locates the exiftool binary used to embed metadata.
type ExifToolConfig struct {
	Path string
}

// PipelineConfig tunes a reconciliation run.
type PipelineConfig struct {
	// SidecarPolicy is "report" (pause and skip the pair) or "fatal".
	SidecarPolicy string
	SkipHidden    bool
	// AutoSkip resolves every per-file error with skip without asking.
	AutoSkip bool
}

// ServerConfig holds control server configuration.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration // zero keeps SSE streams open
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// InboxConfig configures the watched drop folder. Empty Path disables it.
type InboxConfig struct {
	Path        string
	SettleDelay time.Duration
}

// Load builds the configuration for the named command with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// It returns the positional arguments left after flag parsing.
func Load(name string, args []string) (*Config, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for run history (default: ~/.takeout-fixer)")
	exiftool := fs.String("exiftool", "", "Path to the exiftool binary (default: exiftool)")
	sidecarPolicy := fs.String("sidecar-policy", "", "On unreadable sidecar: report or fatal (default: report)")
	skipHidden := fs.String("skip-hidden", "", "Skip dot-files while walking (default: false)")
	autoSkip := fs.Bool("yes", false, "Skip failed files without prompting")

	port := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0, unlimited)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	origins := fs.String("allowed-origins", "", "Comma separated CORS origins (default: *)")

	inbox := fs.String("inbox", "", "Directory watched for new archives")
	settle := fs.String("settle-delay", "", "Quiet period before an inbox file is processed (default: 2s)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	// Missing .env is fine.
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "TAKEOUT_DATA_PATH", ""),
		},
		ExifTool: ExifToolConfig{
			Path: getConfigValue(*exiftool, "EXIFTOOL_PATH", "exiftool"),
		},
		Pipeline: PipelineConfig{
			SidecarPolicy: strings.ToLower(getConfigValue(*sidecarPolicy, "SIDECAR_POLICY", SidecarPolicyReport)),
			SkipHidden:    getBoolConfigValue(*skipHidden, "SKIP_HIDDEN", false),
			AutoSkip:      *autoSkip || getBoolConfigValue("", "AUTO_SKIP", false),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*port, "SERVER_PORT", "8080"),
			AllowedOrigins: splitList(getConfigValue(*origins, "ALLOWED_ORIGINS", "*")),
		},
		Inbox: InboxConfig{
			Path: getConfigValue(*inbox, "INBOX_PATH", ""),
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = getDurationConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "0s"); err != nil {
		return nil, nil, err
	}
	if cfg.Server.IdleTimeout, err = getDurationConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, nil, err
	}
	if cfg.Inbox.SettleDelay, err = getDurationConfigValue(*settle, "INBOX_SETTLE_DELAY", "2s"); err != nil {
		return nil, nil, err
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, fs.Args(), nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Pipeline.SidecarPolicy {
	case SidecarPolicyReport, SidecarPolicyFatal:
	default:
		return fmt.Errorf("invalid sidecar policy: %q (must be report or fatal)", c.Pipeline.SidecarPolicy)
	}

	if c.ExifTool.Path == "" {
		return errors.New("exiftool path cannot be empty")
	}
	if c.Data.BasePath == "" {
		return errors.New("data path cannot be empty after expansion")
	}
	if c.Inbox.Path != "" && c.Inbox.SettleDelay <= 0 {
		return errors.New("settle delay must be positive when an inbox is configured")
	}

	return nil
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.Data.BasePath, err = expandPath(c.Data.BasePath, filepath.Join(homeDir, ".takeout-fixer")); err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	if c.Inbox.Path, err = expandPath(c.Inbox.Path, ""); err != nil {
		return fmt.Errorf("invalid inbox path: %w", err)
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1" and "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	raw := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(envKey), raw, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- config file path comes from the operator
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment wins over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
