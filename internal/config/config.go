package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all ragchat configuration.
type Config struct {
	// Backend RAG service
	Backend BackendConfig `yaml:"backend"`

	// Bearer token source
	Auth AuthConfig `yaml:"auth"`

	// Knowledge base file handling
	Files FilesConfig `yaml:"files"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Interactive UI
	UI UIConfig `yaml:"ui"`
}

// BackendConfig configures the gateway client.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	RequestTimeout string `yaml:"request_timeout"`
	AskTimeout     string `yaml:"ask_timeout"` // bound on a single /ask round trip
}

// AuthConfig configures where the bearer token comes from.
// Token wins over TokenFile when both are set.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// FilesConfig configures upload and folder watching.
type FilesConfig struct {
	UploadField     string   `yaml:"upload_field" validate:"oneof=file_uploads file"`
	RefreshDelay    string   `yaml:"refresh_delay"` // indexing lag before re-listing
	WatchDir        string   `yaml:"watch_dir"`
	WatchExtensions []string `yaml:"watch_extensions"`
}

// UIConfig configures the TUI.
type UIConfig struct {
	Theme    string `yaml:"theme" validate:"omitempty,oneof=dark light"`
	Markdown bool   `yaml:"markdown"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: "30s",
			AskTimeout:     "120s",
		},
		Files: FilesConfig{
			UploadField:     "file_uploads",
			RefreshDelay:    "2s",
			WatchExtensions: []string{".pdf", ".txt", ".md", ".docx"},
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      DefaultLogPath(),
			DebugMode: false,
		},
		UI: UIConfig{
			Theme:    "dark",
			Markdown: true,
		},
	}
}

// DefaultConfigPath returns ~/.config/ragchat/config.yaml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "ragchat", "config.yaml")
}

// DefaultLogPath returns the rotated TUI log file location.
func DefaultLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "ragchat.log"
	}
	return filepath.Join(dir, "ragchat", "ragchat.log")
}

// Load loads configuration from a YAML file.
// A .env file in the working directory is loaded first so its values are
// visible to the environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("RAGCHAT_BASE_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if tok := os.Getenv("RAGCHAT_TOKEN"); tok != "" {
		c.Auth.Token = tok
	}
	if path := os.Getenv("RAGCHAT_TOKEN_FILE"); path != "" {
		c.Auth.TokenFile = path
	}
	if field := os.Getenv("RAGCHAT_UPLOAD_FIELD"); field != "" {
		c.Files.UploadField = field
	}
	if level := os.Getenv("RAGCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

// GetRequestTimeout returns the per-request timeout for non-ask calls.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Backend.RequestTimeout, 30*time.Second)
}

// GetAskTimeout returns the bound on a single question round trip.
func (c *Config) GetAskTimeout() time.Duration {
	return parseDuration(c.Backend.AskTimeout, 120*time.Second)
}

// GetRefreshDelay returns how long to wait after an upload before re-listing.
func (c *Config) GetRefreshDelay() time.Duration {
	return parseDuration(c.Files.RefreshDelay, 2*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
