// Package config loads the terminal client configuration.
//
// Sources, in order of precedence:
//   - MENTORAI_* environment variables
//   - ~/.mentorai/config.toml
//   - built-in defaults
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"mentor-ai/internal/store"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the terminal client configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	UI      UIConfig      `toml:"ui"`
	Log     LogConfig     `toml:"log"`
}

// APIConfig points the client at the tutoring service.
type APIConfig struct {
	BaseURL           string `toml:"base_url"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxQuestionLength int    `toml:"max_question_length"`
}

// StorageConfig selects where conversations are kept.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
	Key     string `toml:"key"`
}

type UIConfig struct {
	Markdown bool `toml:"markdown"`
	WordWrap int  `toml:"word_wrap"`
}

type LogConfig struct {
	Path  string `toml:"path"`
	Level string `toml:"level"`
}

// Dir returns ~/.mentorai.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".mentorai"), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "http://localhost:8000",
			TimeoutSeconds:    60,
			MaxQuestionLength: 300,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Dir:     dir,
			Key:     store.DefaultKey,
		},
		UI: UIConfig{
			Markdown: true,
			WordWrap: 80,
		},
		Log: LogConfig{
			Path:  filepath.Join(dir, "mentor.log"),
			Level: "info",
		},
	}
}

// Load reads the default config file if present, then applies environment
// overrides and validates the result.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load with an explicit file. A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies MENTORAI_* variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MENTORAI_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("MENTORAI_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.API.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("MENTORAI_STORAGE"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MENTORAI_DATA_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("MENTORAI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MENTORAI_NO_MARKDOWN"); v != "" {
		c.UI.Markdown = !(v == "1" || strings.EqualFold(v, "true"))
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(strings.TrimSpace(c.API.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q must be an http(s) URL", c.API.BaseURL))
	}
	if c.API.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("api.timeout_seconds must be > 0"))
	}
	if c.API.MaxQuestionLength <= 0 {
		errs = append(errs, errors.New("api.max_question_length must be > 0"))
	}

	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
		if strings.TrimSpace(c.Storage.Dir) == "" {
			errs = append(errs, errors.New("storage.dir is required"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be one of file, sqlite, memory", c.Storage.Backend))
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		errs = append(errs, errors.New("storage.key is required"))
	}

	if c.UI.WordWrap < 0 {
		errs = append(errs, errors.New("ui.word_wrap must be >= 0"))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}

	return errors.Join(errs...)
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// LogLevel returns the configured level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
