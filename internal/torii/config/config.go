// Package config loads Torii's runtime configuration from a YAML file with
// environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "24h" parse naturally.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level configuration.
type Config struct {
	// Mode selects the front end: "console", "web", or "matrix".
	Mode string `yaml:"mode"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Tracker struct {
		BaseURL  string   `yaml:"base_url"`
		Username string   `yaml:"username"`
		Token    string   `yaml:"token"`
		Timeout  Duration `yaml:"timeout"`
	} `yaml:"tracker"`

	Approvals struct {
		TTL          Duration `yaml:"ttl"`
		ReapInterval Duration `yaml:"reap_interval"`
	} `yaml:"approvals"`

	Retry struct {
		MaxAttempts  int      `yaml:"max_attempts"`
		InitialDelay Duration `yaml:"initial_delay"`
		MaxDelay     Duration `yaml:"max_delay"`
	} `yaml:"retry"`

	Web struct {
		Listen    string `yaml:"listen"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"web"`

	Matrix struct {
		Homeserver  string   `yaml:"homeserver"`
		UserID      string   `yaml:"user_id"`
		AccessToken string   `yaml:"access_token"`
		Rooms       []string `yaml:"rooms"`
	} `yaml:"matrix"`

	LLM struct {
		BaseURL string   `yaml:"base_url"`
		APIKey  string   `yaml:"api_key"`
		Model   string   `yaml:"model"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"llm"`

	// SessionDB is the sqlite path for session persistence. Empty means
	// in-memory sessions only.
	SessionDB string `yaml:"session_db"`
}

// Default returns a Config with sensible defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Mode = "console"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Approvals.TTL = Duration(24 * time.Hour)
	cfg.Approvals.ReapInterval = Duration(5 * time.Minute)
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelay = Duration(500 * time.Millisecond)
	cfg.Retry.MaxDelay = Duration(10 * time.Second)
	cfg.Web.Listen = ":8080"
	cfg.LLM.Model = "gpt-4o-mini"
	return cfg
}

// Load reads the YAML file at path (when non-empty), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets secrets and deployment knobs come from the environment so the
// YAML file can stay checked in.
func applyEnv(cfg *Config) {
	setEnv(&cfg.Mode, "TORII_MODE")
	setEnv(&cfg.Tracker.BaseURL, "TRACKER_BASE_URL")
	setEnv(&cfg.Tracker.Username, "TRACKER_USERNAME")
	setEnv(&cfg.Tracker.Token, "TRACKER_TOKEN")
	setEnv(&cfg.Web.Listen, "TORII_WEB_LISTEN")
	setEnv(&cfg.Web.AuthToken, "TORII_WEB_AUTH_TOKEN")
	setEnv(&cfg.Matrix.Homeserver, "MATRIX_HOMESERVER")
	setEnv(&cfg.Matrix.UserID, "MATRIX_USER_ID")
	setEnv(&cfg.Matrix.AccessToken, "MATRIX_ACCESS_TOKEN")
	setEnv(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setEnv(&cfg.LLM.APIKey, "LLM_API_KEY")
	setEnv(&cfg.LLM.Model, "LLM_MODEL")
	setEnv(&cfg.SessionDB, "TORII_SESSION_DB")

	if rooms := os.Getenv("MATRIX_ROOMS"); rooms != "" {
		cfg.Matrix.Rooms = nil
		for _, r := range strings.Split(rooms, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.Matrix.Rooms = append(cfg.Matrix.Rooms, r)
			}
		}
	}
}

func setEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case "console", "web", "matrix":
	default:
		return fmt.Errorf("unknown mode %q (want console, web, or matrix)", c.Mode)
	}
	if c.Tracker.BaseURL == "" {
		return fmt.Errorf("tracker.base_url is required")
	}
	if c.Mode == "matrix" {
		if c.Matrix.Homeserver == "" || c.Matrix.UserID == "" || c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix mode requires homeserver, user_id, and access_token")
		}
		if len(c.Matrix.Rooms) == 0 {
			return fmt.Errorf("matrix mode requires at least one room")
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}
