package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models todochat.yml.
type Config struct {
	UserID string `yaml:"user_id"`
	Store  struct {
		// BaseURL is the path prefix the task routes hang off.
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
		Token   string        `yaml:"token"`
	} `yaml:"store"`
	Chat struct {
		ListLimit       int           `yaml:"list_limit"`
		Debounce        time.Duration `yaml:"debounce"`
		SessionTTL      time.Duration `yaml:"session_ttl"`
		SessionCapacity int           `yaml:"session_capacity"`
	} `yaml:"chat"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		Upstream  string `yaml:"upstream"`
		JWTSecret string `yaml:"jwt_secret"`
		DBPath    string `yaml:"db_path"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

const FileName = "todochat.yml"

// Load reads and validates config from a workspace directory.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with todochat config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if c.Store.BaseURL == "" {
		return fmt.Errorf("config.store.base_url is required")
	}
	if u, err := url.Parse(c.Store.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config.store.base_url must be an absolute URL, got %q", c.Store.BaseURL)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config.store.timeout must be positive")
	}
	if c.Chat.ListLimit <= 0 {
		return fmt.Errorf("config.chat.list_limit must be positive")
	}
	if c.Chat.Debounce <= 0 {
		return fmt.Errorf("config.chat.debounce must be positive")
	}
	if c.Chat.SessionTTL <= 0 {
		return fmt.Errorf("config.chat.session_ttl must be positive")
	}
	if c.Chat.SessionCapacity <= 0 {
		return fmt.Errorf("config.chat.session_capacity must be positive")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.Upstream != "" {
		if u, err := url.Parse(c.Server.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.server.upstream must be an absolute URL, got %q", c.Server.Upstream)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	return nil
}

const defaultTemplate = `user_id: local-user

store:
  base_url: http://127.0.0.1:8080/api
  timeout: 10s

chat:
  list_limit: 10
  debounce: 700ms
  session_ttl: 30m
  session_capacity: 1000

server:
  addr: 127.0.0.1:8080
  base_path: /api
  upstream: ""
  jwt_secret: ""
  db_path: .todochat/todochat.db

log:
  level: info
  json: false
`
