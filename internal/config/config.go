package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chronos/internal/domain"
	"chronos/internal/timeline"
)

// Config models chronos.yml.
type Config struct {
	Timeline struct {
		Start    string `yaml:"start"`
		End      string `yaml:"end"`
		Zoom     int    `yaml:"zoom"`
		SeedDemo bool   `yaml:"seed_demo"`
	} `yaml:"timeline"`
	Editor struct {
		AllowPastStart bool     `yaml:"allow_past_start"`
		AutosaveDelay  string   `yaml:"autosave_delay"`
		DefaultColor   string   `yaml:"default_color"`
		Palette        []string `yaml:"palette"`
	} `yaml:"editor"`
	Drafts struct {
		Backend       string `yaml:"backend"`
		MaxAge        string `yaml:"max_age"`
		PurgeSchedule string `yaml:"purge_schedule"`
		Redis         Redis  `yaml:"redis"`
	} `yaml:"drafts"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Render struct {
		Width        int `yaml:"width"`
		RowHeight    int `yaml:"row_height"`
		HeaderHeight int `yaml:"header_height"`
		LabelWidth   int `yaml:"label_width"`
	} `yaml:"render"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Webhook struct {
	ID             string   `yaml:"id"`
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        bool     `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with chronos init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := c.Viewport(); err != nil {
		return err
	}
	if c.Timeline.Zoom < domain.MinZoom || c.Timeline.Zoom > domain.MaxZoom {
		return fmt.Errorf("config.timeline.zoom must be between %d and %d", domain.MinZoom, domain.MaxZoom)
	}
	if c.Editor.AutosaveDelay != "" {
		if d, err := time.ParseDuration(c.Editor.AutosaveDelay); err != nil || d <= 0 {
			return fmt.Errorf("config.editor.autosave_delay must be a positive duration")
		}
	}
	if c.Editor.DefaultColor != "" && !hexColor.MatchString(c.Editor.DefaultColor) {
		return fmt.Errorf("config.editor.default_color must be #rrggbb")
	}
	for _, col := range c.Editor.Palette {
		if !hexColor.MatchString(col) {
			return fmt.Errorf("config.editor.palette has invalid color %q", col)
		}
	}
	switch c.Drafts.Backend {
	case "", "sqlite", "memory":
	case "redis":
		if c.Drafts.Redis.Addr == "" {
			return fmt.Errorf("config.drafts.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config.drafts.backend must be sqlite, redis or memory")
	}
	if c.Drafts.MaxAge != "" {
		if d, err := time.ParseDuration(c.Drafts.MaxAge); err != nil || d <= 0 {
			return fmt.Errorf("config.drafts.max_age must be a positive duration")
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	if c.Render.Width < 0 || c.Render.RowHeight < 0 || c.Render.HeaderHeight < 0 || c.Render.LabelWidth < 0 {
		return fmt.Errorf("config.render sizes must not be negative")
	}
	seen := map[string]bool{}
	for i, wh := range c.Webhooks {
		if wh.ID == "" {
			return fmt.Errorf("config.webhooks[%d].id is required", i)
		}
		if seen[wh.ID] {
			return fmt.Errorf("config.webhooks has duplicate id %s", wh.ID)
		}
		seen[wh.ID] = true
		if !strings.HasPrefix(wh.URL, "http://") && !strings.HasPrefix(wh.URL, "https://") {
			return fmt.Errorf("webhook %s url must be http(s)", wh.ID)
		}
		if wh.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %s timeout_seconds must not be negative", wh.ID)
		}
	}
	return nil
}

// Viewport parses the configured timeline range.
func (c *Config) Viewport() (domain.Viewport, error) {
	start, err := timeline.ParseDate(c.Timeline.Start)
	if err != nil {
		return domain.Viewport{}, fmt.Errorf("config.timeline.start: %w", err)
	}
	end, err := timeline.ParseDate(c.Timeline.End)
	if err != nil {
		return domain.Viewport{}, fmt.Errorf("config.timeline.end: %w", err)
	}
	if err := timeline.ValidateViewport(start, end); err != nil {
		return domain.Viewport{}, fmt.Errorf("config.timeline: %w", err)
	}
	return domain.Viewport{Start: start, End: end}, nil
}

func (c *Config) AutosaveDelay() time.Duration {
	d, err := time.ParseDuration(c.Editor.AutosaveDelay)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

func (c *Config) DraftMaxAge() time.Duration {
	d, err := time.ParseDuration(c.Drafts.MaxAge)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "chronos.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `timeline:
  start: "2024-01-01"
  end: "2024-12-31"
  zoom: 2
  seed_demo: true

editor:
  allow_past_start: false
  autosave_delay: 1s
  default_color: "#3b82f6"
  palette: ["#3b82f6", "#ec4899", "#10b981", "#f59e0b", "#8b5cf6", "#ef4444"]

drafts:
  backend: sqlite
  max_age: 168h
  purge_schedule: "@hourly"
  redis:
    addr: ""
    password: ""
    db: 0
    prefix: "chronos:"

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""

log:
  level: info

render:
  width: 1200
  row_height: 96
  header_height: 48
  label_width: 160

webhooks: []
`
