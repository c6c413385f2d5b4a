package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the YAML file.
const (
	EnvOpenWeatherAPIKey  = "SOLARA_OPENWEATHER_API_KEY"
	EnvGoogleClientSecret = "SOLARA_GOOGLE_CLIENT_SECRET"
)

// WeatherConfig locates the city shown by the weather card.
type WeatherConfig struct {
	City    string `yaml:"city" json:"city"`
	State   string `yaml:"state" json:"state"`
	Country string `yaml:"country" json:"country"`
	// Units is passed through to OpenWeather: "imperial", "metric" or "standard".
	Units  string `yaml:"units" json:"units"`
	APIKey string `yaml:"api_key" json:"-"`
	// Refresh is a cron spec for periodic fetches.
	Refresh string `yaml:"refresh" json:"refresh"`
}

// CalendarConfig configures the "Today's Events" card.
type CalendarConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"-"`
	RedirectURL  string `yaml:"redirect_url" json:"redirect_url"`
	// APIKey is only needed for public calendars read without OAuth.
	APIKey            string   `yaml:"api_key" json:"-"`
	PublicCalendarIDs []string `yaml:"public_calendar_ids" json:"public_calendar_ids"`
	UsePublicOnly     bool     `yaml:"use_public_only" json:"use_public_only"`
	Refresh           string   `yaml:"refresh" json:"refresh"`
}

// ICSConfig describes a single ICS subscription merged into today's events.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// GridConfig tunes the card grid and its drag heuristics.
type GridConfig struct {
	ContainerWidth     int     `yaml:"container_width" json:"container_width"`
	SortIntervalMs     int     `yaml:"sort_interval_ms" json:"sort_interval_ms"`
	MinDragDistance    int     `yaml:"min_drag_distance" json:"min_drag_distance"`
	DragStartDistance  int     `yaml:"drag_start_distance" json:"drag_start_distance"`
	BounceBackAngleDeg float64 `yaml:"bounce_back_angle_deg" json:"bounce_back_angle_deg"`
	LayoutDurationMs   int     `yaml:"layout_duration_ms" json:"layout_duration_ms"`
	// AlignRows equalizes card heights per row. Off by default: it fights
	// with drag animation.
	AlignRows bool `yaml:"align_rows" json:"align_rows"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the page and API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen   string `yaml:"listen" json:"listen"`
	Timezone string `yaml:"timezone" json:"timezone"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	// DataDir holds the SQLite database, the ICS cache and preview.png.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Weather  WeatherConfig  `yaml:"weather" json:"weather"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	ICS      []ICSConfig    `yaml:"ics" json:"ics"`
	Grid     GridConfig     `yaml:"grid" json:"grid"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so partially-filled configs still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "./var/solara"
	}

	if c.Weather.City == "" {
		c.Weather.City = "Austin"
	}
	if c.Weather.State == "" {
		c.Weather.State = "TX"
	}
	if c.Weather.Country == "" {
		c.Weather.Country = "US"
	}
	switch c.Weather.Units {
	case "imperial", "metric", "standard":
	default:
		c.Weather.Units = "imperial"
	}
	if c.Weather.Refresh == "" {
		c.Weather.Refresh = "@every 10m"
	}

	if c.Calendar.Refresh == "" {
		c.Calendar.Refresh = "*/15 * * * *"
	}
	if c.Calendar.RedirectURL == "" {
		c.Calendar.RedirectURL = "http://" + c.Listen + "/auth/callback"
	}
	if c.Calendar.PublicCalendarIDs == nil {
		c.Calendar.PublicCalendarIDs = []string{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}

	if c.Grid.ContainerWidth <= 0 {
		c.Grid.ContainerWidth = 1200
	}
	if c.Grid.SortIntervalMs <= 0 {
		c.Grid.SortIntervalMs = 50
	}
	if c.Grid.MinDragDistance <= 0 {
		c.Grid.MinDragDistance = 10
	}
	if c.Grid.DragStartDistance <= 0 {
		c.Grid.DragStartDistance = 3
	}
	if c.Grid.BounceBackAngleDeg <= 0 {
		c.Grid.BounceBackAngleDeg = 90
	}
	if c.Grid.LayoutDurationMs <= 0 {
		c.Grid.LayoutDurationMs = 300
	}
}

// ApplyEnv overrides secrets from the environment when set.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvOpenWeatherAPIKey)); v != "" {
		c.Weather.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGoogleClientSecret)); v != "" {
		c.Calendar.ClientSecret = v
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Timezone != "" {
		if _, err := ResolveLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone: %w", err))
		}
	}
	if strings.TrimSpace(c.Weather.City) == "" {
		errs = append(errs, errors.New("weather.city: required"))
	}
	if c.Calendar.UsePublicOnly {
		if len(c.Calendar.PublicCalendarIDs) == 0 {
			errs = append(errs, errors.New("calendar.public_calendar_ids: required when use_public_only is set"))
		}
		if c.Calendar.APIKey == "" {
			errs = append(errs, errors.New("calendar.api_key: required when use_public_only is set"))
		}
	}
	for i, src := range c.ICS {
		if strings.TrimSpace(src.URL) == "" {
			errs = append(errs, fmt.Errorf("ics[%d].url: required", i))
		}
	}
	if c.Grid.BounceBackAngleDeg > 180 {
		errs = append(errs, fmt.Errorf("grid.bounce_back_angle_deg: %v exceeds 180", c.Grid.BounceBackAngleDeg))
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("basic_auth: username and password must both be set"))
	}
	return errors.Join(errs...)
}

// Location returns the display timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := ResolveLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ResolveLocation loads an IANA zone; empty means time.Local.
func ResolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// SortInterval and friends convert the integer YAML fields to durations.
func (g GridConfig) SortInterval() time.Duration {
	return time.Duration(g.SortIntervalMs) * time.Millisecond
}

func (g GridConfig) LayoutDuration() time.Duration {
	return time.Duration(g.LayoutDurationMs) * time.Millisecond
}

// BounceBackAngle returns the configured angle in radians.
func (g GridConfig) BounceBackAngle() float64 {
	return g.BounceBackAngleDeg * math.Pi / 180
}

// Load loads configuration from the given YAML path.
//
// A missing file is created with defaults (0600) and the defaults are
// returned. Secrets from the environment are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".solara-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
