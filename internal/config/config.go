package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"taskpulse/internal/filter"
)

// Config models taskpulse.yml. It is imported into the workspace database
// and read back from there; the file is only the exchange format.
type Config struct {
	Workspace struct {
		// Timezone is the single canonical zone every temporal component
		// runs in, so "today" is the same for the whole team.
		Timezone string `yaml:"timezone" json:"timezone"`
	} `yaml:"workspace" json:"workspace"`
	Reminders struct {
		// IntervalSeconds is the scheduler check cadence.
		IntervalSeconds int `yaml:"interval_seconds" json:"interval_seconds"`
		// WindowMinutes is the fire-window tolerance after a reminder's
		// nominal fire time.
		WindowMinutes int `yaml:"window_minutes" json:"window_minutes"`
	} `yaml:"reminders" json:"reminders"`
	// Filters are named smart-filter presets available as quick filters.
	Filters map[string]filter.Criteria `yaml:"filters" json:"filters"`
	// Webhooks receive fired notifications as JSON POSTs.
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

type WebhookConfig struct {
	URL     string `yaml:"url" json:"url"`
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Default returns the seed config for a fresh workspace.
func Default() *Config {
	cfg := &Config{}
	cfg.Workspace.Timezone = "UTC"
	cfg.Reminders.IntervalSeconds = 60
	cfg.Reminders.WindowMinutes = 2
	week := 7
	today := 0
	quick := 30
	cfg.Filters = map[string]filter.Criteria{
		"today":      {DueWithinDays: &today},
		"upcoming":   {DueWithinDays: &week},
		"priority":   {Priorities: []string{"p1", "p2"}},
		"quick-wins": {EstimatedTimeMax: &quick},
	}
	return cfg
}

// Load reads and validates config from a file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with tp config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML decodes and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToYAML encodes the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.Timezone == "" {
		return fmt.Errorf("config.workspace.timezone is required")
	}
	if _, err := time.LoadLocation(c.Workspace.Timezone); err != nil {
		return fmt.Errorf("config.workspace.timezone: %w", err)
	}
	if c.Reminders.IntervalSeconds <= 0 {
		return fmt.Errorf("config.reminders.interval_seconds must be > 0")
	}
	if c.Reminders.WindowMinutes <= 0 {
		return fmt.Errorf("config.reminders.window_minutes must be > 0")
	}
	for name, crit := range c.Filters {
		if name == "" {
			return fmt.Errorf("config.filters contains empty preset name")
		}
		if err := crit.Validate(); err != nil {
			return fmt.Errorf("filter preset %s: %w", name, err)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Location resolves the canonical timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Workspace.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReminderInterval is the scheduler cadence as a duration.
func (c *Config) ReminderInterval() time.Duration {
	return time.Duration(c.Reminders.IntervalSeconds) * time.Second
}

// ReminderWindow is the fire-window tolerance as a duration.
func (c *Config) ReminderWindow() time.Duration {
	return time.Duration(c.Reminders.WindowMinutes) * time.Minute
}
