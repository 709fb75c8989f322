package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port           string   `json:"port"`
	WebFilesDir    string   `json:"web_files_dir"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DMXConfig holds the GPIO pin assignment and wire timing overrides.
type DMXConfig struct {
	DataPin        string `json:"data_pin"`
	EnablePin      string `json:"enable_pin"`
	Break          string `json:"break"`
	MarkAfterBreak string `json:"mark_after_break"`
	Bit            string `json:"bit"`
}

// MQTTConfig holds the optional MQTT bridge settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"` // tcp://IP:PORT
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// Config is the top-level application configuration.
type Config struct {
	Server ServerConfig `json:"server"`
	DMX    DMXConfig    `json:"dmx"`
	MQTT   MQTTConfig   `json:"mqtt"`

	// File system settings
	SoundsDir     string `json:"sounds_dir"`
	SequencesDir  string `json:"sequences_dir"`
	SchedulesFile string `json:"schedules_file"`
}

// Load reads the file, parses the JSON and applies sanitization, defaults and
// validation. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.setDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	cfg := &Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.DMX.DataPin = strings.TrimSpace(c.DMX.DataPin)
	c.DMX.EnablePin = strings.TrimSpace(c.DMX.EnablePin)
	c.SoundsDir = strings.TrimSpace(c.SoundsDir)
	c.SequencesDir = strings.TrimSpace(c.SequencesDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
}

func (c *Config) setDefaults() {
	// Server Defaults
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// DMX Defaults (Raspberry Pi header: data on GPIO18, driver enable on GPIO17)
	if c.DMX.DataPin == "" {
		c.DMX.DataPin = "GPIO18"
	}
	if c.DMX.EnablePin == "" {
		c.DMX.EnablePin = "GPIO17"
	}
	if c.DMX.Break == "" {
		c.DMX.Break = "100us"
	}
	if c.DMX.MarkAfterBreak == "" {
		c.DMX.MarkAfterBreak = "12us"
	}
	if c.DMX.Bit == "" {
		c.DMX.Bit = "4us"
	}

	// File Defaults
	if c.SoundsDir == "" {
		c.SoundsDir = "sounds"
	}
	if c.SequencesDir == "" {
		c.SequencesDir = "sequences"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}

	// MQTT Defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "dmx-sequenzer"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "sequenzer"
	}
}

func (c *Config) validate() error {
	for _, d := range []string{c.DMX.Break, c.DMX.MarkAfterBreak, c.DMX.Bit} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config error: invalid DMX timing %q: %w", d, err)
		}
	}
	return nil
}
