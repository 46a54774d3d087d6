package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Bridge struct {
	ID  string `json:"id" yaml:"id"`
	URL string `json:"url" yaml:"url"`
}

type AnalyticsFields struct {
	TotalDown   *bool `json:"total_down" yaml:"total_down"`
	FPS         *bool `json:"fps" yaml:"fps"`
	DownByClass *bool `json:"down_by_class" yaml:"down_by_class"`
}

type Reconnect struct {
	Enabled           bool    `json:"enabled" yaml:"enabled"`
	MaxRetries        int     `json:"max_retries" yaml:"max_retries"`
	InitialIntervalMS int     `json:"initial_interval_ms" yaml:"initial_interval_ms"`
	MaxIntervalMS     int     `json:"max_interval_ms" yaml:"max_interval_ms"`
	Multiplier        float64 `json:"multiplier" yaml:"multiplier"`
	Jitter            bool    `json:"jitter" yaml:"jitter"`
}

type Datadog struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	AgentAddr string   `json:"agent_addr" yaml:"agent_addr"`
	Namespace string   `json:"namespace" yaml:"namespace"`
	Tags      []string `json:"tags" yaml:"tags"`
}

type Ntfy struct {
	URL   string `json:"url" yaml:"url"`
	Topic string `json:"topic" yaml:"topic"`
}

type Config struct {
	ConfigFile string        `json:"-" yaml:"-"`
	CacheDB    string        `json:"-" yaml:"-"`
	LogFile    string        `json:"-" yaml:"-"`
	LogLevel   zerolog.Level `json:"-" yaml:"-"`

	ListenPort            int               `json:"listen_port" yaml:"listen_port"`
	RegistryURL           string            `json:"registry_url" yaml:"registry_url"`
	ControlURL            string            `json:"control_url" yaml:"control_url"`
	AnalyticsURL          string            `json:"analytics_url" yaml:"analytics_url"`
	Bridges               []Bridge          `json:"bridges" yaml:"bridges"`
	DirectionGroups       map[string]string `json:"direction_groups" yaml:"direction_groups"`
	AnalyticsFields       AnalyticsFields   `json:"analytics_fields" yaml:"analytics_fields"`
	Reconnect             Reconnect         `json:"reconnect" yaml:"reconnect"`
	CommandTimeoutSeconds int               `json:"command_timeout_seconds" yaml:"command_timeout_seconds"`

	Datadog Datadog `json:"datadog" yaml:"datadog"`
	Ntfy    Ntfy    `json:"ntfy" yaml:"ntfy"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to service config file (.json, .yaml or .yml)")
	flag.StringVar(&cfg.CacheDB, "cache-db", "data/registry.db", "Path to the registry snapshot database")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Log file path (stderr when empty)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = ParseLogLevel(logLevel)

	if err := cfg.ReadFile(cfg.ConfigFile); err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	cfg.ApplyDefaults()
	cfg.validate()
	return cfg
}

// ReadFile decodes path into cfg, choosing YAML or JSON by extension.
func (cfg *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) ApplyDefaults() {
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 8090
	}
	if len(cfg.Bridges) == 0 {
		cfg.Bridges = []Bridge{
			{ID: "A", URL: "ws://localhost:8080/ws/mqtt1"},
			{ID: "B", URL: "ws://localhost:8080/ws/mqtt2"},
		}
	}
	if len(cfg.DirectionGroups) == 0 {
		cfg.DirectionGroups = map[string]string{
			"North": "A",
			"South": "A",
			"East":  "B",
			"West":  "B",
		}
	}
	if cfg.CommandTimeoutSeconds == 0 {
		cfg.CommandTimeoutSeconds = 10
	}
	if cfg.Reconnect.InitialIntervalMS == 0 {
		cfg.Reconnect.InitialIntervalMS = 500
	}
	if cfg.Reconnect.MaxIntervalMS == 0 {
		cfg.Reconnect.MaxIntervalMS = 30000
	}
	if cfg.Reconnect.Multiplier == 0 {
		cfg.Reconnect.Multiplier = 2
	}
	if cfg.Datadog.AgentAddr == "" {
		cfg.Datadog.AgentAddr = "127.0.0.1:8125"
	}
	if cfg.Ntfy.URL == "" {
		cfg.Ntfy.URL = "https://ntfy.sh"
	}
	if cfg.Datadog.Namespace == "" {
		cfg.Datadog.Namespace = "intersection_view."
	}
}

func (cfg Config) CommandTimeout() time.Duration {
	return time.Duration(cfg.CommandTimeoutSeconds) * time.Second
}

// Enabled reports whether an analytics field is shown; unset means shown.
func Enabled(b *bool) bool {
	return b == nil || *b
}

func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.RegistryURL == "" {
		problems = append(problems, "registry_url is required")
	}
	if cfg.ControlURL == "" {
		problems = append(problems, "control_url is required")
	}

	bridges := map[string]bool{}
	for i, b := range cfg.Bridges {
		if b.ID == "" || b.URL == "" {
			problems = append(problems, fmt.Sprintf("bridges[%d] needs both id and url", i))
			continue
		}
		if bridges[b.ID] {
			problems = append(problems, fmt.Sprintf("bridge id %s is used twice", b.ID))
		}
		bridges[b.ID] = true
	}

	for dir, group := range cfg.DirectionGroups {
		if !bridges[group] {
			problems = append(problems, fmt.Sprintf("direction_groups.%s names group %s with no bridge", dir, group))
		}
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}
