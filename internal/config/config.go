package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/mimic/internal/dataset"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const (
	RoleMatchExact = "exact"
	RoleMatchFold  = "fold"
)

type Config struct {
	// Pipeline. Windows are in minutes.
	TurnWindow      float64  `yaml:"turn_window"`
	ConversationGap float64  `yaml:"conversation_gap"`
	OwnName         string   `yaml:"own_name"`
	OwnAliases      []string `yaml:"own_aliases"`
	RoleMatch       string   `yaml:"role_match"`
	MinMessages     int      `yaml:"min_messages"`
	IncludeGroups   bool     `yaml:"include_groups"`
	RequireExchange bool     `yaml:"require_exchange"`
	SystemPrompt    bool     `yaml:"system_prompt"`
	SystemTemplate  string   `yaml:"system_template"`
	GroupTemplate   string   `yaml:"group_system_template"`
	Workers         int      `yaml:"workers"`

	// Service and sinks.
	Port          int    `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	NatsURL       string `yaml:"nats_url"`
	NatsToken     string `yaml:"nats_token"`
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackChannel  string `yaml:"slack_channel"`
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	MetricsFile   string `yaml:"metrics_file"`
}

func Load() Config {
	return Config{
		TurnWindow:      envFloat("MIMIC_TURN_WINDOW", dataset.DefaultTurnWindow.Minutes()),
		ConversationGap: envFloat("MIMIC_CONVERSATION_GAP", dataset.DefaultConversationGap.Minutes()),
		OwnName:         envStr("MIMIC_OWN_NAME", "Pasquale"),
		OwnAliases:      envList("MIMIC_OWN_ALIASES"),
		RoleMatch:       envStr("MIMIC_ROLE_MATCH", RoleMatchExact),
		MinMessages:     envInt("MIMIC_MIN_MESSAGES", dataset.DefaultMinTurns),
		IncludeGroups:   envBool("MIMIC_INCLUDE_GROUPS", false),
		RequireExchange: envBool("MIMIC_REQUIRE_EXCHANGE", false),
		SystemPrompt:    envBool("MIMIC_SYSTEM_PROMPT", false),
		SystemTemplate:  envStr("MIMIC_SYSTEM_TEMPLATE", ""),
		GroupTemplate:   envStr("MIMIC_GROUP_SYSTEM_TEMPLATE", ""),
		Workers:         envInt("MIMIC_WORKERS", 1),
		Port:            envInt("MIMIC_PORT", 8760),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_CHANNEL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFile:         envStr("LOG_FILE", ""),
		MetricsFile:     envStr("MIMIC_METRICS_FILE", ""),
	}
}

// LoadFile overlays the YAML document at path onto base. Keys absent from the
// document keep their base value.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate returns the first configuration problem, wrapped in ErrInvalid.
func (c Config) Validate() error {
	if c.TurnWindow <= 0 {
		return fmt.Errorf("%w: turn_window must be positive, got %g", ErrInvalid, c.TurnWindow)
	}
	if c.ConversationGap <= 0 {
		return fmt.Errorf("%w: conversation_gap must be positive, got %g", ErrInvalid, c.ConversationGap)
	}
	if c.ConversationGap <= c.TurnWindow {
		return fmt.Errorf("%w: conversation_gap (%g) must be greater than turn_window (%g)", ErrInvalid, c.ConversationGap, c.TurnWindow)
	}
	if c.MinMessages < 1 {
		return fmt.Errorf("%w: min_messages must be at least 1, got %d", ErrInvalid, c.MinMessages)
	}
	if strings.TrimSpace(c.OwnName) == "" {
		return fmt.Errorf("%w: own_name must not be empty", ErrInvalid)
	}
	if c.RoleMatch != RoleMatchExact && c.RoleMatch != RoleMatchFold {
		return fmt.Errorf("%w: role_match must be %q or %q, got %q", ErrInvalid, RoleMatchExact, RoleMatchFold, c.RoleMatch)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if _, err := dataset.NewFormatter(c.formatOptions()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Classifier returns the role classifier selected by own_name, own_aliases and role_match.
func (c Config) Classifier() dataset.Classifier {
	fold := c.RoleMatch == RoleMatchFold
	if len(c.OwnAliases) > 0 {
		return dataset.NewAliases(append([]string{c.OwnName}, c.OwnAliases...), fold)
	}
	if fold {
		return dataset.FoldName(c.OwnName)
	}
	return dataset.ExactName(c.OwnName)
}

// PipelineOptions converts the configuration into core pipeline options.
func (c Config) PipelineOptions() dataset.Options {
	return dataset.Options{
		TurnWindow:      minutes(c.TurnWindow),
		ConversationGap: minutes(c.ConversationGap),
		Classifier:      c.Classifier(),
		Filter: dataset.FilterOptions{
			MinTurns:        c.MinMessages,
			IncludeGroups:   c.IncludeGroups,
			RequireExchange: c.RequireExchange,
		},
		Format: c.formatOptions(),
	}
}

// Pipeline validates the configuration and builds the core pipeline.
func (c Config) Pipeline() (*dataset.Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	p, err := dataset.New(c.PipelineOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p, nil
}

func (c Config) formatOptions() dataset.FormatOptions {
	return dataset.FormatOptions{
		OwnName:          c.OwnName,
		SystemPrompt:     c.SystemPrompt,
		PersonalTemplate: c.SystemTemplate,
		GroupTemplate:    c.GroupTemplate,
	}
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
