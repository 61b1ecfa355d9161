package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level daemon configuration.
type Config struct {
	Bot        BotConfig       `json:"bot"`
	Connectors ConnectorConfig `json:"connectors"`
	Relay      RelayConfig     `json:"relay"`
	API        APIConfig       `json:"api"`
}

// BotConfig holds service-level settings.
type BotConfig struct {
	ID      string `json:"id"`
	DataDir string `json:"data_dir,omitempty"` // empty = in-memory state only
}

// ConnectorConfig holds settings for platform connectors.
type ConnectorConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token       string  `json:"token"`
	StaffChatID int64   `json:"staff_chat_id,omitempty"` // support group chat id
	AllowFrom   []int64 `json:"allow_from,omitempty"`
}

// SlackConfig holds Slack staff workspace settings.
type SlackConfig struct {
	BotToken     string `json:"bot_token"`
	AppToken     string `json:"app_token"`
	StaffChannel string `json:"staff_channel"`
}

// RelayConfig tunes routing behavior.
type RelayConfig struct {
	RateWindowSeconds int    `json:"rate_window_seconds,omitempty"` // default 60
	RateBurst         int    `json:"rate_burst,omitempty"`          // default 2
	TicketPrefix      string `json:"ticket_prefix,omitempty"`       // default "BV-"
	DigestSchedule    string `json:"digest_schedule,omitempty"`     // cron spec, empty = off
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with BVS_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Bot: BotConfig{
			ID:      getenv("BVS_BOT_ID", "blockveil-support"),
			DataDir: os.Getenv("BVS_DATA_DIR"),
		},
		API: APIConfig{
			Host: getenv("BVS_API_HOST", "0.0.0.0"),
			Port: getenvInt("BVS_API_PORT", 8080),
			Key:  os.Getenv("BVS_API_KEY"),
		},
	}

	if token := os.Getenv("BVS_TELEGRAM_TOKEN"); token != "" {
		tg := &TelegramConfig{Token: token}
		if v := os.Getenv("BVS_TELEGRAM_STAFF_CHAT_ID"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("config: BVS_TELEGRAM_STAFF_CHAT_ID: %w", err)
			}
			tg.StaffChatID = id
		}
		if ids := os.Getenv("BVS_TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: BVS_TELEGRAM_ALLOW_FROM: %w", err)
			}
			tg.AllowFrom = parsed
		}
		cfg.Connectors.Telegram = tg
	}

	if botToken := os.Getenv("BVS_SLACK_BOT_TOKEN"); botToken != "" {
		cfg.Connectors.Slack = &SlackConfig{
			BotToken:     botToken,
			AppToken:     os.Getenv("BVS_SLACK_APP_TOKEN"),
			StaffChannel: os.Getenv("BVS_SLACK_STAFF_CHANNEL"),
		}
	}

	cfg.Relay.RateWindowSeconds = getenvInt("BVS_RATE_WINDOW_SECONDS", 0)
	cfg.Relay.RateBurst = getenvInt("BVS_RATE_BURST", 0)
	cfg.Relay.TicketPrefix = os.Getenv("BVS_TICKET_PREFIX")
	cfg.Relay.DigestSchedule = os.Getenv("BVS_DIGEST_SCHEDULE")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Bot.ID == "" {
		errs = append(errs, "bot.id is required")
	}

	if c.Connectors.Telegram == nil {
		errs = append(errs, "connectors.telegram is required")
	} else if c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}

	// Exactly one staff destination: a Slack channel when configured,
	// otherwise the Telegram staff group.
	if c.Connectors.Slack != nil {
		if c.Connectors.Slack.BotToken == "" {
			errs = append(errs, "connectors.slack.bot_token is required")
		}
		if c.Connectors.Slack.AppToken == "" {
			errs = append(errs, "connectors.slack.app_token is required")
		}
		if c.Connectors.Slack.StaffChannel == "" {
			errs = append(errs, "connectors.slack.staff_channel is required")
		}
	} else if c.Connectors.Telegram != nil && c.Connectors.Telegram.StaffChatID == 0 {
		errs = append(errs, "connectors.telegram.staff_chat_id is required when slack is not configured")
	}

	if c.Relay.RateWindowSeconds < 0 {
		errs = append(errs, "relay.rate_window_seconds must not be negative")
	}
	if c.Relay.RateBurst < 0 {
		errs = append(errs, "relay.rate_burst must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// StaffDestination returns the connector name and destination id staff
// messages flow through.
func (c *Config) StaffDestination() (channel, dest string) {
	if c.Connectors.Slack != nil {
		return "slack", c.Connectors.Slack.StaffChannel
	}
	return "telegram", strconv.FormatInt(c.Connectors.Telegram.StaffChatID, 10)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
