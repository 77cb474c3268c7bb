package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// IMAPConfig holds the settings for the monitored mailbox connection.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`

	// Mailbox is the folder to watch; defaults to INBOX.
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`

	// IdleEnabled allows disabling IDLE even when the server supports it.
	IdleEnabled bool `mapstructure:"idle_enabled" yaml:"idle_enabled"`

	// IdleTimeoutSec bounds a single IDLE wait. The wait is always
	// reissued before the server-side 30 minute limit.
	IdleTimeoutSec int `mapstructure:"idle_timeout_sec" yaml:"idle_timeout_sec"`

	// PollIntervalSec is the unseen-search interval in poll mode.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// SMTPConfig holds the settings for sending replies.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// LLMConfig holds settings for the itinerary extraction model.
type LLMConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Model      string `mapstructure:"model" yaml:"model"`
	MaxTokens  int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// GuardConfig controls auto-reply detection and reply rate limiting.
type GuardConfig struct {
	// MaxReplies is the cap on replies to one recipient per window.
	MaxReplies int `mapstructure:"max_replies" yaml:"max_replies"`

	// WindowSec is the trailing rate-limit window in seconds.
	WindowSec int `mapstructure:"window_sec" yaml:"window_sec"`

	// DefaultReplyTo receives replies when the sender is a
	// do-not-reply or booking-system address. Empty disables the
	// fallback and such messages are skipped.
	DefaultReplyTo string `mapstructure:"default_reply_to" yaml:"default_reply_to"`
}

// RetryConfig controls the per-message retry budget and reconnection.
type RetryConfig struct {
	// MaxAttempts is the failed-attempt count at which a message is
	// poisoned.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// ParseFailurePoisons short-circuits a repeated identical parse
	// failure straight to poisoning instead of counting it toward the
	// normal budget.
	ParseFailurePoisons bool `mapstructure:"parse_failure_poisons" yaml:"parse_failure_poisons"`

	// ReconnectMaxAttempts bounds mailbox reconnection; exhausting it
	// is fatal.
	ReconnectMaxAttempts int `mapstructure:"reconnect_max_attempts" yaml:"reconnect_max_attempts"`

	ReconnectBaseDelaySec int `mapstructure:"reconnect_base_delay_sec" yaml:"reconnect_base_delay_sec"`
	ReconnectMaxDelaySec  int `mapstructure:"reconnect_max_delay_sec" yaml:"reconnect_max_delay_sec"`

	// DegradeAfterErrors is the consecutive processing-error count at
	// which event mode falls back to polling.
	DegradeAfterErrors int `mapstructure:"degrade_after_errors" yaml:"degrade_after_errors"`
}

// StoreConfig selects the attempt/ledger persistence backend.
type StoreConfig struct {
	// Path is the SQLite database file. Empty keeps all retry and
	// rate-limit state in memory for the process lifetime.
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Env   string `mapstructure:"env" yaml:"env"`
}

// AppConfig is the top-level daemon configuration.
type AppConfig struct {
	IMAP  IMAPConfig  `mapstructure:"imap" yaml:"imap"`
	SMTP  SMTPConfig  `mapstructure:"smtp" yaml:"smtp"`
	LLM   LLMConfig   `mapstructure:"llm" yaml:"llm"`
	Guard GuardConfig `mapstructure:"guard" yaml:"guard"`
	Retry RetryConfig `mapstructure:"retry" yaml:"retry"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/travelbot/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "travelbot", "config.yaml")
}

// defaultAppConfig returns a configuration with sensible defaults for
// everything except credentials.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		IMAP: IMAPConfig{
			Port:            "993",
			TLS:             true,
			Mailbox:         "INBOX",
			IdleEnabled:     true,
			IdleTimeoutSec:  1500,
			PollIntervalSec: 60,
		},
		SMTP: SMTPConfig{
			Port: "587",
		},
		LLM: LLMConfig{
			Model:      "claude-sonnet-4-20250514",
			MaxTokens:  8192,
			TimeoutSec: 120,
		},
		Guard: GuardConfig{
			MaxReplies: 3,
			WindowSec:  3600,
		},
		Retry: RetryConfig{
			MaxAttempts:           3,
			ReconnectMaxAttempts:  5,
			ReconnectBaseDelaySec: 2,
			ReconnectMaxDelaySec:  300,
			DegradeAfterErrors:    3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. If the file does not exist, it returns the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("imap.port", "993")
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.idle_enabled", true)
	v.SetDefault("imap.idle_timeout_sec", 1500)
	v.SetDefault("imap.poll_interval_sec", 60)
	v.SetDefault("smtp.port", "587")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout_sec", 120)
	v.SetDefault("guard.max_replies", 3)
	v.SetDefault("guard.window_sec", 3600)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.parse_failure_poisons", false)
	v.SetDefault("retry.reconnect_max_attempts", 5)
	v.SetDefault("retry.reconnect_base_delay_sec", 2)
	v.SetDefault("retry.reconnect_max_delay_sec", 300)
	v.SetDefault("retry.degrade_after_errors", 3)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
