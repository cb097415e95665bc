// Package config provides configuration management using Viper.
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Johndevils/Mongodb-bot/errors"
)

// Config holds all service configuration.
type Config struct {
	Port int `mapstructure:"port"`

	Telegram TelegramConfig `mapstructure:",squash"`

	Log LogConfig `mapstructure:",squash"`

	Transfer TransferConfig `mapstructure:",squash"`
}

// TelegramConfig holds the Telegram front end configuration.
type TelegramConfig struct {
	// Token is the bot API token. The Telegram front end is disabled when empty.
	Token string `mapstructure:"telegram-token"`
	// AdminChatID receives the startup notification. 0 disables it.
	AdminChatID int64 `mapstructure:"admin-chat-id"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `mapstructure:"log-level"`
	JSON    bool   `mapstructure:"log-json"`
	NoColor bool   `mapstructure:"log-no-color"`
}

// TransferConfig holds transfer engine defaults. Per-request values override
// these; zero values mean "use default".
type TransferConfig struct {
	// BatchSize is the default number of documents per bulk write.
	BatchSize int `mapstructure:"batch-size"`
	// DuplicatePolicy is the default duplicate-key policy (skip, overwrite, fail).
	DuplicatePolicy string `mapstructure:"duplicate-policy"`
	// Timeout bounds a whole transfer end to end.
	Timeout time.Duration `mapstructure:"transfer-timeout"`
	// ConnectTimeout bounds the liveness probe of each connection.
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
}

// Load initializes Viper and returns the decoded Config.
func Load(cmd *cobra.Command) (*Config, error) {
	viper.SetEnvPrefix("MTB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cmd.PersistentFlags() != nil {
		_ = viper.BindPFlags(cmd.PersistentFlags())
	}

	if cmd.Flags() != nil {
		_ = viper.BindPFlags(cmd.Flags())
	}

	bindEnvVars()

	var cfg Config

	err := viper.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func bindEnvVars() {
	_ = viper.BindEnv("port", "MTB_PORT", "PORT")

	_ = viper.BindEnv("telegram-token", "MTB_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = viper.BindEnv("admin-chat-id", "MTB_ADMIN_CHAT_ID", "ADMIN_CHAT_ID")

	_ = viper.BindEnv("log-level", "MTB_LOG_LEVEL")
	_ = viper.BindEnv("log-json", "MTB_LOG_JSON")
	_ = viper.BindEnv("log-no-color", "MTB_LOG_NO_COLOR")

	_ = viper.BindEnv("batch-size", "MTB_BATCH_SIZE")
	_ = viper.BindEnv("duplicate-policy", "MTB_DUPLICATE_POLICY")
	_ = viper.BindEnv("transfer-timeout", "MTB_TRANSFER_TIMEOUT")
	_ = viper.BindEnv("connect-timeout", "MTB_CONNECT_TIMEOUT")
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultServerPort
	}

	if cfg.Transfer.BatchSize == 0 {
		cfg.Transfer.BatchSize = DefaultBatchSize
	}

	if cfg.Transfer.DuplicatePolicy == "" {
		cfg.Transfer.DuplicatePolicy = DefaultDuplicatePolicy
	}

	if cfg.Transfer.Timeout == 0 {
		cfg.Transfer.Timeout = DefaultTransferTimeout
	}

	if cfg.Transfer.ConnectTimeout == 0 {
		cfg.Transfer.ConnectTimeout = DefaultConnectTimeout
	}
}
