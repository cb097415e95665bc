package config_test

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johndevils/Mongodb-bot/config"
)

// note: viper state is process-global, so Load tests must not run in
// parallel with each other.

func loadWithFlags(t *testing.T, args ...string) *config.Config {
	t.Helper()

	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().Int("port", config.DefaultServerPort, "")
	cmd.Flags().String("telegram-token", "", "")
	cmd.Flags().Int64("admin-chat-id", 0, "")
	cmd.Flags().Int("batch-size", config.DefaultBatchSize, "")
	cmd.Flags().String("duplicate-policy", config.DefaultDuplicatePolicy, "")
	cmd.Flags().String("transfer-timeout", config.DefaultTransferTimeout.String(), "")
	cmd.Flags().String("connect-timeout", config.DefaultConnectTimeout.String(), "")

	require.NoError(t, cmd.ParseFlags(args))

	cfg, err := config.Load(cmd)
	require.NoError(t, err)

	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadWithFlags(t)

	assert.Equal(t, config.DefaultServerPort, cfg.Port)
	assert.Equal(t, config.DefaultBatchSize, cfg.Transfer.BatchSize)
	assert.Equal(t, config.DefaultDuplicatePolicy, cfg.Transfer.DuplicatePolicy)
	assert.Equal(t, config.DefaultTransferTimeout, cfg.Transfer.Timeout)
	assert.Equal(t, config.DefaultConnectTimeout, cfg.Transfer.ConnectTimeout)
	assert.Empty(t, cfg.Telegram.Token)
}

func TestLoad_Flags(t *testing.T) {
	cfg := loadWithFlags(t,
		"--port", "9999",
		"--batch-size", "250",
		"--duplicate-policy", "overwrite",
		"--transfer-timeout", "10m",
	)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 250, cfg.Transfer.BatchSize)
	assert.Equal(t, "overwrite", cfg.Transfer.DuplicatePolicy)
	assert.Equal(t, 10*time.Minute, cfg.Transfer.Timeout)
}

func TestLoad_EnvVars(t *testing.T) {
	t.Setenv("MTB_PORT", "9090")
	t.Setenv("MTB_DUPLICATE_POLICY", "fail")
	t.Setenv("MTB_TELEGRAM_TOKEN", "123:abc")

	cfg := loadWithFlags(t)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "fail", cfg.Transfer.DuplicatePolicy)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("PORT", "8181")
	t.Setenv("TELEGRAM_BOT_TOKEN", "456:def")
	t.Setenv("ADMIN_CHAT_ID", "1234567")

	cfg := loadWithFlags(t)

	assert.Equal(t, 8181, cfg.Port)
	assert.Equal(t, "456:def", cfg.Telegram.Token)
	assert.EqualValues(t, 1234567, cfg.Telegram.AdminChatID)
}
