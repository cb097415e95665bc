package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johndevils/Mongodb-bot/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Port: config.DefaultServerPort,
		Transfer: config.TransferConfig{
			BatchSize:       config.DefaultBatchSize,
			DuplicatePolicy: config.DefaultDuplicatePolicy,
			Timeout:         config.DefaultTransferTimeout,
			ConnectTimeout:  config.DefaultConnectTimeout,
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*config.Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(cfg *config.Config) { cfg.Port = 80 },
			wantErr: "port value",
		},
		{
			name:    "port too high",
			mutate:  func(cfg *config.Config) { cfg.Port = 70000 },
			wantErr: "port value",
		},
		{
			name:    "batch size zero",
			mutate:  func(cfg *config.Config) { cfg.Transfer.BatchSize = 0 },
			wantErr: "batch size",
		},
		{
			name:    "batch size above max",
			mutate:  func(cfg *config.Config) { cfg.Transfer.BatchSize = config.MaxBatchSize + 1 },
			wantErr: "batch size",
		},
		{
			name:    "unknown duplicate policy",
			mutate:  func(cfg *config.Config) { cfg.Transfer.DuplicatePolicy = "merge" },
			wantErr: "duplicate policy",
		},
		{
			name:    "non-positive transfer timeout",
			mutate:  func(cfg *config.Config) { cfg.Transfer.Timeout = 0 },
			wantErr: "transfer timeout",
		},
		{
			name:    "negative connect timeout",
			mutate:  func(cfg *config.Config) { cfg.Transfer.ConnectTimeout = -time.Second },
			wantErr: "connect timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := config.Validate(cfg)

			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_PortBoundaries(t *testing.T) {
	t.Parallel()

	cfg := validConfig()

	cfg.Port = 1024
	require.Error(t, config.Validate(cfg))

	cfg.Port = 1025
	require.NoError(t, config.Validate(cfg))

	cfg.Port = 65535
	require.NoError(t, config.Validate(cfg))

	cfg.Port = 65536
	require.Error(t, config.Validate(cfg))
}
