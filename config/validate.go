package config

import (
	"slices"

	"github.com/Johndevils/Mongodb-bot/errors"
)

//nolint:gochecknoglobals
var allowedPolicies = []string{"skip", "overwrite", "fail"}

// Validate validates the Config for required fields and value ranges.
func Validate(cfg *Config) error {
	if cfg.Port <= 1024 || cfg.Port > 65535 {
		return errors.New("port value is outside the supported range [1024 - 65535]")
	}

	if cfg.Transfer.BatchSize < 1 || cfg.Transfer.BatchSize > MaxBatchSize {
		return errors.Errorf("batch size must be within [1 - %d], got %d",
			MaxBatchSize, cfg.Transfer.BatchSize)
	}

	if !slices.Contains(allowedPolicies, cfg.Transfer.DuplicatePolicy) {
		return errors.Errorf("unknown duplicate policy %q (allowed: skip, overwrite, fail)",
			cfg.Transfer.DuplicatePolicy)
	}

	if cfg.Transfer.Timeout <= 0 {
		return errors.New("transfer timeout must be positive")
	}

	if cfg.Transfer.ConnectTimeout <= 0 {
		return errors.New("connect timeout must be positive")
	}

	return nil
}
