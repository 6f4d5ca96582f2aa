package config

import (
	"fmt"
	"strings"

	"tokenlock/crypto"
	"tokenlock/native/common"
)

// ValidateConfig checks addresses, tiers and limits before the node starts.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.DBBackend)) {
	case BackendLevelDB, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("DBBackend %q must be one of leveldb, bolt, memory", cfg.DBBackend)
	}
	if strings.TrimSpace(cfg.Vesting.Admin) != "" {
		if _, err := crypto.ParseAccount(cfg.Vesting.Admin); err != nil {
			return fmt.Errorf("vesting: Admin: %w", err)
		}
	}
	required := []struct {
		name, value string
	}{
		{"vesting: Custody", cfg.Vesting.Custody},
		{"bonding: Pool", cfg.Bonding.Pool},
		{"rewards: Pool", cfg.Rewards.Pool},
	}
	seen := make(map[[20]byte]string, len(required))
	for _, field := range required {
		id, err := crypto.ParseAccount(field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		if other, dup := seen[id]; dup {
			return fmt.Errorf("%s: same account as %s", field.name, other)
		}
		seen[id] = field.name
	}
	if cfg.Vesting.MaxCurveSteps < 0 {
		return fmt.Errorf("vesting: MaxCurveSteps must not be negative")
	}
	if _, err := common.ParseAmount(strings.TrimSpace(cfg.Bonding.MinBond)); err != nil {
		return fmt.Errorf("bonding: MinBond: %w", err)
	}
	if _, err := cfg.BondingTiers(); err != nil {
		return fmt.Errorf("bonding: %w", err)
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("ratelimit: Burst must be positive when RequestsPerSecond is set")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	if cfg.Outbox.Enabled && strings.TrimSpace(cfg.Outbox.DSN) == "" {
		return fmt.Errorf("outbox: DSN required when enabled")
	}
	if cfg.Outbox.PollIntervalMs < 0 || cfg.Outbox.BatchSize < 0 {
		return fmt.Errorf("outbox: PollIntervalMs and BatchSize must not be negative")
	}
	if strings.TrimSpace(cfg.Outbox.WebhookURL) != "" {
		if !cfg.Outbox.Enabled {
			return fmt.Errorf("outbox: WebhookURL requires the outbox to be enabled")
		}
		if cfg.Outbox.Secret() == "" {
			return fmt.Errorf("outbox: webhook secret required")
		}
	}
	return nil
}
