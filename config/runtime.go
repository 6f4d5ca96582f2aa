package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"tokenlock/core/processor"
	"tokenlock/crypto"
	"tokenlock/native/bonding"
	"tokenlock/native/common"
	"tokenlock/observability/logging"
	telemetry "tokenlock/observability/otel"
)

// BondingTiers converts the configured tiers into engine tiers. Each tier is
// validated; ids must be unique.
func (c *Config) BondingTiers() ([]bonding.Tier, error) {
	if len(c.Bonding.Tiers) == 0 {
		return nil, fmt.Errorf("at least one tier required")
	}
	tiers := make([]bonding.Tier, 0, len(c.Bonding.Tiers))
	ids := make(map[uint64]struct{}, len(c.Bonding.Tiers))
	for i, raw := range c.Bonding.Tiers {
		tier := bonding.Tier{
			ID:              raw.ID,
			Name:            strings.TrimSpace(raw.Name),
			UnbondingPeriod: raw.UnbondingPeriodSeconds,
			RewardBps:       raw.RewardBps,
			VotingBps:       raw.VotingBps,
		}
		if raw.Release != nil {
			release, err := raw.Release.Scalable()
			if err != nil {
				return nil, fmt.Errorf("tier[%d] release: %w", i, err)
			}
			tier.Release = &release
		}
		if err := tier.Validate(); err != nil {
			return nil, fmt.Errorf("tier[%d]: %w", i, err)
		}
		if _, dup := ids[tier.ID]; dup {
			return nil, fmt.Errorf("tier[%d]: duplicate id %d", i, tier.ID)
		}
		ids[tier.ID] = struct{}{}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

// ProcessorConfig resolves the engine parameters.
func (c *Config) ProcessorConfig() (processor.Config, error) {
	var out processor.Config
	var err error
	if strings.TrimSpace(c.Vesting.Admin) != "" {
		if out.Admin, err = crypto.ParseAccount(c.Vesting.Admin); err != nil {
			return out, fmt.Errorf("vesting admin: %w", err)
		}
	}
	if out.Custody, err = crypto.ParseAccount(c.Vesting.Custody); err != nil {
		return out, fmt.Errorf("vesting custody: %w", err)
	}
	if out.BondPool, err = crypto.ParseAccount(c.Bonding.Pool); err != nil {
		return out, fmt.Errorf("bonding pool: %w", err)
	}
	if out.RewardPool, err = crypto.ParseAccount(c.Rewards.Pool); err != nil {
		return out, fmt.Errorf("rewards pool: %w", err)
	}
	if out.MinBond, err = common.ParseAmount(strings.TrimSpace(c.Bonding.MinBond)); err != nil {
		return out, fmt.Errorf("bonding min bond: %w", err)
	}
	if out.Tiers, err = c.BondingTiers(); err != nil {
		return out, err
	}
	out.MaxCurveSteps = c.Vesting.MaxCurveSteps
	out.Pauses = c.Pauses.View()
	return out, nil
}

// View exposes the pause flags to the engines.
func (p Pauses) View() common.Pauses {
	return common.Pauses{
		common.ModuleVesting: p.Vesting,
		common.ModuleBonding: p.Bonding,
		common.ModuleRewards: p.Rewards,
	}
}

// JWTSecret returns the HMAC secret, preferring the environment variable.
func (a Auth) JWTSecret() string {
	if env := strings.TrimSpace(a.HMACSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(a.HMACSecret)
}

// Secret returns the webhook signing secret, preferring the environment
// variable.
func (o Outbox) Secret() string {
	if env := strings.TrimSpace(o.WebhookSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(o.WebhookSecret)
}

// PollInterval returns the forwarder cadence, defaulting to two seconds.
func (o Outbox) PollInterval() time.Duration {
	if o.PollIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(o.PollIntervalMs) * time.Millisecond
}

// LogFile converts the logging section for logging.Setup.
func (l Logging) LogFile() logging.FileConfig {
	return logging.FileConfig{
		Path:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// OTel converts the telemetry section for the exporter setup.
func (t Telemetry) OTel(service, env string) telemetry.Config {
	return telemetry.Config{
		ServiceName: service,
		Environment: env,
		Endpoint:    t.Endpoint,
		Insecure:    t.Insecure,
		Headers:     telemetry.ParseHeaders(t.Headers),
		Metrics:     t.Metrics,
		Traces:      t.Traces,
		SampleRatio: t.SampleRatio,
	}
}
