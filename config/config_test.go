package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tokenlock/crypto"
	"tokenlock/native/common"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if len(cfg.Bonding.Tiers) != 3 {
		t.Fatalf("expected default tiers, got %d", len(cfg.Bonding.Tiers))
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.Vesting.Custody != cfg.Vesting.Custody || reloaded.Bonding.Pool != cfg.Bonding.Pool {
		t.Fatalf("reloaded config differs: %+v", reloaded)
	}
	if err := ValidateConfig(reloaded); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadParsesSections(t *testing.T) {
	admin := crypto.AccountString([20]byte{0xAD})
	path := writeConfig(t, `ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
DBBackend = "bolt"
GenesisFile = "genesis.yaml"
NetworkName = "testnet"

[vesting]
Admin = "`+admin+`"
Custody = "0x00000000000000000000000000000000000000c1"
MaxCurveSteps = 8

[bonding]
MinBond = "100"
Pool = "0x00000000000000000000000000000000000000c2"

[[bonding.Tiers]]
ID = 1
Name = "fast"
UnbondingPeriodSeconds = 3600
RewardBps = 10000
VotingBps = 10000

[[bonding.Tiers]]
ID = 2
Name = "gradual"
RewardBps = 5000
VotingBps = 0
[bonding.Tiers.Release]
kind = "saturating_linear"
steps = [{t = 0, y = "0"}, {t = 86400, y = "10000"}]

[rewards]
Pool = "0x00000000000000000000000000000000000000c3"

[pauses]
Rewards = true

[ratelimit]
RequestsPerSecond = 5
Burst = 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" || cfg.DBBackend != BackendBolt {
		t.Fatalf("unexpected node settings %+v", cfg)
	}
	pc, err := cfg.ProcessorConfig()
	if err != nil {
		t.Fatalf("processor config: %v", err)
	}
	if pc.Admin != ([20]byte{0xAD}) {
		t.Fatalf("admin = %x", pc.Admin)
	}
	if pc.MinBond.Uint64() != 100 || pc.MaxCurveSteps != 8 {
		t.Fatalf("unexpected processor config %+v", pc)
	}
	if len(pc.Tiers) != 2 || pc.Tiers[1].Release == nil || pc.Tiers[1].Duration() != 86400 {
		t.Fatalf("unexpected tiers %+v", pc.Tiers)
	}
	if !pc.Pauses.IsPaused(common.ModuleRewards) || pc.Pauses.IsPaused(common.ModuleVesting) {
		t.Fatalf("unexpected pauses")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "ListenAddress = \":1\"\nValidatorKey = \"abc\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.DBBackend = "postgres" }},
		{"bad admin", func(c *Config) { c.Vesting.Admin = "nope" }},
		{"missing custody", func(c *Config) { c.Vesting.Custody = "" }},
		{"shared pool", func(c *Config) { c.Rewards.Pool = c.Bonding.Pool }},
		{"bad min bond", func(c *Config) { c.Bonding.MinBond = "-1" }},
		{"duplicate tier", func(c *Config) { c.Bonding.Tiers[1].ID = c.Bonding.Tiers[0].ID }},
		{"tier without period", func(c *Config) { c.Bonding.Tiers[0].UnbondingPeriodSeconds = 0 }},
		{"no tiers", func(c *Config) { c.Bonding.Tiers = nil }},
		{"burst missing", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }},
		{"outbox dsn", func(c *Config) { c.Outbox.Enabled = true; c.Outbox.DSN = "" }},
		{"webhook disabled", func(c *Config) { c.Outbox.WebhookURL = "http://ledger"; c.Outbox.WebhookSecret = "s" }},
		{"webhook secret", func(c *Config) {
			c.Outbox.Enabled = true
			c.Outbox.WebhookURL = "http://ledger"
			c.Outbox.WebhookSecretEnv = ""
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := ValidateConfig(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestJWTSecretPrefersEnv(t *testing.T) {
	auth := Auth{HMACSecret: "file-secret", HMACSecretEnv: "TOKENLOCK_TEST_SECRET"}
	if got := auth.JWTSecret(); got != "file-secret" {
		t.Fatalf("secret = %q", got)
	}
	t.Setenv("TOKENLOCK_TEST_SECRET", "env-secret")
	if got := auth.JWTSecret(); got != "env-secret" {
		t.Fatalf("secret = %q", got)
	}
}

func TestOutboxForwarderSettings(t *testing.T) {
	out := Outbox{WebhookSecret: "file", WebhookSecretEnv: "TOKENLOCK_TEST_WEBHOOK"}
	if got := out.Secret(); got != "file" {
		t.Fatalf("secret = %q", got)
	}
	t.Setenv("TOKENLOCK_TEST_WEBHOOK", "env")
	if got := out.Secret(); got != "env" {
		t.Fatalf("secret = %q", got)
	}
	if got := out.PollInterval(); got != 2*time.Second {
		t.Fatalf("default interval = %v", got)
	}
	out.PollIntervalMs = 250
	if got := out.PollInterval(); got != 250*time.Millisecond {
		t.Fatalf("interval = %v", got)
	}
}
