package config

import "tokenlock/native/curve"

// Logging configures the optional rotated log file.
type Logging struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// Vesting holds the vesting module parameters. Addresses accept bech32 or 0x hex.
type Vesting struct {
	Admin         string `toml:"Admin"`
	Custody       string `toml:"Custody"`
	MaxCurveSteps int    `toml:"MaxCurveSteps"`
}

// Tier describes one bonding tier. Exactly one of UnbondingPeriodSeconds and
// Release must be set; Release values are basis points of the unbonded amount.
type Tier struct {
	ID                     uint64      `toml:"ID"`
	Name                   string      `toml:"Name"`
	UnbondingPeriodSeconds uint64      `toml:"UnbondingPeriodSeconds,omitempty"`
	Release                *curve.Decl `toml:"Release,omitempty"`
	RewardBps              uint64      `toml:"RewardBps"`
	VotingBps              uint64      `toml:"VotingBps"`
}

// Bonding holds the bonding module parameters.
type Bonding struct {
	MinBond string `toml:"MinBond"`
	Pool    string `toml:"Pool"`
	Tiers   []Tier `toml:"Tiers"`
}

// Rewards holds the reward distributor parameters.
type Rewards struct {
	Pool string `toml:"Pool"`
}

// Auth configures JWT verification for admin RPC methods.
type Auth struct {
	HMACSecret    string `toml:"HMACSecret,omitempty"`
	HMACSecretEnv string `toml:"HMACSecretEnv,omitempty"`
	Issuer        string `toml:"Issuer"`
	Audience      string `toml:"Audience"`
}

// RateLimit bounds requests per client address.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Pauses halts individual modules.
type Pauses struct {
	Vesting bool `toml:"Vesting"`
	Bonding bool `toml:"Bonding"`
	Rewards bool `toml:"Rewards"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers,omitempty"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Outbox configures the transfer outbox database and the optional webhook
// forwarder that delivers pending transfers to the external ledger.
type Outbox struct {
	Enabled          bool   `toml:"Enabled"`
	DSN              string `toml:"DSN"`
	WebhookURL       string `toml:"WebhookURL"`
	WebhookSecret    string `toml:"WebhookSecret"`
	WebhookSecretEnv string `toml:"WebhookSecretEnv"`
	PollIntervalMs   int    `toml:"PollIntervalMs"`
	BatchSize        int    `toml:"BatchSize"`
}
