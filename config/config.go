package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tokenlock/crypto"
)

// Storage backends accepted by DBBackend.
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	DBBackend      string `toml:"DBBackend"`
	GenesisFile    string `toml:"GenesisFile"`
	NetworkName    string `toml:"NetworkName"`
	Environment    string `toml:"Environment"`

	Logging   Logging   `toml:"logging"`
	Vesting   Vesting   `toml:"vesting"`
	Bonding   Bonding   `toml:"bonding"`
	Rewards   Rewards   `toml:"rewards"`
	Auth      Auth      `toml:"auth"`
	RateLimit RateLimit `toml:"ratelimit"`
	Pauses    Pauses    `toml:"pauses"`
	Telemetry Telemetry `toml:"telemetry"`
	Outbox    Outbox    `toml:"outbox"`
}

// Load loads the configuration from the given path. A missing file is
// created with defaults. Unknown keys are rejected so typos do not silently
// fall back to defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	cfg.Bonding.Tiers = nil
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if len(cfg.Bonding.Tiers) == 0 {
		cfg.Bonding.Tiers = defaultTiers()
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "tokenlock-local"
	}
	if strings.TrimSpace(cfg.DBBackend) == "" {
		cfg.DBBackend = BackendLevelDB
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node. Custody and
// pool accounts are derived module accounts nobody holds a key for.
func Default() *Config {
	return &Config{
		ListenAddress:  ":8547",
		MetricsAddress: ":9102",
		DataDir:        "./tokenlock-data",
		DBBackend:      BackendLevelDB,
		NetworkName:    "tokenlock-local",
		Environment:    "dev",
		Vesting: Vesting{
			Custody:       ModuleAccount("vesting/custody"),
			MaxCurveSteps: 32,
		},
		Bonding: Bonding{
			MinBond: "1",
			Pool:    ModuleAccount("bonding/pool"),
			Tiers:   defaultTiers(),
		},
		Rewards: Rewards{Pool: ModuleAccount("rewards/pool")},
		Auth: Auth{
			HMACSecretEnv: "TOKENLOCK_JWT_SECRET",
			Issuer:        "tokenlock",
			Audience:      "tokenlock-rpc",
		},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true, SampleRatio: 1},
		Outbox: Outbox{
			DSN:              "file:outbox.db",
			WebhookSecretEnv: "TOKENLOCK_WEBHOOK_SECRET",
			PollIntervalMs:   2000,
			BatchSize:        100,
		},
	}
}

func defaultTiers() []Tier {
	const day = 24 * 3600
	return []Tier{
		{ID: 1, Name: "week", UnbondingPeriodSeconds: 7 * day, RewardBps: 10_000, VotingBps: 10_000},
		{ID: 2, Name: "month", UnbondingPeriodSeconds: 30 * day, RewardBps: 15_000, VotingBps: 15_000},
		{ID: 3, Name: "quarter", UnbondingPeriodSeconds: 90 * day, RewardBps: 20_000, VotingBps: 20_000},
	}
}

// ModuleAccount derives the bech32 account of a named module.
func ModuleAccount(name string) string {
	var id [20]byte
	copy(id[:], ethcrypto.Keccak256([]byte("tokenlock/module/"+name))[12:])
	return crypto.AccountString(id)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
