package genesis

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"tokenlock/crypto"
	"tokenlock/native/common"
	"tokenlock/native/curve"
)

// GenesisSpec lists the allocations and airdrop stages a fresh store starts
// with.
type GenesisSpec struct {
	GenesisTime string        `yaml:"genesisTime"`
	Vesting     []VestingSpec `yaml:"vesting"`
	Stages      []StageSpec   `yaml:"stages"`

	genesisTimestamp time.Time
	hash             [32]byte
}

// VestingSpec is an initial vesting allocation. Schedule values are amounts.
type VestingSpec struct {
	Owner    string     `yaml:"owner"`
	Issuer   string     `yaml:"issuer"`
	Amount   string     `yaml:"amount"`
	Schedule curve.Decl `yaml:"schedule"`

	owner    [20]byte
	issuer   [20]byte
	amount   *uint256.Int
	schedule curve.Curve
}

// StageSpec is an airdrop stage. Schedule and Cap values are basis points of
// the allocation and stage total respectively.
type StageSpec struct {
	ID         uint64      `yaml:"id"`
	Issuer     string      `yaml:"issuer"`
	Total      string      `yaml:"total"`
	Start      uint64      `yaml:"start"`
	Expiry     uint64      `yaml:"expiry"`
	Schedule   curve.Decl  `yaml:"schedule"`
	Cap        *curve.Decl `yaml:"cap,omitempty"`
	MerkleRoot string      `yaml:"merkleRoot,omitempty"`

	issuer   [20]byte
	total    *uint256.Int
	schedule curve.Scalable
	cap      *curve.Scalable
	root     [32]byte
}

// LoadGenesisSpec reads and validates a YAML genesis file. Unknown fields are
// rejected.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates raw YAML.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	copy(spec.hash[:], ethcrypto.Keccak256(raw))
	return &spec, nil
}

// Hash identifies the genesis file content.
func (s *GenesisSpec) Hash() [32]byte { return s.hash }

// GenesisTimestamp is the time commands of this genesis execute at.
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *GenesisSpec) validate() error {
	parsed, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsed

	owners := make(map[[20]byte]struct{}, len(s.Vesting))
	for i := range s.Vesting {
		v := &s.Vesting[i]
		if err := v.validate(); err != nil {
			return fmt.Errorf("vesting[%d]: %w", i, err)
		}
		if _, dup := owners[v.owner]; dup {
			return fmt.Errorf("vesting[%d]: duplicate owner %q", i, v.Owner)
		}
		owners[v.owner] = struct{}{}
	}

	ids := make(map[uint64]struct{}, len(s.Stages))
	for i := range s.Stages {
		st := &s.Stages[i]
		if err := st.validate(); err != nil {
			return fmt.Errorf("stages[%d]: %w", i, err)
		}
		if _, dup := ids[st.ID]; dup {
			return fmt.Errorf("stages[%d]: duplicate id %d", i, st.ID)
		}
		ids[st.ID] = struct{}{}
	}
	return nil
}

func (v *VestingSpec) validate() error {
	var err error
	if v.owner, err = crypto.ParseAccount(v.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if v.issuer, err = crypto.ParseAccount(v.Issuer); err != nil {
		return fmt.Errorf("issuer: %w", err)
	}
	if v.amount, err = parsePositive(v.Amount); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if v.schedule, err = v.Schedule.Curve(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	return nil
}

func (st *StageSpec) validate() error {
	if st.ID == 0 {
		return fmt.Errorf("id must be positive")
	}
	var err error
	if st.issuer, err = crypto.ParseAccount(st.Issuer); err != nil {
		return fmt.Errorf("issuer: %w", err)
	}
	if st.total, err = parsePositive(st.Total); err != nil {
		return fmt.Errorf("total: %w", err)
	}
	if st.schedule, err = st.Schedule.Scalable(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if st.Cap != nil {
		capCurve, err := st.Cap.Scalable()
		if err != nil {
			return fmt.Errorf("cap: %w", err)
		}
		st.cap = &capCurve
	}
	if root := strings.TrimPrefix(strings.TrimSpace(st.MerkleRoot), "0x"); root != "" {
		decoded, err := hex.DecodeString(root)
		if err != nil || len(decoded) != len(st.root) {
			return fmt.Errorf("merkleRoot must be 32 hex bytes")
		}
		copy(st.root[:], decoded)
	}
	return nil
}

func parsePositive(value string) (*uint256.Int, error) {
	amount, err := common.ParseAmount(strings.TrimSpace(value))
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("must be positive")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime: %w", err)
	}
	if ts.Unix() < 0 {
		return time.Time{}, fmt.Errorf("genesisTime must not precede the unix epoch")
	}
	return ts.UTC(), nil
}
