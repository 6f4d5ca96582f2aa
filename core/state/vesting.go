package state

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"tokenlock/native/common"
	"tokenlock/native/curve"
	"tokenlock/native/vesting"
)

// Schedules are stored as their JSON form inside the RLP record so that
// decoding revalidates them.

type storedVesting struct {
	Owner        [20]byte
	Issuer       [20]byte
	Total        *uint256.Int
	Schedule     []byte
	Claimed      *uint256.Int
	CreatedAt    uint64
	Stage        uint64
	Watermark    uint64
	Cancelled    bool
	CancelledAt  uint64
	CancelCaller [20]byte
	Frozen       *uint256.Int
	ClawedBack   *uint256.Int
}

func newStoredVesting(acc *vesting.Account) (*storedVesting, error) {
	schedule, err := json.Marshal(acc.Schedule)
	if err != nil {
		return nil, err
	}
	out := &storedVesting{
		Owner:      acc.Owner,
		Issuer:     acc.Issuer,
		Total:      common.Clone(acc.Total),
		Schedule:   schedule,
		Claimed:    common.Clone(acc.Claimed),
		CreatedAt:  acc.CreatedAt,
		Stage:      acc.Stage,
		Watermark:  acc.Watermark,
		Frozen:     common.Zero(),
		ClawedBack: common.Zero(),
	}
	if c := acc.Cancellation; c != nil {
		out.Cancelled = true
		out.CancelledAt = c.At
		out.CancelCaller = c.Caller
		out.Frozen = common.Clone(c.Frozen)
		out.ClawedBack = common.Clone(c.ClawedBack)
	}
	return out, nil
}

func (s *storedVesting) toAccount() (*vesting.Account, error) {
	var schedule curve.Curve
	if err := json.Unmarshal(s.Schedule, &schedule); err != nil {
		return nil, fmt.Errorf("vesting: decode schedule: %w", err)
	}
	acc := &vesting.Account{
		Owner:     s.Owner,
		Issuer:    s.Issuer,
		Total:     common.Clone(s.Total),
		Schedule:  schedule,
		Claimed:   common.Clone(s.Claimed),
		CreatedAt: s.CreatedAt,
		Stage:     s.Stage,
		Watermark: s.Watermark,
	}
	if s.Cancelled {
		acc.Cancellation = &vesting.Cancellation{
			At:         s.CancelledAt,
			Caller:     s.CancelCaller,
			Frozen:     common.Clone(s.Frozen),
			ClawedBack: common.Clone(s.ClawedBack),
		}
	}
	return acc, nil
}

// VestingAccount loads the allocation owned by owner.
func (m *Manager) VestingAccount(owner [20]byte) (*vesting.Account, bool, error) {
	var stored storedVesting
	ok, err := m.KVGet(vestingKey(owner), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	acc, err := stored.toAccount()
	if err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

// PutVestingAccount persists an allocation.
func (m *Manager) PutVestingAccount(acc *vesting.Account) error {
	if acc == nil {
		return fmt.Errorf("vesting: nil account")
	}
	stored, err := newStoredVesting(acc)
	if err != nil {
		return err
	}
	return m.KVPut(vestingKey(acc.Owner), stored)
}

type storedStage struct {
	ID         uint64
	Issuer     [20]byte
	Schedule   []byte
	Cap        []byte
	Total      *uint256.Int
	Claimed    *uint256.Int
	Start      uint64
	Expiry     uint64
	MerkleRoot [32]byte
}

// AirdropStage loads an airdrop stage.
func (m *Manager) AirdropStage(id uint64) (*vesting.Stage, bool, error) {
	var stored storedStage
	ok, err := m.KVGet(airdropKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	stage := &vesting.Stage{
		ID:         stored.ID,
		Issuer:     stored.Issuer,
		Total:      common.Clone(stored.Total),
		Claimed:    common.Clone(stored.Claimed),
		Start:      stored.Start,
		Expiry:     stored.Expiry,
		MerkleRoot: stored.MerkleRoot,
	}
	if err := json.Unmarshal(stored.Schedule, &stage.Schedule.Shape); err != nil {
		return nil, false, fmt.Errorf("airdrop: decode schedule: %w", err)
	}
	if len(stored.Cap) > 0 {
		capCurve := new(curve.Scalable)
		if err := json.Unmarshal(stored.Cap, &capCurve.Shape); err != nil {
			return nil, false, fmt.Errorf("airdrop: decode cap: %w", err)
		}
		stage.Cap = capCurve
	}
	return stage, true, nil
}

// PutAirdropStage persists an airdrop stage.
func (m *Manager) PutAirdropStage(stage *vesting.Stage) error {
	if stage == nil {
		return fmt.Errorf("airdrop: nil stage")
	}
	schedule, err := json.Marshal(stage.Schedule.Shape)
	if err != nil {
		return err
	}
	stored := &storedStage{
		ID:         stage.ID,
		Issuer:     stage.Issuer,
		Schedule:   schedule,
		Total:      common.Clone(stage.Total),
		Claimed:    common.Clone(stage.Claimed),
		Start:      stage.Start,
		Expiry:     stage.Expiry,
		MerkleRoot: stage.MerkleRoot,
	}
	if stage.Cap != nil {
		if stored.Cap, err = json.Marshal(stage.Cap.Shape); err != nil {
			return err
		}
	}
	return m.KVPut(airdropKey(stage.ID), stored)
}
