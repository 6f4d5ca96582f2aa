package genesis

import (
	"context"

	"tokenlock/core/processor"
	"tokenlock/native/vesting"
)

// Commands translates the genesis into processor commands. Stages are
// registered by admin; allocations are funded by their issuers.
func (s *GenesisSpec) Commands(admin [20]byte) []processor.Command {
	now := uint64(s.genesisTimestamp.Unix())
	cmds := make([]processor.Command, 0, len(s.Stages)+len(s.Vesting))
	for i := range s.Stages {
		st := &s.Stages[i]
		cmds = append(cmds, processor.Command{
			Kind:   processor.KindCreateStage,
			Caller: admin,
			Stage: &vesting.Stage{
				ID:         st.ID,
				Issuer:     st.issuer,
				Schedule:   st.schedule,
				Cap:        st.cap,
				Total:      st.total,
				Start:      st.Start,
				Expiry:     st.Expiry,
				MerkleRoot: st.root,
			},
			Now: now,
		})
	}
	for i := range s.Vesting {
		v := &s.Vesting[i]
		cmds = append(cmds, processor.Command{
			Kind:     processor.KindCreateVesting,
			Caller:   v.issuer,
			Account:  v.owner,
			Amount:   v.amount,
			Schedule: v.schedule,
			Now:      now,
		})
	}
	return cmds
}

// Apply executes the genesis once. It reports whether state was written; a
// store already initialised with the same file is left untouched.
func Apply(ctx context.Context, proc *processor.Processor, spec *GenesisSpec, admin [20]byte) (bool, error) {
	return proc.ApplyGenesis(ctx, spec.Hash(), spec.Commands(admin))
}
