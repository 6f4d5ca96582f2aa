package state

import "strconv"

var (
	vestingPrefix    = []byte("vesting:")
	airdropPrefix    = []byte("airdrop:")
	bondPrefix       = []byte("bond:")
	bondTotalsPrefix = []byte("bondtotals:")
	bondTiersKey     = []byte("bondtotals:tiers")
	delegatePrefix   = []byte("rewards:delegate:")
	rewardsLedgerKey = []byte("rewards:ledger")
	genesisKey       = []byte("genesis:applied")
)

func vestingKey(owner [20]byte) []byte {
	buf := make([]byte, 0, len(vestingPrefix)+len(owner))
	buf = append(buf, vestingPrefix...)
	return append(buf, owner[:]...)
}

func airdropKey(stage uint64) []byte {
	return strconv.AppendUint(append([]byte(nil), airdropPrefix...), stage, 10)
}

func bondKey(tier uint64, account [20]byte) []byte {
	buf := strconv.AppendUint(append([]byte(nil), bondPrefix...), tier, 10)
	buf = append(buf, ':')
	return append(buf, account[:]...)
}

func bondTotalsKey(tier uint64) []byte {
	return strconv.AppendUint(append([]byte(nil), bondTotalsPrefix...), tier, 10)
}

func delegateKey(owner [20]byte) []byte {
	buf := make([]byte, 0, len(delegatePrefix)+len(owner))
	buf = append(buf, delegatePrefix...)
	return append(buf, owner[:]...)
}
