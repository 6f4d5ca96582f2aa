package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"tokenlock/crypto"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatTime(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func account(id [20]byte) string {
	return crypto.AccountString(id)
}

func zeroAddress(id [20]byte) bool {
	return id == [20]byte{}
}
