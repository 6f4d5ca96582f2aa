package events

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestRecorderDrainAndRender(t *testing.T) {
	var rec Recorder
	rec.Emit(VestingClaimed{Owner: [20]byte{1}, Amount: uint256.NewInt(5), Claimed: uint256.NewInt(5), At: 10})
	rec.Emit(RewardsNotified{Amount: uint256.NewInt(100)})
	rec.Emit(nil)

	drained := rec.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 events, got %d", len(drained))
	}
	if len(rec.Drain()) != 0 {
		t.Fatalf("drain should reset the buffer")
	}

	rendered := Render(drained)
	if rendered[0].Type != TypeVestingClaimed {
		t.Fatalf("unexpected type %q", rendered[0].Type)
	}
	if rendered[0].Attributes["amount"] != "5" || rendered[0].Attributes["at"] != "10" {
		t.Fatalf("unexpected attributes %+v", rendered[0].Attributes)
	}
	if rendered[1].Attributes["totalWeight"] != "0" {
		t.Fatalf("nil amounts should render as zero: %+v", rendered[1].Attributes)
	}
}

func TestBondBondedOmitsEmptySource(t *testing.T) {
	evt := BondBonded{Account: [20]byte{2}, Tier: 7, Amount: uint256.NewInt(1)}.Event()
	if _, ok := evt.Attributes["source"]; ok {
		t.Fatalf("liquid bonds should not carry a source")
	}
	evt = BondBonded{Account: [20]byte{2}, Tier: 7, Source: [20]byte{2}}.Event()
	if evt.Attributes["source"] == "" || evt.Attributes["tier"] != "7" {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
}
