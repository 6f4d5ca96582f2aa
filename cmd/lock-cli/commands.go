package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"tokenlock/native/curve"
)

const (
	vestingUsage = "Usage: lock-cli vesting <create|claim|cancel|show|claimable|spendable|backing> [options]"
	airdropUsage = "Usage: lock-cli airdrop <stage|claim|show> [options]"
	bondUsage    = "Usage: lock-cli bond <bond|unbond|withdraw|show|unbonds|claims|totals|votes> [options]"
	rewardsUsage = "Usage: lock-cli rewards <notify|claim|delegate|delegate-of|pending|ledger> [options]"
)

// loadCurve reads a curve declaration from an inline JSON value or, when
// prefixed with @, from a file.
func loadCurve(value string) (*curve.Decl, error) {
	raw := []byte(strings.TrimSpace(value))
	if strings.HasPrefix(value, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(value, "@"))
		if err != nil {
			return nil, err
		}
		raw = data
	}
	var decl curve.Decl
	if err := json.Unmarshal(raw, &decl); err != nil {
		return nil, fmt.Errorf("invalid curve: %w", err)
	}
	return &decl, nil
}

// linearDecl builds a saturating linear schedule from start to end releasing
// total.
func linearDecl(start, end uint64, total string) curve.Decl {
	return curve.Decl{
		Kind:  "saturating_linear",
		Steps: []curve.DeclPoint{{T: start, Y: "0"}, {T: end, Y: total}},
	}
}

func runVestingCommand(args []string, stdout, stderr io.Writer) int {
	name, rest, ok := subcommand(args, vestingUsage, stderr)
	if !ok {
		return 1
	}
	fs := flag.NewFlagSet("vesting "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		owner    string
		amount   string
		schedule string
		start    uint64
		end      uint64
		now      uint64
	)
	fs.StringVar(&owner, "owner", "", "bech32 account of the allocation owner")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	fs.StringVar(&schedule, "schedule", "", "curve JSON, or @file with a curve JSON document")
	fs.Uint64Var(&start, "start", 0, "linear schedule start (unix seconds)")
	fs.Uint64Var(&end, "end", 0, "linear schedule end (unix seconds)")
	fs.Uint64Var(&now, "at", 0, "evaluate queries at this time instead of the node clock")
	if err := fs.Parse(rest); err != nil {
		return 1
	}
	switch name {
	case "create":
		if !require(stderr, map[string]string{"owner": owner, "amount": amount}) {
			return 1
		}
		var decl curve.Decl
		if schedule != "" {
			parsed, err := loadCurve(schedule)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			decl = *parsed
		} else {
			if end <= start {
				fmt.Fprintln(stderr, "Error: provide --schedule or --start/--end with end after start")
				return 1
			}
			decl = linearDecl(start, end, amount)
		}
		return printCall(stdout, stderr, "lock_createVesting", map[string]interface{}{
			"owner": owner, "amount": amount, "schedule": decl,
		}, true)
	case "claim":
		if !require(stderr, map[string]string{"amount": amount}) {
			return 1
		}
		return printCall(stdout, stderr, "lock_claim", map[string]string{"amount": amount}, true)
	case "cancel":
		if !require(stderr, map[string]string{"owner": owner}) {
			return 1
		}
		return printCall(stdout, stderr, "lock_cancel", map[string]string{"account": owner}, true)
	case "show", "claimable", "spendable", "backing":
		if !require(stderr, map[string]string{"owner": owner}) {
			return 1
		}
		method := map[string]string{
			"show":      "lock_getVesting",
			"claimable": "lock_getClaimable",
			"spendable": "lock_getSpendable",
			"backing":   "lock_getBacking",
		}[name]
		return printCall(stdout, stderr, method, queryParams(owner, 0, now), false)
	default:
		return unknownSubcommand(stderr, name, vestingUsage)
	}
}

func queryParams(account string, tier, now uint64) map[string]interface{} {
	params := map[string]interface{}{"account": account}
	if tier != 0 {
		params["tier"] = tier
	}
	if now != 0 {
		params["now"] = now
	}
	return params
}

func runAirdropCommand(args []string, stdout, stderr io.Writer) int {
	name, rest, ok := subcommand(args, airdropUsage, stderr)
	if !ok {
		return 1
	}
	fs := flag.NewFlagSet("airdrop "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		id       uint64
		issuer   string
		total    string
		amount   string
		start    uint64
		expiry   uint64
		schedule string
		capCurve string
		root     string
		proof    string
	)
	fs.Uint64Var(&id, "id", 0, "stage id")
	fs.StringVar(&issuer, "issuer", "", "bech32 account funding the stage")
	fs.StringVar(&total, "total", "", "stage budget in base units")
	fs.StringVar(&amount, "amount", "", "amount to claim")
	fs.Uint64Var(&start, "start", 0, "first claim time (unix seconds)")
	fs.Uint64Var(&expiry, "expiry", 0, "last claim time (unix seconds)")
	fs.StringVar(&schedule, "schedule", "", "ratio curve JSON in bps relative to claim time, or @file")
	fs.StringVar(&capCurve, "cap", "", "optional absolute-time ratio cap curve JSON in bps, or @file")
	fs.StringVar(&root, "root", "", "hex merkle root")
	fs.StringVar(&proof, "proof", "", "comma separated hex proof nodes")
	if err := fs.Parse(rest); err != nil {
		return 1
	}
	switch name {
	case "stage":
		if !require(stderr, map[string]string{"issuer": issuer, "total": total, "schedule": schedule}) {
			return 1
		}
		decl, err := loadCurve(schedule)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		params := map[string]interface{}{
			"id": id, "issuer": issuer, "total": total, "start": start, "expiry": expiry,
			"schedule": decl, "merkleRoot": root,
		}
		if capCurve != "" {
			capDecl, err := loadCurve(capCurve)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			params["cap"] = capDecl
		}
		return printCall(stdout, stderr, "lock_createStage", params, true)
	case "claim":
		if !require(stderr, map[string]string{"amount": amount}) {
			return 1
		}
		params := map[string]interface{}{"stageId": id, "amount": amount}
		if proof != "" {
			params["proof"] = strings.Split(proof, ",")
		}
		return printCall(stdout, stderr, "lock_claimAirdrop", params, true)
	case "show":
		return printCall(stdout, stderr, "lock_getStage", map[string]uint64{"id": id}, false)
	default:
		return unknownSubcommand(stderr, name, airdropUsage)
	}
}

func runBondCommand(args []string, stdout, stderr io.Writer) int {
	name, rest, ok := subcommand(args, bondUsage, stderr)
	if !ok {
		return 1
	}
	fs := flag.NewFlagSet("bond "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		account string
		tier    uint64
		amount  string
		source  string
	)
	fs.StringVar(&account, "account", "", "bech32 account to query")
	fs.Uint64Var(&tier, "tier", 0, "tier id")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	fs.StringVar(&source, "source", "", "delegate from this vesting allocation (your own account)")
	if err := fs.Parse(rest); err != nil {
		return 1
	}
	switch name {
	case "bond":
		if !require(stderr, map[string]string{"amount": amount}) {
			return 1
		}
		params := map[string]interface{}{"tier": tier, "amount": amount}
		if source != "" {
			params["source"] = source
		}
		return printCall(stdout, stderr, "lock_bond", params, true)
	case "unbond":
		if !require(stderr, map[string]string{"amount": amount}) {
			return 1
		}
		return printCall(stdout, stderr, "lock_beginUnbond", map[string]interface{}{"tier": tier, "amount": amount}, true)
	case "withdraw":
		return printCall(stdout, stderr, "lock_withdrawUnbonded", map[string]interface{}{"tier": tier}, true)
	case "show", "unbonds":
		if !require(stderr, map[string]string{"account": account}) {
			return 1
		}
		method := "lock_getBonded"
		switch {
		case name == "unbonds":
			method = "lock_getPendingUnbonds"
		case tier == 0:
			method = "lock_getAllBonded"
		}
		return printCall(stdout, stderr, method, queryParams(account, tier, 0), false)
	case "claims":
		if !require(stderr, map[string]string{"account": account}) {
			return 1
		}
		return printCall(stdout, stderr, "lock_getAllUnbonds", queryParams(account, 0, 0), false)
	case "totals":
		var param interface{}
		if tier != 0 {
			param = map[string]uint64{"tier": tier}
		}
		return printCall(stdout, stderr, "lock_getTotals", param, false)
	case "votes":
		if !require(stderr, map[string]string{"account": account}) {
			return 1
		}
		return printCall(stdout, stderr, "lock_getVotingPower", queryParams(account, 0, 0), false)
	default:
		return unknownSubcommand(stderr, name, bondUsage)
	}
}

func runRewardsCommand(args []string, stdout, stderr io.Writer) int {
	name, rest, ok := subcommand(args, rewardsUsage, stderr)
	if !ok {
		return 1
	}
	fs := flag.NewFlagSet("rewards "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		account  string
		amount   string
		owner    string
		receiver string
		delegate string
	)
	fs.StringVar(&account, "account", "", "bech32 account to query")
	fs.StringVar(&amount, "amount", "", "reward amount in base units")
	fs.StringVar(&owner, "owner", "", "claim rewards of this account as its withdrawal delegate")
	fs.StringVar(&receiver, "receiver", "", "pay claimed rewards to this account instead of the caller")
	fs.StringVar(&delegate, "delegate", "", "account allowed to claim your rewards (empty clears)")
	if err := fs.Parse(rest); err != nil {
		return 1
	}
	switch name {
	case "notify":
		if !require(stderr, map[string]string{"amount": amount}) {
			return 1
		}
		return printCall(stdout, stderr, "lock_notifyReward", map[string]string{"amount": amount}, true)
	case "claim":
		var param interface{}
		if owner != "" || receiver != "" {
			params := map[string]string{}
			if owner != "" {
				params["owner"] = owner
			}
			if receiver != "" {
				params["receiver"] = receiver
			}
			param = params
		}
		return printCall(stdout, stderr, "lock_claimReward", param, true)
	case "delegate":
		return printCall(stdout, stderr, "lock_delegateWithdrawal", map[string]string{"delegate": delegate}, true)
	case "delegate-of":
		if !require(stderr, map[string]string{"account": account}) {
			return 1
		}
		return printCall(stdout, stderr, "lock_getWithdrawDelegate", queryParams(account, 0, 0), false)
	case "pending":
		if !require(stderr, map[string]string{"account": account}) {
			return 1
		}
		return printCall(stdout, stderr, "lock_getPendingReward", queryParams(account, 0, 0), false)
	case "ledger":
		return printCall(stdout, stderr, "lock_getLedger", nil, false)
	default:
		return unknownSubcommand(stderr, name, rewardsUsage)
	}
}
