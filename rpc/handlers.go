package rpc

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"tokenlock/core/processor"
	"tokenlock/crypto"
	"tokenlock/native/common"
	"tokenlock/native/curve"
	"tokenlock/native/vesting"
)

func (s *Server) routes() map[string]method {
	return map[string]method{
		"lock_createVesting":       {accessSigned, s.handleCreateVesting},
		"lock_createStage":         {accessAdmin, s.handleCreateStage},
		"lock_claimAirdrop":        {accessSigned, s.handleClaimAirdrop},
		"lock_claim":               {accessSigned, s.handleClaim},
		"lock_cancel":              {accessAdmin, s.handleCancel},
		"lock_bond":                {accessSigned, s.handleBond},
		"lock_beginUnbond":         {accessSigned, s.handleBeginUnbond},
		"lock_withdrawUnbonded":    {accessSigned, s.handleWithdrawUnbonded},
		"lock_notifyReward":        {accessAdmin, s.handleNotifyReward},
		"lock_claimReward":         {accessSigned, s.handleClaimReward},
		"lock_delegateWithdrawal":  {accessSigned, s.handleDelegateWithdrawal},
		"lock_getVesting":          {accessPublic, s.handleGetVesting},
		"lock_getClaimable":        {accessPublic, s.handleGetClaimable},
		"lock_getSpendable":        {accessPublic, s.handleGetSpendable},
		"lock_getBacking":          {accessPublic, s.handleGetBacking},
		"lock_getStage":            {accessPublic, s.handleGetStage},
		"lock_getBonded":           {accessPublic, s.handleGetBonded},
		"lock_getPendingUnbonds":   {accessPublic, s.handleGetPendingUnbonds},
		"lock_getAllBonded":        {accessPublic, s.handleGetAllBonded},
		"lock_getAllUnbonds":       {accessPublic, s.handleGetAllUnbonds},
		"lock_getTotals":           {accessPublic, s.handleGetTotals},
		"lock_getWithdrawDelegate": {accessPublic, s.handleGetWithdrawDelegate},
		"lock_getVotingPower":      {accessPublic, s.handleGetVotingPower},
		"lock_getPendingReward":    {accessPublic, s.handleGetPendingReward},
		"lock_getLedger":           {accessPublic, s.handleGetLedger},
		"lock_getTiers":            {accessPublic, s.handleGetTiers},
		"lock_outboxPending":       {accessAdmin, s.handleOutboxPending},
		"lock_outboxAck":           {accessAdmin, s.handleOutboxAck},
	}
}

type createVestingParams struct {
	Owner    string     `json:"owner"`
	Amount   string     `json:"amount"`
	Schedule curve.Decl `json:"schedule"`
}

type createStageParams struct {
	ID         uint64      `json:"id"`
	Issuer     string      `json:"issuer"`
	Total      string      `json:"total"`
	Start      uint64      `json:"start"`
	Expiry     uint64      `json:"expiry"`
	Schedule   curve.Decl  `json:"schedule"`
	Cap        *curve.Decl `json:"cap,omitempty"`
	MerkleRoot string      `json:"merkleRoot,omitempty"`
}

type claimAirdropParams struct {
	StageID uint64   `json:"stageId"`
	Amount  string   `json:"amount"`
	Proof   []string `json:"proof,omitempty"`
}

type amountParams struct {
	Amount string `json:"amount"`
}

type cancelParams struct {
	Account string `json:"account"`
}

type bondParams struct {
	Tier   uint64 `json:"tier"`
	Amount string `json:"amount"`
	Source string `json:"source,omitempty"`
}

type tierParams struct {
	Tier   uint64 `json:"tier"`
	Amount string `json:"amount,omitempty"`
}

type accountParams struct {
	Account string  `json:"account"`
	Tier    uint64  `json:"tier,omitempty"`
	Now     *uint64 `json:"now,omitempty"`
}

type claimRewardParams struct {
	Owner    string `json:"owner,omitempty"`
	Receiver string `json:"receiver,omitempty"`
}

type delegateParams struct {
	Delegate string `json:"delegate,omitempty"`
}

type totalsParams struct {
	Tier uint64 `json:"tier,omitempty"`
}

type stageParams struct {
	ID uint64 `json:"id"`
}

type outboxPendingParams struct {
	Limit int `json:"limit,omitempty"`
}

type outboxAckParams struct {
	IDs []string `json:"ids"`
}

// apply stamps cmd with the authenticated caller and server time.
func (s *Server) apply(ctx context.Context, c *call, cmd processor.Command) (interface{}, error) {
	cmd.Caller = c.principal.Account
	cmd.Now = c.now
	receipt, err := s.backend.Apply(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return receiptResult(receipt), nil
}

func (s *Server) handleCreateVesting(ctx context.Context, c *call) (interface{}, error) {
	var params createVestingParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	owner, err := parseAccount("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	schedule, err := params.Schedule.Curve()
	if err != nil {
		return nil, invalidParams("invalid schedule", err)
	}
	return s.apply(ctx, c, processor.Command{
		Kind:     processor.KindCreateVesting,
		Account:  owner,
		Amount:   amount,
		Schedule: schedule,
	})
}

func (s *Server) handleCreateStage(ctx context.Context, c *call) (interface{}, error) {
	var params createStageParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	issuer, err := parseAccount("issuer", params.Issuer)
	if err != nil {
		return nil, err
	}
	total, err := parseAmount(params.Total)
	if err != nil {
		return nil, err
	}
	schedule, err := params.Schedule.Scalable()
	if err != nil {
		return nil, invalidParams("invalid schedule", err)
	}
	stage := &vesting.Stage{
		ID:       params.ID,
		Issuer:   issuer,
		Schedule: schedule,
		Total:    total,
		Start:    params.Start,
		Expiry:   params.Expiry,
	}
	if params.Cap != nil {
		capCurve, err := params.Cap.Scalable()
		if err != nil {
			return nil, invalidParams("invalid cap", err)
		}
		stage.Cap = &capCurve
	}
	if stage.MerkleRoot, err = parseRoot(params.MerkleRoot); err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{Kind: processor.KindCreateStage, Stage: stage})
}

func (s *Server) handleClaimAirdrop(ctx context.Context, c *call) (interface{}, error) {
	var params claimAirdropParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	proof, err := parseProof(params.Proof)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{
		Kind:    processor.KindClaimAirdrop,
		StageID: params.StageID,
		Amount:  amount,
		Proof:   proof,
	})
}

func (s *Server) handleClaim(ctx context.Context, c *call) (interface{}, error) {
	var params amountParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{Kind: processor.KindClaim, Amount: amount})
}

func (s *Server) handleCancel(ctx context.Context, c *call) (interface{}, error) {
	var params cancelParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	account, err := parseAccount("account", params.Account)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{Kind: processor.KindCancel, Account: account})
}

func (s *Server) handleBond(ctx context.Context, c *call) (interface{}, error) {
	var params bondParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	source, err := parseOptionalAccount("source", params.Source)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{
		Kind:   processor.KindBond,
		Tier:   params.Tier,
		Amount: amount,
		Source: source,
	})
}

func (s *Server) handleBeginUnbond(ctx context.Context, c *call) (interface{}, error) {
	var params tierParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{Kind: processor.KindBeginUnbond, Tier: params.Tier, Amount: amount})
}

func (s *Server) handleWithdrawUnbonded(ctx context.Context, c *call) (interface{}, error) {
	var params tierParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{Kind: processor.KindWithdrawUnbonded, Tier: params.Tier})
}

func (s *Server) handleNotifyReward(ctx context.Context, c *call) (interface{}, error) {
	var params amountParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{Kind: processor.KindNotifyReward, Amount: amount})
}

func (s *Server) handleClaimReward(ctx context.Context, c *call) (interface{}, error) {
	var params claimRewardParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	owner, err := parseOptionalAccount("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	receiver, err := parseOptionalAccount("receiver", params.Receiver)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{Kind: processor.KindClaimReward, Account: owner, Receiver: receiver})
}

func (s *Server) handleDelegateWithdrawal(ctx context.Context, c *call) (interface{}, error) {
	var params delegateParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	delegate, err := parseOptionalAccount("delegate", params.Delegate)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, processor.Command{Kind: processor.KindDelegateWithdrawal, Receiver: delegate})
}

// accountQuery decodes the account parameter and the evaluation time, which
// defaults to the server clock.
func accountQuery(c *call) (accountParams, [20]byte, uint64, error) {
	var params accountParams
	if err := decodeParams(c, &params); err != nil {
		return params, [20]byte{}, 0, err
	}
	account, err := parseAccount("account", params.Account)
	if err != nil {
		return params, [20]byte{}, 0, err
	}
	now := c.now
	if params.Now != nil {
		now = *params.Now
	}
	return params, account, now, nil
}

func (s *Server) handleGetVesting(_ context.Context, c *call) (interface{}, error) {
	_, owner, now, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	acc, err := s.backend.Vesting(owner)
	if err != nil {
		return nil, err
	}
	claimable, err := s.backend.Claimable(owner, now)
	if err != nil {
		return nil, err
	}
	return vestingResult(acc, claimable), nil
}

func (s *Server) handleGetClaimable(_ context.Context, c *call) (interface{}, error) {
	params, owner, now, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	amount, err := s.backend.Claimable(owner, now)
	if err != nil {
		return nil, err
	}
	return AmountResult{Account: params.Account, Amount: common.FormatAmount(amount)}, nil
}

func (s *Server) handleGetSpendable(_ context.Context, c *call) (interface{}, error) {
	params, owner, now, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	amount, err := s.backend.Spendable(owner, now)
	if err != nil {
		return nil, err
	}
	return AmountResult{Account: params.Account, Amount: common.FormatAmount(amount)}, nil
}

func (s *Server) handleGetBacking(_ context.Context, c *call) (interface{}, error) {
	params, owner, now, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	backing, err := s.backend.Backing(owner, now)
	if err != nil {
		return nil, err
	}
	return BackingResult{
		Account:        params.Account,
		Delegated:      common.FormatAmount(backing.Delegated),
		VestedBacked:   common.FormatAmount(backing.VestedBacked),
		UnvestedBacked: common.FormatAmount(backing.UnvestedBacked),
	}, nil
}

func (s *Server) handleGetStage(_ context.Context, c *call) (interface{}, error) {
	var params stageParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	stage, err := s.backend.Stage(params.ID)
	if err != nil {
		return nil, err
	}
	return stageResult(stage), nil
}

func (s *Server) handleGetBonded(_ context.Context, c *call) (interface{}, error) {
	params, account, _, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	amount, err := s.backend.Bonded(account, params.Tier)
	if err != nil {
		return nil, err
	}
	return AmountResult{Account: params.Account, Tier: params.Tier, Amount: common.FormatAmount(amount)}, nil
}

func (s *Server) handleGetPendingUnbonds(_ context.Context, c *call) (interface{}, error) {
	params, account, _, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	requests, err := s.backend.PendingUnbonds(account, params.Tier)
	if err != nil {
		return nil, err
	}
	out := make([]UnbondResult, 0, len(requests))
	for _, req := range requests {
		out = append(out, unbondResult(req))
	}
	return out, nil
}

func (s *Server) handleGetAllBonded(_ context.Context, c *call) (interface{}, error) {
	params, account, _, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	amounts, err := s.backend.AllBonded(account)
	if err != nil {
		return nil, err
	}
	out := make([]AmountResult, 0, len(amounts))
	for _, a := range amounts {
		out = append(out, AmountResult{Account: params.Account, Tier: a.Tier, Amount: common.FormatAmount(a.Amount)})
	}
	return out, nil
}

func (s *Server) handleGetAllUnbonds(_ context.Context, c *call) (interface{}, error) {
	_, account, _, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	byTier, err := s.backend.AllPendingUnbonds(account)
	if err != nil {
		return nil, err
	}
	tiers := make([]uint64, 0, len(byTier))
	for id := range byTier {
		tiers = append(tiers, id)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	out := make([]TierUnbondsResult, 0, len(tiers))
	for _, id := range tiers {
		entry := TierUnbondsResult{Tier: id, Requests: make([]UnbondResult, 0, len(byTier[id]))}
		for _, req := range byTier[id] {
			entry.Requests = append(entry.Requests, unbondResult(req))
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Server) handleGetTotals(_ context.Context, c *call) (interface{}, error) {
	var params totalsParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	totals, err := s.backend.TierTotals(params.Tier)
	if err != nil {
		return nil, err
	}
	return totalsResult(totals)
}

func (s *Server) handleGetWithdrawDelegate(_ context.Context, c *call) (interface{}, error) {
	params, owner, _, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	delegate, err := s.backend.WithdrawDelegate(owner)
	if err != nil {
		return nil, err
	}
	return DelegateResult{Owner: params.Account, Delegate: crypto.AccountString(delegate)}, nil
}

func (s *Server) handleGetVotingPower(_ context.Context, c *call) (interface{}, error) {
	params, account, _, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	power, err := s.backend.VotingPower(account)
	if err != nil {
		return nil, err
	}
	return AmountResult{Account: params.Account, Amount: common.FormatAmount(power)}, nil
}

func (s *Server) handleGetPendingReward(_ context.Context, c *call) (interface{}, error) {
	params, account, _, err := accountQuery(c)
	if err != nil {
		return nil, err
	}
	amount, err := s.backend.PendingReward(account)
	if err != nil {
		return nil, err
	}
	return AmountResult{Account: params.Account, Amount: common.FormatAmount(amount)}, nil
}

func (s *Server) handleGetLedger(_ context.Context, c *call) (interface{}, error) {
	if err := decodeParams(c, &struct{}{}); err != nil {
		return nil, err
	}
	ledger, err := s.backend.Ledger()
	if err != nil {
		return nil, err
	}
	return ledgerResult(ledger), nil
}

func (s *Server) handleGetTiers(_ context.Context, c *call) (interface{}, error) {
	if err := decodeParams(c, &struct{}{}); err != nil {
		return nil, err
	}
	tiers := s.backend.Tiers()
	out := make([]TierResult, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, tierResult(tier))
	}
	return out, nil
}

func (s *Server) outboxOrError() (Outbox, error) {
	if s.outbox == nil {
		return nil, &RPCError{Code: codeServerError, Message: "transfer outbox disabled", status: http.StatusServiceUnavailable}
	}
	return s.outbox, nil
}

func (s *Server) handleOutboxPending(ctx context.Context, c *call) (interface{}, error) {
	box, err := s.outboxOrError()
	if err != nil {
		return nil, err
	}
	var params outboxPendingParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	pending, err := box.Pending(ctx, params.Limit)
	if err != nil {
		return nil, err
	}
	total, err := box.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	out := OutboxPendingResult{Total: total, Transfers: make([]OutboxTransferResult, 0, len(pending))}
	for _, t := range pending {
		out.Transfers = append(out.Transfers, OutboxTransferResult{
			ID:          t.ID.String(),
			ReceiptID:   t.ReceiptID.String(),
			Seq:         t.Seq,
			Command:     t.Command,
			From:        t.From,
			To:          t.To,
			Amount:      t.Amount,
			Reason:      t.Reason,
			CommandTime: t.CommandTime,
		})
	}
	return out, nil
}

func (s *Server) handleOutboxAck(ctx context.Context, c *call) (interface{}, error) {
	box, err := s.outboxOrError()
	if err != nil {
		return nil, err
	}
	var params outboxAckParams
	if err := decodeParams(c, &params); err != nil {
		return nil, err
	}
	if len(params.IDs) == 0 {
		return nil, invalidParams("ids required", nil)
	}
	ids := make([]uuid.UUID, 0, len(params.IDs))
	for _, raw := range params.IDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, invalidParams("invalid transfer id", err)
		}
		ids = append(ids, id)
	}
	if err := box.MarkForwarded(ctx, ids); err != nil {
		return nil, &RPCError{Code: codeRejected, Message: err.Error(), status: http.StatusConflict}
	}
	return map[string]int{"acknowledged": len(ids)}, nil
}
