package swapx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

func (s *swapx) vote(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "vote", opts)
	inv.Enter(execution.StageValidating)
	req, err := s.validateLock(props)
	if err != nil {
		return inv.Fail(err)
	}
	rawPools := props.Strings("pools")
	rawWeights := props.Strings("weights")
	if len(rawPools) == 0 {
		return inv.Fail(clierr.New(clierr.CodeUsage, "At least one pool is required"))
	}
	if len(rawPools) != len(rawWeights) {
		return inv.Fail(clierr.New(clierr.CodeUsage, "pools and weights must have the same length"))
	}
	pools := make([]common.Address, 0, len(rawPools))
	weights := make([]*big.Int, 0, len(rawWeights))
	for i := range rawPools {
		pool, err := validate.Address("pool", rawPools[i])
		if err != nil {
			return inv.Fail(err)
		}
		w, err := validate.NonNegativeInt("weight", rawWeights[i])
		if err != nil {
			return inv.Fail(err)
		}
		if w.Sign() == 0 {
			return inv.Fail(clierr.New(clierr.CodeUsage, "Weights must be greater than 0"))
		}
		pools = append(pools, pool)
		weights = append(weights, w)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	c := s.contracts(req.Chain.EVMChainID)
	state, err := s.readLockState(ctx, provider, c.ve, req.tokenID)
	if err != nil {
		return inv.Fail(err)
	}
	if err := req.requireOwner(state); err != nil {
		return inv.Fail(err)
	}
	if state.end.Cmp(state.now) <= 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Lock #%s has expired and has no voting power", req.tokenID)))
	}
	gaugeCalls := make([]execution.ViewCall, 0, len(pools))
	for _, pool := range pools {
		gaugeCalls = append(gaugeCalls, execution.NewCall(c.voter, voterABI, "gauges", pool))
	}
	gauges, err := execution.Aggregate(ctx, provider, s.cfg.Multicall, gaugeCalls)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch pool gauges", err))
	}
	for i, g := range gauges {
		if gauge, _ := g.Values[0].(common.Address); gauge == (common.Address{}) {
			return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Pool %s has no gauge", pools[i].Hex())))
		}
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(c.voter, voterABI, "vote", nil, req.tokenID, pools, weights); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully voted with lock #%s for %s", req.tokenID, execution.Pluralize(big.NewInt(int64(len(pools))), "pool", "pools")), nil
	})
}

func (s *swapx) resetVotes(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "resetVotes", opts)
	inv.Enter(execution.StageValidating)
	req, err := s.validateLock(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	c := s.contracts(req.Chain.EVMChainID)
	state, err := s.readLockState(ctx, provider, c.ve, req.tokenID)
	if err != nil {
		return inv.Fail(err)
	}
	if err := req.requireOwner(state); err != nil {
		return inv.Fail(err)
	}
	if !state.voted {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Lock #%s has no active votes", req.tokenID)))
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(c.voter, voterABI, "reset", nil, req.tokenID); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully reset votes for lock #%s", req.tokenID), nil
	})
}

func (s *swapx) withdrawLock(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "withdrawLock", opts)
	inv.Enter(execution.StageValidating)
	req, err := s.validateLock(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	c := s.contracts(req.Chain.EVMChainID)
	state, err := s.readLockState(ctx, provider, c.ve, req.tokenID)
	if err != nil {
		return inv.Fail(err)
	}
	if err := req.requireOwner(state); err != nil {
		return inv.Fail(err)
	}
	if state.voted {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Lock #%s has active votes. Reset votes before withdrawing", req.tokenID)))
	}
	if state.attachments != nil && state.attachments.Sign() > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Lock #%s is attached to a gauge", req.tokenID)))
	}
	if state.end.Cmp(state.now) > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Lock #%s is still vesting until %s", req.tokenID, formatTimestamp(state.end))))
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(c.ve, votingEscrowABI, "withdraw", nil, req.tokenID); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully withdrew %s SWPx from lock #%s", id.FormatUnitsPrecision(state.amount, 18, 6), req.tokenID), nil
	})
}

func (s *swapx) increaseLockAmount(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "increaseLockAmount", opts)
	inv.Enter(execution.StageValidating)
	req, err := s.validateLock(props)
	if err != nil {
		return inv.Fail(err)
	}
	amount, err := validate.Amount(props.String("amount"), 18)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	c := s.contracts(req.Chain.EVMChainID)
	state, err := s.readLockState(ctx, provider, c.ve, req.tokenID)
	if err != nil {
		return inv.Fail(err)
	}
	if err := req.requireOwner(state); err != nil {
		return inv.Fail(err)
	}
	if state.end.Cmp(state.now) <= 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Lock #%s has expired", req.tokenID)))
	}
	balance, err := execution.BalanceOf(ctx, provider, c.swpx, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch SWPx balance", err))
	}
	if balance.Cmp(amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient SWPx balance. Have %s, need %s", id.FormatUnits(balance, 18), id.FormatUnits(amount, 18))))
	}

	inv.Enter(execution.StageApproving)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if _, err := plan.EnsureAllowance(ctx, provider, execution.Approval{Token: c.swpx, Spender: c.ve, Amount: amount}); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	if err := plan.Call(c.ve, votingEscrowABI, "increase_amount", nil, req.tokenID, amount); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		total := new(big.Int).Add(state.amount, amount)
		return fmt.Sprintf("Successfully added %s SWPx to lock #%s. Lock now holds %s SWPx", id.FormatUnits(amount, 18), req.tokenID, id.FormatUnitsPrecision(total, 18, 6)), nil
	})
}
