package beets

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

func (b *beets) unstake(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "unstake", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
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
	dep, sts := b.deployment(req.Chain.EVMChainID)
	results, err := execution.Aggregate(ctx, provider, b.cfg.Multicall, []execution.ViewCall{
		execution.NewCall(sts, execution.ERC20ABI, "balanceOf", req.Account),
		execution.NewCall(sts, stakedSonicABI, "convertToShares", amount),
		execution.NewCall(sts, stakedSonicABI, "withdrawDelay"),
	})
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch staking state", err))
	}
	balance, shares, delay := results[0].Big(0), results[1].Big(0), results[2].Big(0)
	if balance == nil || shares == nil {
		return inv.Fail(clierr.New(clierr.CodeUnavailable, "failed to fetch staking state"))
	}
	if shares.Cmp(balance) > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient stS balance. Have %s stS, need %s stS", id.FormatUnits(balance, 18), id.FormatUnits(shares, 18))))
	}
	validatorID, err := b.pickValidator(ctx, provider, dep, sts, amount)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(sts, stakedSonicABI, "undelegateMany", nil, []*big.Int{validatorID}, []*big.Int{shares}); err != nil {
		return inv.Fail(err)
	}
	inv.Notify(ctx, fmt.Sprintf("Unstaking %s S from validator %s", id.FormatUnits(amount, 18), validatorID))

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		msg := fmt.Sprintf("Successfully initiated unstaking of %s S (%s stS) from validator %s.", id.FormatUnits(amount, 18), id.FormatUnitsPrecision(shares, 18, 6), validatorID)
		if delay != nil && delay.Sign() > 0 {
			msg += fmt.Sprintf(" Funds can be withdrawn after the %s withdrawal delay.", formatDelay(delay))
		}
		return msg, nil
	})
}

// pickValidator returns the first configured validator whose stS delegation covers amount.
func (b *beets) pickValidator(ctx context.Context, p adapter.Provider, dep registry.BeetsDeployment, sts common.Address, amount *big.Int) (*big.Int, error) {
	if len(dep.ValidatorIDs) == 0 {
		return nil, clierr.New(clierr.CodeUnsupported, "No validators configured for Beets")
	}
	sfc := common.HexToAddress(dep.SFC)
	calls := make([]execution.ViewCall, 0, len(dep.ValidatorIDs))
	for _, vid := range dep.ValidatorIDs {
		c := execution.NewCall(sfc, sfcABI, "getStake", sts, big.NewInt(vid))
		c.AllowFailure = true
		calls = append(calls, c)
	}
	results, err := execution.Aggregate(ctx, p, b.cfg.Multicall, calls)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "failed to fetch validator delegations", err)
	}
	for i, r := range results {
		if stake := r.Big(0); stake != nil && stake.Cmp(amount) >= 0 {
			return big.NewInt(dep.ValidatorIDs[i]), nil
		}
	}
	return nil, clierr.New(clierr.CodePrecondition, fmt.Sprintf("No validator has enough delegated stake to unstake %s S", id.FormatUnits(amount, 18)))
}

func formatDelay(seconds *big.Int) string {
	s := seconds.Int64()
	switch {
	case s%86400 == 0:
		return execution.Pluralize(big.NewInt(s/86400), "day", "days")
	case s%3600 == 0:
		return execution.Pluralize(big.NewInt(s/3600), "hour", "hours")
	default:
		return execution.Pluralize(big.NewInt(s), "second", "seconds")
	}
}
