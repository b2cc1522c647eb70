package beets

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

var oneEther = big.NewInt(1_000_000_000_000_000_000)

type bigPair struct {
	shares *big.Int
	rate   *big.Int
}

func (p *bigPair) assets() *big.Int {
	if p.shares == nil || p.rate == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(p.shares, p.rate)
	return out.Quo(out, oneEther)
}

func (b *beets) stake(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "stake", opts)
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
	_, sts := b.deployment(req.Chain.EVMChainID)
	native, err := execution.NativeBalance(ctx, provider, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch S balance", err))
	}
	if native.Cmp(amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient S balance. Have %s S, need %s S", id.FormatUnits(native, 18), id.FormatUnits(amount, 18))))
	}
	snap, err := execution.TakeSnapshot(ctx, "stS balance", func(ctx context.Context) (*big.Int, error) {
		return execution.BalanceOf(ctx, provider, sts, req.Account)
	})
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(sts, stakedSonicABI, "deposit", amount); err != nil {
		return inv.Fail(err)
	}
	inv.Notify(ctx, fmt.Sprintf("Staking %s S with Beets", id.FormatUnits(amount, 18)))

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		received, err := snap.Delta(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Successfully staked %s S and received %s stS", id.FormatUnits(amount, 18), id.FormatUnitsPrecision(received, 18, 6)), nil
	})
}
