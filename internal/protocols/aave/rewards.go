package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

type rewardSnapshot struct {
	token    common.Address
	symbol   string
	decimals int
	snap     *execution.Snapshot
}

// describe names a reward token from the configured reserves, reading decimals on chain
// for tokens outside that list.
func (a *aave) describe(ctx context.Context, p adapter.Provider, chainID int64, token common.Address) (string, int, error) {
	for _, t := range a.cfg.Tokens[chainID] {
		if common.HexToAddress(t.Address) == token {
			return strings.ToUpper(t.Symbol), t.Decimals, nil
		}
	}
	decimals, err := execution.Decimals(ctx, p, token)
	if err != nil {
		return "", 0, err
	}
	return token.Hex(), decimals, nil
}

func (a *aave) claimRewards(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "claimRewards", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), a.chains())
	if err != nil {
		return inv.Fail(err)
	}
	var reserves []common.Address
	symbols := props.Strings("tokenSymbols")
	if len(symbols) == 0 {
		for _, t := range a.cfg.Tokens[req.Chain.EVMChainID] {
			reserves = append(reserves, common.HexToAddress(t.Address))
		}
	}
	for _, symbol := range symbols {
		asset, err := a.asset(req.Chain, symbol)
		if err != nil {
			return inv.Fail(err)
		}
		if asset.Native {
			reserves = append(reserves, a.wrappedNative(req.Chain.EVMChainID))
			continue
		}
		reserves = append(reserves, common.HexToAddress(asset.Address))
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	m, err := a.resolveMarket(ctx, provider, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	if m.incentives == (common.Address{}) {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Aave incentives are not available on %s", req.Chain.Slug)))
	}

	calls := make([]execution.ViewCall, 0, len(reserves)+1)
	calls = append(calls, execution.NewCall(m.incentives, rewardsABI, "getRewardsList"))
	for _, r := range reserves {
		c := execution.NewCall(m.dataProvider, dataProviderABI, "getReserveTokensAddresses", r)
		c.AllowFailure = true
		calls = append(calls, c)
	}
	results, err := execution.Aggregate(ctx, provider, a.cfg.Multicall, calls)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch reward configuration", err))
	}
	rewards, _ := results[0].Values[0].([]common.Address)
	if len(rewards) == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, "No incentive rewards are configured on this market"))
	}
	var assets []common.Address
	for _, r := range results[1:] {
		if !r.Success {
			continue
		}
		aToken, _ := r.Values[0].(common.Address)
		debtToken, _ := r.Values[2].(common.Address)
		for _, addr := range []common.Address{aToken, debtToken} {
			if addr != (common.Address{}) {
				assets = append(assets, addr)
			}
		}
	}
	if len(assets) == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, "No Aave reserves found for the given tokens"))
	}

	snaps, err := execution.FanOut(ctx, len(rewards), func(ctx context.Context, i int) (rewardSnapshot, error) {
		symbol, decimals, err := a.describe(ctx, provider, req.Chain.EVMChainID, rewards[i])
		if err != nil {
			return rewardSnapshot{}, err
		}
		token := rewards[i]
		snap, err := execution.TakeSnapshot(ctx, symbol+" balance", func(ctx context.Context) (*big.Int, error) {
			return execution.BalanceOf(ctx, provider, token, req.Account)
		})
		if err != nil {
			return rewardSnapshot{}, err
		}
		return rewardSnapshot{token: token, symbol: symbol, decimals: decimals, snap: snap}, nil
	})
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch reward balances", err))
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(m.incentives, rewardsABI, "claimAllRewards", nil, assets, req.Account); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		deltas, err := execution.FanOut(ctx, len(snaps), func(ctx context.Context, i int) (*big.Int, error) {
			return snaps[i].snap.Delta(ctx)
		})
		if err != nil {
			return "", err
		}
		var parts []string
		for i, d := range deltas {
			if d.Sign() > 0 {
				parts = append(parts, fmt.Sprintf("%s %s", id.FormatUnitsPrecision(d, snaps[i].decimals, 6), snaps[i].symbol))
			}
		}
		if len(parts) == 0 {
			return "Rewards claimed, but no reward balance changed", nil
		}
		return "Successfully claimed rewards: " + strings.Join(parts, ", "), nil
	})
}
