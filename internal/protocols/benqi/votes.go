package benqi

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

func (b *benqi) getMarketBalances(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getMarketBalances", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	markets := b.cfg.Deployments[req.Chain.EVMChainID].Markets
	calls := make([]execution.ViewCall, 0, 3*len(markets))
	for _, m := range markets {
		qi := common.HexToAddress(m.QiToken)
		calls = append(calls,
			execution.NewCall(qi, marketABI, "balanceOf", req.Account),
			execution.NewCall(qi, marketABI, "exchangeRateStored"),
			execution.NewCall(qi, marketABI, "borrowBalanceStored", req.Account),
		)
	}
	results, err := execution.Aggregate(ctx, provider, b.cfg.Multicall, calls)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch market balances", err))
	}

	inv.Enter(execution.StageFormatting)
	var lines []string
	for i, m := range markets {
		supplied := underlyingOf(results[3*i].Big(0), results[3*i+1].Big(0))
		borrowed := results[3*i+2].Big(0)
		if supplied.Sign() == 0 && (borrowed == nil || borrowed.Sign() == 0) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: supplied %s, borrowed %s", m.Name,
			id.FormatUnitsPrecision(supplied, m.Decimals, 6),
			id.FormatUnitsPrecision(borrowed, m.Decimals, 6)))
	}
	if len(lines) == 0 {
		return inv.Done("No Benqi positions found")
	}
	return inv.Done(strings.Join(lines, "\n"))
}

func (b *benqi) getUserVotesLength(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getUserVotesLength", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	count, err := execution.ReadBig(ctx, provider, execution.NewCall(b.gauge(req.Chain.EVMChainID), gaugeABI, "getUserVotesLength", req.Account))
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch user votes", err))
	}

	inv.Enter(execution.StageFormatting)
	return inv.Done(fmt.Sprintf("User has %s", execution.Pluralize(count, "vote", "votes")))
}

func (b *benqi) voteForGauges(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "voteForGauges", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
	if err != nil {
		return inv.Fail(err)
	}
	nodeIDs := props.Strings("nodeIds")
	rawWeights := props.Strings("weights")
	if len(nodeIDs) == 0 {
		return inv.Fail(clierr.New(clierr.CodeUsage, "At least one node id is required"))
	}
	if len(nodeIDs) != len(rawWeights) {
		return inv.Fail(clierr.New(clierr.CodeUsage, "nodeIds and weights must have the same length"))
	}
	weights := make([]*big.Int, 0, len(rawWeights))
	total := new(big.Int)
	for _, raw := range rawWeights {
		w, err := validate.Amount(raw, 18)
		if err != nil {
			return inv.Fail(err)
		}
		weights = append(weights, w)
		total.Add(total, w)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	gauge := b.gauge(req.Chain.EVMChainID)
	calls := []execution.ViewCall{execution.NewCall(gauge, gaugeABI, "getUserVotingPower", req.Account)}
	for _, node := range nodeIDs {
		calls = append(calls, execution.NewCall(gauge, gaugeABI, "isNodeActive", node))
	}
	results, err := execution.Aggregate(ctx, provider, b.cfg.Multicall, calls)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch voting state", err))
	}
	power := results[0].Big(0)
	if power == nil || power.Sign() == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, "No veQI voting power available"))
	}
	if total.Cmp(power) > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Total weight %s veQI exceeds voting power of %s veQI", id.FormatUnits(total, 18), id.FormatUnitsPrecision(power, 18, 6))))
	}
	for i, node := range nodeIDs {
		if active, _ := results[i+1].Values[0].(bool); !active {
			return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Node %s is not active", node)))
		}
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(gauge, gaugeABI, "vote", nil, nodeIDs, weights); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully voted for %s with %s veQI", execution.Pluralize(big.NewInt(int64(len(nodeIDs))), "node", "nodes"), id.FormatUnits(total, 18)), nil
	})
}
