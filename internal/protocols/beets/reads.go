package beets

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

func (b *beets) getStakedBalance(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getStakedBalance", opts)
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
	_, sts := b.deployment(req.Chain.EVMChainID)
	pair, err := b.stakedBalance(ctx, provider, sts, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch staked balance", err))
	}

	inv.Enter(execution.StageFormatting)
	return inv.Done(fmt.Sprintf("Staked balance: %s stS (%s S)", id.FormatUnitsPrecision(pair.shares, 18, 6), id.FormatUnitsPrecision(pair.assets(), 18, 6)))
}

// openWithdrawRequests reads every withdraw request of account together with the block
// timestamp of the batch. All unlock checks complete before the result is returned.
func (b *beets) openWithdrawRequests(ctx context.Context, p adapter.Provider, sts, account common.Address) ([]withdrawRequest, *big.Int, *big.Int, error) {
	count, err := execution.ReadBig(ctx, p, execution.NewCall(sts, stakedSonicABI, "userNumWithdraws", account))
	if err != nil {
		return nil, nil, nil, err
	}
	n := int(count.Int64())
	if n == 0 {
		return nil, nil, nil, nil
	}
	idCalls := make([]execution.ViewCall, 0, n)
	for i := 0; i < n; i++ {
		idCalls = append(idCalls, execution.NewCall(sts, stakedSonicABI, "userWithdraws", account, big.NewInt(int64(i))))
	}
	idResults, err := execution.Aggregate(ctx, p, b.cfg.Multicall, idCalls)
	if err != nil {
		return nil, nil, nil, err
	}

	reqCalls := make([]execution.ViewCall, 0, n+1)
	ids := make([]*big.Int, 0, n)
	for _, r := range idResults {
		wid := r.Big(0)
		if wid == nil {
			return nil, nil, nil, fmt.Errorf("missing withdraw id")
		}
		ids = append(ids, wid)
		reqCalls = append(reqCalls, execution.NewCall(sts, stakedSonicABI, "allWithdrawRequests", wid))
	}
	reqCalls = append(reqCalls, execution.NewCall(sts, stakedSonicABI, "withdrawDelay"))
	results, now, err := execution.AggregateWithTimestamp(ctx, p, b.cfg.Multicall, reqCalls)
	if err != nil {
		return nil, nil, nil, err
	}
	delay := results[len(results)-1].Big(0)

	open := make([]withdrawRequest, 0, n)
	for i, wid := range ids {
		request, err := decodeWithdrawRequest(wid, results[i].Values)
		if err != nil {
			return nil, nil, nil, err
		}
		if !request.IsWithdrawn {
			open = append(open, request)
		}
	}
	return open, delay, now, nil
}

func (b *beets) getOpenWithdrawRequests(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getOpenWithdrawRequests", opts)
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
	_, sts := b.deployment(req.Chain.EVMChainID)
	open, delay, now, err := b.openWithdrawRequests(ctx, provider, sts, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch withdraw requests", err))
	}

	inv.Enter(execution.StageFormatting)
	if len(open) == 0 {
		return inv.Done("No open withdraw requests")
	}
	lines := make([]string, 0, len(open)+1)
	lines = append(lines, fmt.Sprintf("Found %s:", execution.Pluralize(big.NewInt(int64(len(open))), "open withdraw request", "open withdraw requests")))
	for _, w := range open {
		status := "withdrawable now"
		if unlock := w.unlocksAt(delay); unlock.Cmp(now) > 0 {
			status = "unlocks at " + formatTimestamp(unlock)
		}
		lines = append(lines, fmt.Sprintf("- #%s: %s S from validator %s, %s", w.ID, id.FormatUnitsPrecision(w.AssetAmount, 18, 6), w.ValidatorID, status))
	}
	return inv.Done(strings.Join(lines, "\n"))
}
