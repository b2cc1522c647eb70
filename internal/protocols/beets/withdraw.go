package beets

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

// withdrawRequest mirrors the allWithdrawRequests outputs.
type withdrawRequest struct {
	ID               *big.Int
	ValidatorID      *big.Int
	AssetAmount      *big.Int
	IsWithdrawn      bool
	RequestTimestamp *big.Int
	User             common.Address
}

func decodeWithdrawRequest(wid *big.Int, values []any) (withdrawRequest, error) {
	if len(values) != 6 {
		return withdrawRequest{}, fmt.Errorf("unexpected withdraw request shape")
	}
	vid, err1 := execution.BigAt(values, 1)
	amount, err2 := execution.BigAt(values, 2)
	ts, err3 := execution.BigAt(values, 4)
	withdrawn, ok1 := values[3].(bool)
	user, ok2 := values[5].(common.Address)
	if err1 != nil || err2 != nil || err3 != nil || !ok1 || !ok2 {
		return withdrawRequest{}, fmt.Errorf("unexpected withdraw request shape")
	}
	return withdrawRequest{ID: wid, ValidatorID: vid, AssetAmount: amount, IsWithdrawn: withdrawn, RequestTimestamp: ts, User: user}, nil
}

// unlocksAt is the earliest block timestamp at which the request can be withdrawn.
func (w withdrawRequest) unlocksAt(delay *big.Int) *big.Int {
	return new(big.Int).Add(w.RequestTimestamp, delay)
}

func (b *beets) withdraw(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "withdraw", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
	if err != nil {
		return inv.Fail(err)
	}
	wid, err := validate.NonNegativeInt("withdrawId", props.String("withdrawId"))
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	_, sts := b.deployment(req.Chain.EVMChainID)
	results, now, err := execution.AggregateWithTimestamp(ctx, provider, b.cfg.Multicall, []execution.ViewCall{
		execution.NewCall(sts, stakedSonicABI, "allWithdrawRequests", wid),
		execution.NewCall(sts, stakedSonicABI, "withdrawDelay"),
	})
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch withdraw request", err))
	}
	request, err := decodeWithdrawRequest(wid, results[0].Values)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch withdraw request", err))
	}
	delay := results[1].Big(0)
	if request.User != req.Account {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Withdraw request %s does not belong to %s", wid, req.Account.Hex())))
	}
	if request.IsWithdrawn {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Withdraw request %s has already been withdrawn", wid)))
	}
	if unlock := request.unlocksAt(delay); unlock.Cmp(now) > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Withdraw request %s is not yet unlockable. It unlocks at %s", wid, formatTimestamp(unlock))))
	}

	snap, err := execution.TakeSnapshot(ctx, "S balance", func(ctx context.Context) (*big.Int, error) {
		return execution.NativeBalance(ctx, provider, req.Account)
	})
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(sts, stakedSonicABI, "withdraw", nil, wid, false); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		received, err := snap.Delta(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Successfully withdrew %s S from withdraw request %s", id.FormatUnitsPrecision(received, 18, 6), wid), nil
	})
}

func formatTimestamp(ts *big.Int) string {
	return time.Unix(ts.Int64(), 0).UTC().Format(time.RFC3339)
}
