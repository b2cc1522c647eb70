package aave

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

type lendRequest struct {
	validate.Request
	asset  id.Asset
	token  common.Address
	amount *big.Int
}

func (r lendRequest) format(v *big.Int) string {
	return fmt.Sprintf("%s %s", id.FormatUnitsPrecision(v, r.asset.Decimals, 6), r.asset.Symbol)
}

func (a *aave) validateLend(props adapter.Props, allowNative bool) (lendRequest, error) {
	req, err := validate.Common(props.String("chainName"), props.String("account"), a.chains())
	if err != nil {
		return lendRequest{}, err
	}
	asset, err := a.asset(req.Chain, props.String("tokenSymbol"))
	if err != nil {
		return lendRequest{}, err
	}
	if asset.Native && !allowNative {
		return lendRequest{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Native %s is only supported for supply, use the wrapped token", asset.Symbol))
	}
	amount, err := validate.Amount(props.String("amount"), asset.Decimals)
	if err != nil {
		return lendRequest{}, err
	}
	token := common.HexToAddress(asset.Address)
	if asset.Native {
		token = a.wrappedNative(req.Chain.EVMChainID)
	}
	return lendRequest{Request: req, asset: asset, token: token, amount: amount}, nil
}

// userReserve is the subset of getUserReserveData the lending checks need.
type userReserve struct {
	supplied     *big.Int
	variableDebt *big.Int
}

func readUserReserve(ctx context.Context, p adapter.Provider, dataProvider, token, user common.Address) (userReserve, error) {
	values, err := execution.Read(ctx, p, execution.NewCall(dataProvider, dataProviderABI, "getUserReserveData", token, user))
	if err != nil {
		return userReserve{}, err
	}
	supplied, err := execution.BigAt(values, 0)
	if err != nil {
		return userReserve{}, err
	}
	debt, err := execution.BigAt(values, 2)
	if err != nil {
		return userReserve{}, err
	}
	return userReserve{supplied: supplied, variableDebt: debt}, nil
}

func (a *aave) supply(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "supply", opts)
	inv.Enter(execution.StageValidating)
	req, err := a.validateLend(props, true)
	if err != nil {
		return inv.Fail(err)
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
	var balance *big.Int
	if req.asset.Native {
		balance, err = execution.NativeBalance(ctx, provider, req.Account)
	} else {
		balance, err = execution.BalanceOf(ctx, provider, req.token, req.Account)
	}
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch wallet balance", err))
	}
	if balance.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance. Have %s, need %s", req.asset.Symbol, req.format(balance), req.format(req.amount))))
	}

	inv.Enter(execution.StageApproving)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if _, err := plan.EnsureAllowance(ctx, provider, execution.Approval{
		Token:      req.token,
		Spender:    m.pool,
		Amount:     req.amount,
		ResetFirst: req.asset.ResetAllowance,
	}); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	if err := plan.Call(m.pool, poolABI, "supply", nil, req.token, req.amount, req.Account, uint16(0)); err != nil {
		return inv.Fail(err)
	}
	if req.asset.Native {
		if err := plan.Wrap(req.token, req.amount); err != nil {
			return inv.Fail(err)
		}
	}
	inv.Notify(ctx, fmt.Sprintf("Supplying %s to Aave", req.format(req.amount)))

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully supplied %s to Aave", req.format(req.amount)), nil
	})
}

func (a *aave) withdraw(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "withdraw", opts)
	inv.Enter(execution.StageValidating)
	req, err := a.validateLend(props, false)
	if err != nil {
		return inv.Fail(err)
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
	reserve, err := readUserReserve(ctx, provider, m.dataProvider, req.token, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch supplied balance", err))
	}
	if reserve.supplied.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient supplied balance. Supplied %s, requested %s", req.format(reserve.supplied), req.format(req.amount))))
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(m.pool, poolABI, "withdraw", nil, req.token, req.amount, req.Account); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully withdrew %s from Aave", req.format(req.amount)), nil
	})
}

func (a *aave) borrow(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "borrow", opts)
	inv.Enter(execution.StageValidating)
	req, err := a.validateLend(props, false)
	if err != nil {
		return inv.Fail(err)
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
	data, err := readAccountData(ctx, provider, m.pool, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch account data", err))
	}
	if data.availableBorrows.Sign() == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, "No borrowing capacity. Supply collateral first"))
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(m.pool, poolABI, "borrow", nil, req.token, req.amount, big.NewInt(variableRate), uint16(0), req.Account); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully borrowed %s from Aave", req.format(req.amount)), nil
	})
}

func (a *aave) repay(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "repay", opts)
	inv.Enter(execution.StageValidating)
	req, err := a.validateLend(props, false)
	if err != nil {
		return inv.Fail(err)
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
	reserve, err := readUserReserve(ctx, provider, m.dataProvider, req.token, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch borrow balance", err))
	}
	if reserve.variableDebt.Sign() == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("No outstanding %s debt to repay", req.asset.Symbol)))
	}
	if req.amount.Cmp(reserve.variableDebt) > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Repay amount exceeds outstanding debt of %s", req.format(reserve.variableDebt))))
	}
	balance, err := execution.BalanceOf(ctx, provider, req.token, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch wallet balance", err))
	}
	if balance.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance. Have %s, need %s", req.asset.Symbol, req.format(balance), req.format(req.amount))))
	}

	inv.Enter(execution.StageApproving)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if _, err := plan.EnsureAllowance(ctx, provider, execution.Approval{
		Token:      req.token,
		Spender:    m.pool,
		Amount:     req.amount,
		ResetFirst: req.asset.ResetAllowance,
	}); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	if err := plan.Call(m.pool, poolABI, "repay", nil, req.token, req.amount, big.NewInt(variableRate), req.Account); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully repaid %s to Aave", req.format(req.amount)), nil
	})
}
