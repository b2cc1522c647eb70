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
	"github.com/ggonzalez94/defi-adapters/internal/registry"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

var expScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type lendingRequest struct {
	validate.Request
	market  registry.BenqiMarket
	qiToken common.Address
	amount  *big.Int
}

func (r lendingRequest) format(v *big.Int) string {
	return fmt.Sprintf("%s %s", id.FormatUnitsPrecision(v, r.market.Decimals, 6), r.market.Name)
}

func (b *benqi) validateLending(props adapter.Props) (lendingRequest, error) {
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
	if err != nil {
		return lendingRequest{}, err
	}
	market, err := b.market(req.Chain.EVMChainID, props.String("marketName"))
	if err != nil {
		return lendingRequest{}, err
	}
	amount, err := validate.Amount(props.String("amount"), market.Decimals)
	if err != nil {
		return lendingRequest{}, err
	}
	return lendingRequest{Request: req, market: market, qiToken: common.HexToAddress(market.QiToken), amount: amount}, nil
}

// walletBalance is the spendable underlying balance for the market.
func walletBalance(ctx context.Context, p adapter.Provider, r lendingRequest) (*big.Int, error) {
	if r.market.Native {
		return execution.NativeBalance(ctx, p, r.Account)
	}
	return execution.BalanceOf(ctx, p, common.HexToAddress(r.market.Underlying), r.Account)
}

func (b *benqi) supply(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "supply", opts)
	inv.Enter(execution.StageValidating)
	req, err := b.validateLending(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	balance, err := walletBalance(ctx, provider, req)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch wallet balance", err))
	}
	if balance.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance. Have %s, need %s", req.market.Name, req.format(balance), req.format(req.amount))))
	}

	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if !req.market.Native {
		inv.Enter(execution.StageApproving)
		if _, err := plan.EnsureAllowance(ctx, provider, execution.Approval{
			Token:   common.HexToAddress(req.market.Underlying),
			Spender: req.qiToken,
			Amount:  req.amount,
		}); err != nil {
			return inv.Fail(err)
		}
	}

	inv.Enter(execution.StageBuilding)
	if req.market.Native {
		err = plan.Call(req.qiToken, nativeMarketABI, "mint", req.amount)
	} else {
		err = plan.Call(req.qiToken, marketABI, "mint", nil, req.amount)
	}
	if err != nil {
		return inv.Fail(err)
	}
	inv.Notify(ctx, fmt.Sprintf("Supplying %s to Benqi", req.format(req.amount)))

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully supplied %s to Benqi", req.format(req.amount)), nil
	})
}

func (b *benqi) redeem(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "redeem", opts)
	inv.Enter(execution.StageValidating)
	req, err := b.validateLending(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	results, err := execution.Aggregate(ctx, provider, b.cfg.Multicall, []execution.ViewCall{
		execution.NewCall(req.qiToken, marketABI, "balanceOf", req.Account),
		execution.NewCall(req.qiToken, marketABI, "exchangeRateStored"),
		execution.NewCall(req.qiToken, marketABI, "getCash"),
	})
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch market state", err))
	}
	supplied := underlyingOf(results[0].Big(0), results[1].Big(0))
	cash := results[2].Big(0)
	if supplied.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient supplied balance. Supplied %s, requested %s", req.format(supplied), req.format(req.amount))))
	}
	if cash == nil || cash.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient liquidity in the %s market", req.market.Name)))
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(req.qiToken, marketABI, "redeemUnderlying", nil, req.amount); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully redeemed %s from Benqi", req.format(req.amount)), nil
	})
}

func (b *benqi) borrow(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "borrow", opts)
	inv.Enter(execution.StageValidating)
	req, err := b.validateLending(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	results, err := execution.Aggregate(ctx, provider, b.cfg.Multicall, []execution.ViewCall{
		execution.NewCall(b.comptroller(req.Chain.EVMChainID), comptrollerABI, "getAccountLiquidity", req.Account),
		execution.NewCall(req.qiToken, marketABI, "getCash"),
	})
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch account liquidity", err))
	}
	errCode, liquidity, shortfall := results[0].Big(0), results[0].Big(1), results[0].Big(2)
	if errCode == nil || errCode.Sign() != 0 {
		return inv.Fail(clierr.New(clierr.CodeUnavailable, "failed to fetch account liquidity"))
	}
	if shortfall.Sign() > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Account has a shortfall of $%s and cannot borrow", id.FormatUnitsPrecision(shortfall, 18, 2))))
	}
	if liquidity.Sign() == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, "No borrowing capacity. Supply collateral and enter markets first"))
	}
	if cash := results[1].Big(0); cash == nil || cash.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient liquidity in the %s market", req.market.Name)))
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(req.qiToken, marketABI, "borrow", nil, req.amount); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully borrowed %s from Benqi", req.format(req.amount)), nil
	})
}

func (b *benqi) repay(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "repay", opts)
	inv.Enter(execution.StageValidating)
	req, err := b.validateLending(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	debt, err := execution.ReadBig(ctx, provider, execution.NewCall(req.qiToken, marketABI, "borrowBalanceStored", req.Account))
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch borrow balance", err))
	}
	if debt.Sign() == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("No outstanding %s borrow to repay", req.market.Name)))
	}
	if req.amount.Cmp(debt) > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Repay amount exceeds outstanding borrow of %s", req.format(debt))))
	}
	balance, err := walletBalance(ctx, provider, req)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch wallet balance", err))
	}
	if balance.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance. Have %s, need %s", req.market.Name, req.format(balance), req.format(req.amount))))
	}

	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if !req.market.Native {
		inv.Enter(execution.StageApproving)
		if _, err := plan.EnsureAllowance(ctx, provider, execution.Approval{
			Token:   common.HexToAddress(req.market.Underlying),
			Spender: req.qiToken,
			Amount:  req.amount,
		}); err != nil {
			return inv.Fail(err)
		}
	}

	inv.Enter(execution.StageBuilding)
	if req.market.Native {
		err = plan.Call(req.qiToken, nativeMarketABI, "repayBorrow", req.amount)
	} else {
		err = plan.Call(req.qiToken, marketABI, "repayBorrow", nil, req.amount)
	}
	if err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully repaid %s to Benqi", req.format(req.amount)), nil
	})
}

func (b *benqi) enterMarkets(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "enterMarkets", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
	if err != nil {
		return inv.Fail(err)
	}
	names := props.Strings("marketNames")
	if len(names) == 0 {
		return inv.Fail(clierr.New(clierr.CodeUsage, "At least one market is required"))
	}
	var markets []registry.BenqiMarket
	seen := map[string]bool{}
	for _, name := range names {
		m, err := b.market(req.Chain.EVMChainID, name)
		if err != nil {
			return inv.Fail(err)
		}
		if !seen[m.QiToken] {
			seen[m.QiToken] = true
			markets = append(markets, m)
		}
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	comptroller := b.comptroller(req.Chain.EVMChainID)
	calls := make([]execution.ViewCall, 0, len(markets))
	for _, m := range markets {
		calls = append(calls, execution.NewCall(comptroller, comptrollerABI, "checkMembership", req.Account, common.HexToAddress(m.QiToken)))
	}
	results, err := execution.Aggregate(ctx, provider, b.cfg.Multicall, calls)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch market membership", err))
	}
	var pending []common.Address
	var pendingNames []string
	for i, r := range results {
		if member, _ := r.Values[0].(bool); member {
			continue
		}
		pending = append(pending, common.HexToAddress(markets[i].QiToken))
		pendingNames = append(pendingNames, markets[i].Name)
	}
	if len(pending) == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, "All selected markets are already entered"))
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(comptroller, comptrollerABI, "enterMarkets", nil, pending); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully entered markets: %s", strings.Join(pendingNames, ", ")), nil
	})
}

// underlyingOf converts a qiToken balance into underlying using the stored exchange rate.
func underlyingOf(qiBalance, exchangeRate *big.Int) *big.Int {
	if qiBalance == nil || exchangeRate == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(qiBalance, exchangeRate)
	return out.Quo(out, expScale)
}
