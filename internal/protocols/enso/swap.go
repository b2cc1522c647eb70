package enso

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

// maxDecimals bounds the amount pre-check for tokens whose decimals are read on chain.
const maxDecimals = 36

type swapRequest struct {
	validate.Request
	in        id.Asset
	out       id.Asset
	rawAmount string
	amount    *big.Int
	slippage  int64
}

func (r swapRequest) formatIn(v *big.Int) string {
	return fmt.Sprintf("%s %s", id.FormatUnitsPrecision(v, r.in.Decimals, 6), r.in.Symbol)
}

func (r swapRequest) formatOut(v *big.Int) string {
	return fmt.Sprintf("%s %s", id.FormatUnitsPrecision(v, r.out.Decimals, 6), r.out.Symbol)
}

func (r swapRequest) query() routeQuery {
	return routeQuery{
		chainID:     r.Chain.EVMChainID,
		from:        r.Account,
		tokenIn:     r.in.Address,
		tokenOut:    r.out.Address,
		amountIn:    r.amount,
		slippageBps: r.slippage,
	}
}

func (e *enso) validateSwap(props adapter.Props) (swapRequest, error) {
	req, err := validate.Common(props.String("chainName"), props.String("account"), e.cfg.Chains)
	if err != nil {
		return swapRequest{}, err
	}
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return swapRequest{}, clierr.New(clierr.CodeAuth, "Enso API key is not configured")
	}
	in, err := id.ParseAsset(props.String("tokenIn"), req.Chain)
	if err != nil {
		return swapRequest{}, err
	}
	out, err := id.ParseAsset(props.String("tokenOut"), req.Chain)
	if err != nil {
		return swapRequest{}, err
	}
	if strings.EqualFold(in.Address, out.Address) {
		return swapRequest{}, clierr.New(clierr.CodeUsage, "tokenIn and tokenOut must be different")
	}
	decimals := maxDecimals
	if in.HasDecimals() {
		decimals = in.Decimals
	}
	amount, err := validate.Amount(props.String("amount"), decimals)
	if err != nil {
		return swapRequest{}, err
	}
	slippage := int64(defaultSlippageBps)
	if props.Has("slippageBps") {
		n, err := validate.NonNegativeInt("slippageBps", props.String("slippageBps"))
		if err != nil {
			return swapRequest{}, err
		}
		if n.Cmp(big.NewInt(maxSlippageBps)) > 0 {
			return swapRequest{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("slippageBps must be at most %d", maxSlippageBps))
		}
		slippage = n.Int64()
	}
	return swapRequest{Request: req, in: in, out: out, rawAmount: props.String("amount"), amount: amount, slippage: slippage}, nil
}

// describeTokens fills decimals and symbols of address-only assets with one multicall.
func (e *enso) describeTokens(ctx context.Context, p adapter.Provider, req *swapRequest) error {
	inPending := !req.in.HasDecimals()
	var pending []*id.Asset
	var calls []execution.ViewCall
	for _, a := range []*id.Asset{&req.in, &req.out} {
		if a.HasDecimals() {
			continue
		}
		token := common.HexToAddress(a.Address)
		symbol := execution.NewCall(token, execution.ERC20ABI, "symbol")
		symbol.AllowFailure = true
		calls = append(calls, execution.NewCall(token, execution.ERC20ABI, "decimals"), symbol)
		pending = append(pending, a)
	}
	if len(pending) == 0 {
		return nil
	}
	results, err := execution.Aggregate(ctx, p, e.cfg.Multicall, calls)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "failed to fetch token metadata", err)
	}
	for i, a := range pending {
		decimals, _ := results[2*i].Values[0].(uint8)
		a.Decimals = int(decimals)
		a.Symbol = common.HexToAddress(a.Address).Hex()
		if r := results[2*i+1]; r.Success {
			if s, ok := r.Values[0].(string); ok && s != "" {
				a.Symbol = s
			}
		}
	}
	if inPending {
		amount, err := validate.Amount(req.rawAmount, req.in.Decimals)
		if err != nil {
			return err
		}
		req.amount = amount
	}
	return nil
}

func (e *enso) balance(ctx context.Context, p adapter.Provider, a id.Asset, owner common.Address) (*big.Int, error) {
	if a.Native {
		return execution.NativeBalance(ctx, p, owner)
	}
	return execution.BalanceOf(ctx, p, common.HexToAddress(a.Address), owner)
}

func describeRoute(q quoteResponse) string {
	var parts []string
	if protocols := q.protocols(); len(protocols) > 0 {
		parts = append(parts, "via "+strings.Join(protocols, ", "))
	}
	if q.PriceImpact != nil {
		parts = append(parts, "price impact "+strconv.FormatFloat(*q.PriceImpact/100, 'f', 2, 64)+"%")
	}
	if q.Gas != "" {
		parts = append(parts, "estimated gas "+q.Gas)
	}
	return strings.Join(parts, ", ")
}

func (e *enso) getRouteQuote(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getRouteQuote", opts)
	inv.Enter(execution.StageValidating)
	req, err := e.validateSwap(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	if err := e.describeTokens(ctx, provider, &req); err != nil {
		return inv.Fail(err)
	}
	q, err := e.quote(ctx, req.query())
	if err != nil {
		return inv.Fail(err)
	}
	out, err := q.amountOut()
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageFormatting)
	msg := fmt.Sprintf("Selling %s returns about %s", req.formatIn(req.amount), req.formatOut(out))
	if detail := describeRoute(q); detail != "" {
		msg += " (" + detail + ")"
	}
	return inv.Done(msg)
}

func (e *enso) swap(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "swap", opts)
	inv.Enter(execution.StageValidating)
	req, err := e.validateSwap(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	if err := e.describeTokens(ctx, provider, &req); err != nil {
		return inv.Fail(err)
	}
	balance, err := e.balance(ctx, provider, req.in, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch wallet balance", err))
	}
	if balance.Cmp(req.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance. Have %s, need %s", req.in.Symbol, req.formatIn(balance), req.formatIn(req.amount))))
	}
	route, data, value, err := e.route(ctx, req.query())
	if err != nil {
		return inv.Fail(err)
	}
	expected, err := route.amountOut()
	if err != nil {
		return inv.Fail(err)
	}
	if req.in.Native && value.Cmp(req.amount) != 0 {
		return inv.Fail(clierr.New(clierr.CodeUnavailable, "Enso route value does not match the swap amount"))
	}
	received, err := execution.TakeSnapshot(ctx, req.out.Symbol+" balance", func(ctx context.Context) (*big.Int, error) {
		return e.balance(ctx, provider, req.out, req.Account)
	})
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch output balance", err))
	}

	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if !req.in.Native {
		inv.Enter(execution.StageApproving)
		if _, err := plan.EnsureAllowance(ctx, provider, execution.Approval{
			Token:      common.HexToAddress(req.in.Address),
			Spender:    e.cfg.Router,
			Amount:     req.amount,
			ResetFirst: req.in.ResetAllowance,
		}); err != nil {
			return inv.Fail(err)
		}
	}

	inv.Enter(execution.StageBuilding)
	plan.Add(e.cfg.Router, data, value)
	inv.Notify(ctx, fmt.Sprintf("Swapping %s for about %s", req.formatIn(req.amount), req.formatOut(expected)))

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		delta, err := received.Delta(ctx)
		if err != nil {
			return "", err
		}
		if delta.Sign() <= 0 {
			return fmt.Sprintf("Swapped %s, expected about %s", req.formatIn(req.amount), req.formatOut(expected)), nil
		}
		return fmt.Sprintf("Successfully swapped %s for %s", req.formatIn(req.amount), req.formatOut(delta)), nil
	})
}
