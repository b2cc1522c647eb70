package morpho

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

// maxDecimals bounds the amount pre-check done before the market, and so the loan token
// decimals, is known.
const maxDecimals = 36

// Morpho Blue share accounting offsets.
var (
	virtualShares = big.NewInt(1_000_000)
	virtualAssets = big.NewInt(1)
)

type lendRequest struct {
	validate.Request
	marketID  string
	rawAmount string
}

func (m *morpho) validateLend(props adapter.Props) (lendRequest, error) {
	req, err := validate.Common(props.String("chainName"), props.String("account"), m.chains())
	if err != nil {
		return lendRequest{}, err
	}
	marketID, err := normalizeMarketID(props.String("marketId"))
	if err != nil {
		return lendRequest{}, err
	}
	if _, err := validate.Amount(props.String("amount"), maxDecimals); err != nil {
		return lendRequest{}, err
	}
	return lendRequest{Request: req, marketID: marketID, rawAmount: props.String("amount")}, nil
}

// lendContext is a validated request joined with the market it targets.
type lendContext struct {
	lendRequest
	provider adapter.Provider
	morpho   common.Address
	info     marketInfo
	params   marketParams
	amount   *big.Int
}

func (c *lendContext) format(v *big.Int) string {
	return fmt.Sprintf("%s %s", id.FormatUnitsPrecision(v, c.info.LoanAsset.Decimals, 6), strings.ToUpper(c.info.LoanAsset.Symbol))
}

func (m *morpho) resolve(ctx context.Context, req lendRequest, opts adapter.FunctionOptions) (*lendContext, error) {
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return nil, err
	}
	info, err := m.fetchMarket(ctx, req.Chain.EVMChainID, req.marketID)
	if err != nil {
		return nil, err
	}
	morphoAddr := common.HexToAddress(m.cfg.Deployments[req.Chain.EVMChainID])
	if !strings.EqualFold(info.Morpho.Address, morphoAddr.Hex()) {
		return nil, clierr.New(clierr.CodePrecondition, fmt.Sprintf("Market %s is not a Morpho Blue market on %s", req.marketID, req.Chain.Slug))
	}
	params, err := info.params()
	if err != nil {
		return nil, err
	}
	amount, err := validate.Amount(req.rawAmount, info.LoanAsset.Decimals)
	if err != nil {
		return nil, err
	}
	return &lendContext{lendRequest: req, provider: provider, morpho: morphoAddr, info: info, params: params, amount: amount}, nil
}

// positionState is the account position in loan asset units, next to market liquidity.
type positionState struct {
	supplied   *big.Int
	borrowed   *big.Int
	collateral *big.Int
	liquidity  *big.Int
	balance    *big.Int
}

func toAssetsDown(shares, totalAssets, totalShares *big.Int) *big.Int {
	num := new(big.Int).Mul(shares, new(big.Int).Add(totalAssets, virtualAssets))
	return num.Quo(num, new(big.Int).Add(totalShares, virtualShares))
}

func toAssetsUp(shares, totalAssets, totalShares *big.Int) *big.Int {
	den := new(big.Int).Add(totalShares, virtualShares)
	num := new(big.Int).Mul(shares, new(big.Int).Add(totalAssets, virtualAssets))
	num.Add(num, den).Sub(num, big.NewInt(1))
	return num.Quo(num, den)
}

// readPosition batches position, market totals and optionally the wallet balance of the
// loan token into one multicall.
func (m *morpho) readPosition(ctx context.Context, c *lendContext, withBalance bool) (positionState, error) {
	key := common.HexToHash(c.marketID)
	calls := []execution.ViewCall{
		execution.NewCall(c.morpho, morphoBlueABI, "position", key, c.Account),
		execution.NewCall(c.morpho, morphoBlueABI, "market", key),
	}
	if withBalance {
		calls = append(calls, execution.NewCall(c.params.LoanToken, execution.ERC20ABI, "balanceOf", c.Account))
	}
	results, err := execution.Aggregate(ctx, c.provider, m.cfg.Multicall, calls)
	if err != nil {
		return positionState{}, clierr.Wrap(clierr.CodeUnavailable, "failed to fetch Morpho position", err)
	}
	pos, mkt := results[0], results[1]
	totalSupply, totalSupplyShares := mkt.Big(0), mkt.Big(1)
	totalBorrow, totalBorrowShares := mkt.Big(2), mkt.Big(3)
	state := positionState{
		supplied:   toAssetsDown(pos.Big(0), totalSupply, totalSupplyShares),
		borrowed:   toAssetsUp(pos.Big(1), totalBorrow, totalBorrowShares),
		collateral: pos.Big(2),
		liquidity:  new(big.Int).Sub(totalSupply, totalBorrow),
	}
	if state.liquidity.Sign() < 0 {
		state.liquidity.SetInt64(0)
	}
	if withBalance {
		state.balance = results[2].Big(0)
	}
	return state, nil
}

func (c *lendContext) checkBalance(state positionState) error {
	if state.balance.Cmp(c.amount) < 0 {
		return clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance. Have %s, need %s", strings.ToUpper(c.info.LoanAsset.Symbol), c.format(state.balance), c.format(c.amount)))
	}
	return nil
}

func (c *lendContext) checkLiquidity(state positionState) error {
	if state.liquidity.Cmp(c.amount) < 0 {
		return clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient liquidity in market %s. Available %s", c.info.label(), c.format(state.liquidity)))
	}
	return nil
}

func (c *lendContext) approval() execution.Approval {
	token, _ := id.LookupByAddress(c.Chain.EVMChainID, c.params.LoanToken.Hex())
	return execution.Approval{
		Token:      c.params.LoanToken,
		Spender:    c.morpho,
		Amount:     c.amount,
		ResetFirst: token.ResetAllowance,
	}
}

func (m *morpho) supplyToMarket(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "supplyToMarket", opts)
	inv.Enter(execution.StageValidating)
	req, err := m.validateLend(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	c, err := m.resolve(ctx, req, opts)
	if err != nil {
		return inv.Fail(err)
	}
	state, err := m.readPosition(ctx, c, true)
	if err != nil {
		return inv.Fail(err)
	}
	if err := c.checkBalance(state); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageApproving)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if _, err := plan.EnsureAllowance(ctx, c.provider, c.approval()); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	if err := plan.Call(c.morpho, morphoBlueABI, "supply", nil, c.params, c.amount, big.NewInt(0), req.Account, []byte{}); err != nil {
		return inv.Fail(err)
	}
	inv.Notify(ctx, fmt.Sprintf("Supplying %s to Morpho market %s", c.format(c.amount), c.info.label()))

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully supplied %s to Morpho market %s", c.format(c.amount), c.info.label()), nil
	})
}

func (m *morpho) withdrawFromMarket(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "withdrawFromMarket", opts)
	inv.Enter(execution.StageValidating)
	req, err := m.validateLend(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	c, err := m.resolve(ctx, req, opts)
	if err != nil {
		return inv.Fail(err)
	}
	state, err := m.readPosition(ctx, c, false)
	if err != nil {
		return inv.Fail(err)
	}
	if state.supplied.Cmp(c.amount) < 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient supplied balance. Supplied %s, requested %s", c.format(state.supplied), c.format(c.amount))))
	}
	if err := c.checkLiquidity(state); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(c.morpho, morphoBlueABI, "withdraw", nil, c.params, c.amount, big.NewInt(0), req.Account, req.Account); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully withdrew %s from Morpho market %s", c.format(c.amount), c.info.label()), nil
	})
}

func (m *morpho) borrowFromMarket(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "borrowFromMarket", opts)
	inv.Enter(execution.StageValidating)
	req, err := m.validateLend(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	c, err := m.resolve(ctx, req, opts)
	if err != nil {
		return inv.Fail(err)
	}
	state, err := m.readPosition(ctx, c, false)
	if err != nil {
		return inv.Fail(err)
	}
	if state.collateral.Sign() == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("No collateral supplied to market %s. Supply collateral first", c.info.label())))
	}
	if err := c.checkLiquidity(state); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if err := plan.Call(c.morpho, morphoBlueABI, "borrow", nil, c.params, c.amount, big.NewInt(0), req.Account, req.Account); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully borrowed %s from Morpho market %s", c.format(c.amount), c.info.label()), nil
	})
}

func (m *morpho) repayToMarket(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "repayToMarket", opts)
	inv.Enter(execution.StageValidating)
	req, err := m.validateLend(props)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	c, err := m.resolve(ctx, req, opts)
	if err != nil {
		return inv.Fail(err)
	}
	state, err := m.readPosition(ctx, c, true)
	if err != nil {
		return inv.Fail(err)
	}
	if state.borrowed.Sign() == 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("No outstanding %s debt in market %s", strings.ToUpper(c.info.LoanAsset.Symbol), c.info.label())))
	}
	if c.amount.Cmp(state.borrowed) > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Repay amount exceeds outstanding debt of %s", c.format(state.borrowed))))
	}
	if err := c.checkBalance(state); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageApproving)
	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if _, err := plan.EnsureAllowance(ctx, c.provider, c.approval()); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageBuilding)
	if err := plan.Call(c.morpho, morphoBlueABI, "repay", nil, c.params, c.amount, big.NewInt(0), req.Account, []byte{}); err != nil {
		return inv.Fail(err)
	}

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully repaid %s to Morpho market %s", c.format(c.amount), c.info.label()), nil
	})
}
