package betswirl

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

const (
	// Multipliers are expressed in basis points.
	basisPoints      = 10_000
	coinTossMultiple = 2 * basisPoints
	// defaultMaxHouseEdge caps the house edge accepted for a bet, in basis points.
	defaultMaxHouseEdge = 350
	maxBetCount         = 100
	maxDecimals         = 36
)

// betData mirrors the BetData tuple taken by every BetSwirl game.
type betData struct {
	Token        common.Address `abi:"token"`
	BetAmount    *big.Int       `abi:"betAmount"`
	BetCount     uint16         `abi:"betCount"`
	StopGain     *big.Int       `abi:"stopGain"`
	StopLoss     *big.Int       `abi:"stopLoss"`
	MaxHouseEdge uint16         `abi:"maxHouseEdge"`
}

type betRequest struct {
	validate.Request
	asset     id.Asset
	rawAmount string
	amount    *big.Int
	count     uint16
}

// token is the address BetSwirl uses for the bet token; native bets use the zero address.
func (r betRequest) token() common.Address {
	if r.asset.Native {
		return common.Address{}
	}
	return common.HexToAddress(r.asset.Address)
}

func (r betRequest) total() *big.Int {
	return new(big.Int).Mul(r.amount, big.NewInt(int64(r.count)))
}

func (r betRequest) format(v *big.Int) string {
	return fmt.Sprintf("%s %s", id.FormatUnitsPrecision(v, r.asset.Decimals, 6), r.asset.Symbol)
}

func (r betRequest) formatNative(v *big.Int) string {
	return fmt.Sprintf("%s %s", id.FormatUnitsPrecision(v, 18, 6), r.Chain.NativeSymbol)
}

func (b *betswirl) validateBet(props adapter.Props) (betRequest, error) {
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
	if err != nil {
		return betRequest{}, err
	}
	tokenInput := props.String("token")
	if tokenInput == "" {
		tokenInput = req.Chain.NativeSymbol
	}
	asset, err := id.ParseAsset(tokenInput, req.Chain)
	if err != nil {
		return betRequest{}, err
	}
	decimals := maxDecimals
	if asset.HasDecimals() {
		decimals = asset.Decimals
	}
	amount, err := validate.Amount(props.String("betAmount"), decimals)
	if err != nil {
		return betRequest{}, err
	}
	count := uint16(1)
	if props.Has("betCount") {
		n, ok := props.Int("betCount")
		if !ok || n < 1 || n > maxBetCount {
			return betRequest{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("betCount must be between 1 and %d", maxBetCount))
		}
		count = uint16(n)
	}
	return betRequest{Request: req, asset: asset, rawAmount: props.String("betAmount"), amount: amount, count: count}, nil
}

// game describes one wager: which contract, how it pays and what the player picked.
type game struct {
	name       string
	contract   common.Address
	abi        *abi.ABI
	multiplier *big.Int
	choice     any
	pick       string
}

func (b *betswirl) coinToss(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "coinToss", opts)
	inv.Enter(execution.StageValidating)
	req, err := b.validateBet(props)
	if err != nil {
		return inv.Fail(err)
	}
	var tails bool
	switch face := strings.ToLower(props.String("face")); face {
	case "heads":
	case "tails":
		tails = true
	default:
		return inv.Fail(clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid face: %s. Use heads or tails", props.String("face"))))
	}
	g := game{
		name:       "coin toss",
		contract:   common.HexToAddress(b.cfg.Deployments[req.Chain.EVMChainID].CoinToss),
		abi:        coinTossABI,
		multiplier: big.NewInt(coinTossMultiple),
		choice:     tails,
		pick:       "on " + strings.ToLower(props.String("face")),
	}
	return b.placeBet(ctx, inv, opts, req, g)
}

func (b *betswirl) rollDice(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "rollDice", opts)
	inv.Enter(execution.StageValidating)
	req, err := b.validateBet(props)
	if err != nil {
		return inv.Fail(err)
	}
	number, ok := props.Int("number")
	if !ok || number < 1 || number > 99 {
		return inv.Fail(clierr.New(clierr.CodeUsage, "number must be between 1 and 99"))
	}
	g := game{
		name:       "dice",
		contract:   common.HexToAddress(b.cfg.Deployments[req.Chain.EVMChainID].Dice),
		abi:        diceABI,
		multiplier: big.NewInt(100 * basisPoints / number),
		choice:     uint8(number),
		pick:       fmt.Sprintf("under %d", number),
	}
	return b.placeBet(ctx, inv, opts, req, g)
}

// placeBet runs the read, approval and submission stages shared by every game.
func (b *betswirl) placeBet(ctx context.Context, inv *execution.Invocation, opts adapter.FunctionOptions, req betRequest, g game) adapter.Result {
	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	if !req.asset.HasDecimals() {
		decimals, err := execution.Decimals(ctx, provider, req.token())
		if err != nil {
			return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch token decimals", err))
		}
		req.asset.Decimals = decimals
		req.asset.Symbol = req.token().Hex()
		if req.amount, err = validate.Amount(req.rawAmount, decimals); err != nil {
			return inv.Fail(err)
		}
	}

	bank := common.HexToAddress(b.cfg.Deployments[req.Chain.EVMChainID].Bank)
	calls := []execution.ViewCall{
		execution.NewCall(g.contract, g.abi, "getChainlinkVRFCost", req.token(), req.count),
		execution.NewCall(bank, bankABI, "isAllowedToken", req.token()),
		execution.NewCall(bank, bankABI, "getMaxBetAmount", req.token(), g.multiplier),
	}
	if !req.asset.Native {
		calls = append(calls, execution.NewCall(req.token(), execution.ERC20ABI, "balanceOf", req.Account))
	}
	results, err := execution.Aggregate(ctx, provider, b.cfg.Multicall, calls)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch bet requirements", err))
	}
	vrfFee := results[0].Big(0)
	allowed, _ := results[1].Values[0].(bool)
	maxBet := results[2].Big(0)
	if !allowed {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Token %s is not accepted by the BetSwirl bank on %s", req.asset.Symbol, req.Chain.Slug)))
	}
	if req.amount.Cmp(maxBet) > 0 {
		return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Bet amount exceeds the maximum of %s", req.format(maxBet))))
	}
	native, err := execution.NativeBalance(ctx, provider, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch wallet balance", err))
	}
	total := req.total()
	value := new(big.Int).Set(vrfFee)
	if req.asset.Native {
		value.Add(value, total)
		if native.Cmp(value) < 0 {
			return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance. Have %s, need %s including the VRF fee of %s",
				req.Chain.NativeSymbol, req.formatNative(native), req.formatNative(value), req.formatNative(vrfFee))))
		}
	} else {
		if balance := results[3].Big(0); balance.Cmp(total) < 0 {
			return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance. Have %s, need %s", req.asset.Symbol, req.format(balance), req.format(total))))
		}
		if native.Cmp(vrfFee) < 0 {
			return inv.Fail(clierr.New(clierr.CodePrecondition, fmt.Sprintf("Insufficient %s balance to pay the VRF fee of %s", req.Chain.NativeSymbol, req.formatNative(vrfFee))))
		}
	}

	plan := execution.NewPlan(req.Chain.EVMChainID, req.Account)
	if !req.asset.Native {
		// The game pulls the wager into the bank.
		inv.Enter(execution.StageApproving)
		if _, err := plan.EnsureAllowance(ctx, provider, execution.Approval{
			Token:      req.token(),
			Spender:    g.contract,
			Amount:     total,
			ResetFirst: req.asset.ResetAllowance,
		}); err != nil {
			return inv.Fail(err)
		}
	}

	inv.Enter(execution.StageBuilding)
	data := betData{
		Token:        req.token(),
		BetAmount:    req.amount,
		BetCount:     req.count,
		StopGain:     big.NewInt(0),
		StopLoss:     big.NewInt(0),
		MaxHouseEdge: defaultMaxHouseEdge,
	}
	if err := plan.Call(g.contract, g.abi, "wager", value, g.choice, req.Account, common.Address{}, data); err != nil {
		return inv.Fail(err)
	}

	bets := fmt.Sprintf("a %s bet of %s", g.name, req.format(req.amount))
	if req.count > 1 {
		bets = fmt.Sprintf("%d %s bets of %s each", req.count, g.name, req.format(req.amount))
	}
	inv.Notify(ctx, fmt.Sprintf("Placing %s %s", bets, g.pick))

	return execution.Finish(ctx, inv, opts, plan, func(adapter.SubmissionResult) (string, error) {
		return fmt.Sprintf("Successfully placed %s %s (VRF fee %s). The result is drawn by Chainlink VRF, check it with getBets",
			bets, g.pick, req.formatNative(vrfFee)), nil
	})
}
