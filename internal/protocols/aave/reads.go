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

// Aave reports account values in the market base currency (USD, 8 decimals).
const baseDecimals = 8

type accountData struct {
	collateral           *big.Int
	debt                 *big.Int
	availableBorrows     *big.Int
	liquidationThreshold *big.Int
	ltv                  *big.Int
	healthFactor         *big.Int
}

func readAccountData(ctx context.Context, p adapter.Provider, pool, user common.Address) (accountData, error) {
	values, err := execution.Read(ctx, p, execution.NewCall(pool, poolABI, "getUserAccountData", user))
	if err != nil {
		return accountData{}, err
	}
	out := make([]*big.Int, 6)
	for i := range out {
		if out[i], err = execution.BigAt(values, i); err != nil {
			return accountData{}, err
		}
	}
	return accountData{
		collateral:           out[0],
		debt:                 out[1],
		availableBorrows:     out[2],
		liquidationThreshold: out[3],
		ltv:                  out[4],
		healthFactor:         out[5],
	}, nil
}

func formatUSD(v *big.Int) string {
	return "$" + id.FormatUnitsPrecision(v, baseDecimals, 2)
}

// formatBps renders a basis point value such as 8250 as "82.5%".
func formatBps(v *big.Int) string {
	return id.FormatUnitsPrecision(v, 2, 2) + "%"
}

func (a *aave) getUserAccountData(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getUserAccountData", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), a.chains())
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

	inv.Enter(execution.StageFormatting)
	health := "no debt"
	if data.debt.Sign() > 0 {
		health = id.FormatUnitsPrecision(data.healthFactor, 18, 2)
	}
	lines := []string{
		fmt.Sprintf("Total collateral: %s", formatUSD(data.collateral)),
		fmt.Sprintf("Total debt: %s", formatUSD(data.debt)),
		fmt.Sprintf("Available to borrow: %s", formatUSD(data.availableBorrows)),
		fmt.Sprintf("Loan to value: %s", formatBps(data.ltv)),
		fmt.Sprintf("Liquidation threshold: %s", formatBps(data.liquidationThreshold)),
		fmt.Sprintf("Health factor: %s", health),
	}
	return inv.Done(strings.Join(lines, "\n"))
}

type reserveRow struct {
	token    id.Token
	reserve  userReserve
	listed   bool
	readFail error
}

func (a *aave) getReserveBalances(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getReserveBalances", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), a.chains())
	if err != nil {
		return inv.Fail(err)
	}
	tokens := a.cfg.Tokens[req.Chain.EVMChainID]
	if len(tokens) == 0 {
		return inv.Fail(clierr.New(clierr.CodeUnsupported, fmt.Sprintf("No Aave reserves configured for %s", req.Chain.Slug)))
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
	// A token that is not an Aave reserve reverts; it is skipped rather than failing the listing.
	rows, err := execution.FanOut(ctx, len(tokens), func(ctx context.Context, i int) (reserveRow, error) {
		reserve, err := readUserReserve(ctx, provider, m.dataProvider, common.HexToAddress(tokens[i].Address), req.Account)
		if err != nil {
			return reserveRow{token: tokens[i], readFail: err}, nil
		}
		return reserveRow{token: tokens[i], reserve: reserve, listed: true}, nil
	})
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch reserve balances", err))
	}
	listed := 0
	var lastErr error
	for _, r := range rows {
		if r.listed {
			listed++
		} else {
			lastErr = r.readFail
		}
	}
	if listed == 0 {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch reserve balances", lastErr))
	}

	inv.Enter(execution.StageFormatting)
	var lines []string
	for _, r := range rows {
		if !r.listed || (r.reserve.supplied.Sign() == 0 && r.reserve.variableDebt.Sign() == 0) {
			continue
		}
		symbol := strings.ToUpper(r.token.Symbol)
		lines = append(lines, fmt.Sprintf("%s: supplied %s, borrowed %s", symbol,
			id.FormatUnitsPrecision(r.reserve.supplied, r.token.Decimals, 6),
			id.FormatUnitsPrecision(r.reserve.variableDebt, r.token.Decimals, 6)))
	}
	if len(lines) == 0 {
		return inv.Done("No Aave positions found")
	}
	return inv.Done(strings.Join(lines, "\n"))
}
