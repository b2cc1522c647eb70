package morpho

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

func percent(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 2, 64) + "%"
}

func (m *morpho) getMarketInfo(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getMarketInfo", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), m.chains())
	if err != nil {
		return inv.Fail(err)
	}
	marketID, err := normalizeMarketID(props.String("marketId"))
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	info, err := m.fetchMarket(ctx, req.Chain.EVMChainID, marketID)
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageFormatting)
	decimals := info.LoanAsset.Decimals
	symbol := strings.ToUpper(info.LoanAsset.Symbol)
	amount := func(v bigintString) string {
		return id.FormatUnitsPrecision(v.Int(), decimals, 2) + " " + symbol
	}
	lines := []string{
		fmt.Sprintf("Market %s (%s)", info.label(), marketID),
		fmt.Sprintf("LLTV: %s%%", id.FormatUnitsPrecision(info.LLTV.Int(), 16, 2)),
		fmt.Sprintf("Total supplied: %s", amount(info.State.SupplyAssets)),
		fmt.Sprintf("Total borrowed: %s", amount(info.State.BorrowAssets)),
		fmt.Sprintf("Available liquidity: %s", amount(info.State.LiquidityAssets)),
		fmt.Sprintf("Utilization: %s", percent(info.State.Utilization)),
		fmt.Sprintf("Supply APY: %s", percent(info.State.SupplyAPY)),
		fmt.Sprintf("Borrow APY: %s", percent(info.State.BorrowAPY)),
	}
	return inv.Done(strings.Join(lines, "\n"))
}
