package betswirl

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/httpx"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

const (
	defaultBetsLimit = 10
	maxBetsLimit     = 50
)

const betsQuery = `query Bets($user: String!, $first: Int!) {
  bets(first: $first, orderBy: betTimestamp, orderDirection: desc, where: { user: $user }) {
    id
    game
    betAmount
    betCount
    payout
    isResolved
    isRefunded
    betTimestamp
    token { symbol decimals }
  }
}`

type subgraphBet struct {
	ID         string `json:"id"`
	Game       string `json:"game"`
	BetAmount  string `json:"betAmount"`
	BetCount   string `json:"betCount"`
	Payout     string `json:"payout"`
	IsResolved bool   `json:"isResolved"`
	IsRefunded bool   `json:"isRefunded"`
	Timestamp  string `json:"betTimestamp"`
	Token      struct {
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"token"`
}

func parseBig(raw string) *big.Int {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

func (bet subgraphBet) line() string {
	amount := func(raw string) string {
		return id.FormatUnitsPrecision(parseBig(raw), bet.Token.Decimals, 6) + " " + bet.Token.Symbol
	}
	outcome := "pending"
	switch {
	case bet.IsRefunded:
		outcome = "refunded"
	case bet.IsResolved && parseBig(bet.Payout).Sign() > 0:
		outcome = "won " + amount(bet.Payout)
	case bet.IsResolved:
		outcome = "lost"
	}
	stake := amount(bet.BetAmount)
	if count, err := strconv.Atoi(bet.BetCount); err == nil && count > 1 {
		stake = fmt.Sprintf("%d x %s", count, stake)
	}
	when := ""
	if ts, err := strconv.ParseInt(bet.Timestamp, 10, 64); err == nil {
		when = ", " + time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("- %s #%s: %s, %s%s", bet.Game, bet.ID, stake, outcome, when)
}

func (b *betswirl) getBets(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getBets", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), b.chains())
	if err != nil {
		return inv.Fail(err)
	}
	limit := int64(defaultBetsLimit)
	if props.Has("limit") {
		n, ok := props.Int("limit")
		if !ok || n < 1 {
			return inv.Fail(clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid limit: %s", props.String("limit"))))
		}
		limit = min(n, maxBetsLimit)
	}
	endpoint, ok := b.cfg.Subgraphs[req.Chain.EVMChainID]
	if !ok {
		return inv.Fail(clierr.New(clierr.CodeUnsupported, fmt.Sprintf("No BetSwirl subgraph configured for %s", req.Chain.Slug)))
	}

	inv.Enter(execution.StageReading)
	var data struct {
		Bets []subgraphBet `json:"bets"`
	}
	vars := map[string]any{"user": strings.ToLower(req.Account.Hex()), "first": limit}
	if err := httpx.DoGraphQL(ctx, b.http, endpoint, betsQuery, vars, &data); err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageFormatting)
	if len(data.Bets) == 0 {
		return inv.Done("No BetSwirl bets found")
	}
	bets := data.Bets
	if len(bets) > maxBetsLimit {
		bets = bets[:maxBetsLimit]
	}
	lines := []string{fmt.Sprintf("Found %s:", execution.Pluralize(big.NewInt(int64(len(bets))), "bet", "bets"))}
	for _, bet := range bets {
		lines = append(lines, bet.line())
	}
	return inv.Done(strings.Join(lines, "\n"))
}
