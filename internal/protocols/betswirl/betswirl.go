// Package betswirl places BetSwirl casino bets (coin toss, dice) and lists past bets
// from the BetSwirl subgraph.
package betswirl

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/httpx"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

const Name = "betswirl"

var (
	coinTossABI = execution.MustABI(registry.BetSwirlCoinTossABI)
	diceABI     = execution.MustABI(registry.BetSwirlDiceABI)
	bankABI     = execution.MustABI(registry.BetSwirlBankABI)
)

type Config struct {
	Deployments map[int64]registry.BetSwirlDeployment
	// Subgraphs maps chain id to the BetSwirl subgraph endpoint used by getBets.
	Subgraphs map[int64]string
	Timeout   time.Duration
	Multicall common.Address
}

func DefaultConfig() Config {
	cfg := Config{
		Deployments: map[int64]registry.BetSwirlDeployment{},
		Subgraphs:   map[int64]string{},
		Timeout:     10 * time.Second,
		Multicall:   common.HexToAddress(registry.Multicall3Address),
	}
	for _, chainID := range registry.BetSwirlChains() {
		dep, _ := registry.BetSwirl(chainID)
		cfg.Deployments[chainID] = dep
		if url, ok := registry.BetSwirlSubgraphURL(chainID); ok {
			cfg.Subgraphs[chainID] = url
		}
	}
	return cfg
}

type betswirl struct {
	cfg  Config
	http *httpx.Client
}

func New(cfg Config) adapter.Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b := &betswirl{cfg: cfg, http: httpx.New(cfg.Timeout)}
	return adapter.Adapter{
		Name:        Name,
		Description: "BetSwirl casino: flip a coin, roll a dice and list past bets",
		Tools:       tools(id.ChainNames(b.chains())),
		Functions: map[string]adapter.Function{
			"coinToss": b.coinToss,
			"rollDice": b.rollDice,
			"getBets":  b.getBets,
		},
	}
}

func Default() adapter.Adapter { return New(DefaultConfig()) }

func (b *betswirl) chains() []int64 {
	out := make([]int64, 0, len(b.cfg.Deployments))
	for chainID := range b.cfg.Deployments {
		out = append(out, chainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func tools(chains []string) []adapter.Tool {
	bet := func(extra adapter.Parameter) []adapter.Parameter {
		return []adapter.Parameter{
			adapter.ChainParam(chains),
			adapter.AccountParam(),
			{Name: "betAmount", Type: adapter.TypeString, Description: "Amount wagered per bet, in decimal form", Required: true},
			extra,
			{Name: "token", Type: adapter.TypeString, Description: "Symbol or address of the token to bet. Defaults to the native token"},
			{Name: "betCount", Type: adapter.TypeString, Description: "Number of consecutive bets, 1 to 100. Defaults to 1"},
		}
	}
	return []adapter.Tool{
		{
			Name:        "coinToss",
			Description: "Flip a coin on BetSwirl. A winning bet pays about 2x, minus the house edge",
			Parameters:  bet(adapter.Parameter{Name: "face", Type: adapter.TypeString, Description: "Side to bet on", Enum: []string{"heads", "tails"}, Required: true}),
		},
		{
			Name:        "rollDice",
			Description: "Roll a 100-sided dice on BetSwirl. The bet wins when the roll is below the chosen number",
			Parameters:  bet(adapter.Parameter{Name: "number", Type: adapter.TypeString, Description: "Winning threshold between 1 and 99", Required: true}),
		},
		{
			Name:        "getBets",
			Description: "List the latest BetSwirl bets of an account",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				{Name: "limit", Type: adapter.TypeString, Description: "Number of bets to return, at most 50. Defaults to 10"},
			},
		},
	}
}
