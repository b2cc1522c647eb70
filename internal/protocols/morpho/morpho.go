// Package morpho implements lending against individual Morpho Blue markets. Market
// parameters come from the Morpho GraphQL API; positions are read on chain.
package morpho

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

const Name = "morpho"

var morphoBlueABI = execution.MustABI(registry.MorphoBlueABI)

type Config struct {
	// Deployments maps chain id to the Morpho Blue singleton.
	Deployments map[int64]string
	Endpoint    string
	Timeout     time.Duration
	Multicall   common.Address
}

func DefaultConfig() Config {
	cfg := Config{
		Deployments: map[int64]string{},
		Endpoint:    registry.MorphoGraphQLEndpoint,
		Timeout:     10 * time.Second,
		Multicall:   common.HexToAddress(registry.Multicall3Address),
	}
	for _, chainID := range registry.MorphoChains() {
		addr, _ := registry.MorphoBlue(chainID)
		cfg.Deployments[chainID] = addr
	}
	return cfg
}

type morpho struct {
	cfg  Config
	http *httpx.Client
}

func New(cfg Config) adapter.Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	m := &morpho{cfg: cfg, http: httpx.New(cfg.Timeout)}
	return adapter.Adapter{
		Name:        Name,
		Description: "Morpho Blue markets: supply, withdraw, borrow and repay the loan asset of a market, and inspect market state",
		Tools:       tools(id.ChainNames(m.chains())),
		Functions: map[string]adapter.Function{
			"supplyToMarket":     m.supplyToMarket,
			"withdrawFromMarket": m.withdrawFromMarket,
			"borrowFromMarket":   m.borrowFromMarket,
			"repayToMarket":      m.repayToMarket,
			"getMarketInfo":      m.getMarketInfo,
		},
	}
}

func Default() adapter.Adapter { return New(DefaultConfig()) }

func (m *morpho) chains() []int64 {
	out := make([]int64, 0, len(m.cfg.Deployments))
	for chainID := range m.cfg.Deployments {
		out = append(out, chainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func marketIDParam() adapter.Parameter {
	return adapter.Parameter{Name: "marketId", Type: adapter.TypeString, Description: "Morpho Blue market unique key (0x-prefixed bytes32)", Required: true}
}

func tools(chains []string) []adapter.Tool {
	lending := func(name, description, amount string) adapter.Tool {
		return adapter.Tool{
			Name:        name,
			Description: description,
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				marketIDParam(),
				adapter.AmountParam(amount),
			},
		}
	}
	return []adapter.Tool{
		lending("supplyToMarket", "Supply the loan asset of a Morpho Blue market", "Amount of the loan asset to supply, in decimal form"),
		lending("withdrawFromMarket", "Withdraw supplied loan asset from a Morpho Blue market", "Amount of the loan asset to withdraw, in decimal form"),
		lending("borrowFromMarket", "Borrow the loan asset of a Morpho Blue market against supplied collateral", "Amount of the loan asset to borrow, in decimal form"),
		lending("repayToMarket", "Repay borrowed loan asset to a Morpho Blue market", "Amount of the loan asset to repay, in decimal form"),
		{
			Name:        "getMarketInfo",
			Description: "Show size, liquidity, utilization and rates of a Morpho Blue market",
			Parameters:  []adapter.Parameter{adapter.ChainParam(chains), adapter.AccountParam(), marketIDParam()},
		},
	}
}
