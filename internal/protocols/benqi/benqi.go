// Package benqi implements the Benqi lending markets and veQI gauge voting on Avalanche.
package benqi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

const Name = "benqi"

var (
	marketABI       = execution.MustABI(registry.BenqiMarketABI)
	nativeMarketABI = execution.MustABI(registry.BenqiNativeMarketABI)
	comptrollerABI  = execution.MustABI(registry.BenqiComptrollerABI)
	gaugeABI        = execution.MustABI(registry.BenqiGaugeVotingABI)
)

type Config struct {
	Deployments map[int64]registry.BenqiDeployment
	Multicall   common.Address
}

func DefaultConfig() Config {
	cfg := Config{
		Deployments: map[int64]registry.BenqiDeployment{},
		Multicall:   common.HexToAddress(registry.Multicall3Address),
	}
	for _, chainID := range registry.BenqiChains() {
		dep, _ := registry.Benqi(chainID)
		cfg.Deployments[chainID] = dep
	}
	return cfg
}

type benqi struct {
	cfg Config
}

func New(cfg Config) adapter.Adapter {
	b := &benqi{cfg: cfg}
	return adapter.Adapter{
		Name:        Name,
		Description: "Benqi lending markets (supply, redeem, borrow, repay) and veQI gauge voting",
		Tools:       tools(id.ChainNames(b.chains()), b.marketNames()),
		Functions: map[string]adapter.Function{
			"supply":             b.supply,
			"redeem":             b.redeem,
			"borrow":             b.borrow,
			"repay":              b.repay,
			"enterMarkets":       b.enterMarkets,
			"getMarketBalances":  b.getMarketBalances,
			"getUserVotesLength": b.getUserVotesLength,
			"voteForGauges":      b.voteForGauges,
		},
	}
}

func Default() adapter.Adapter { return New(DefaultConfig()) }

func (b *benqi) chains() []int64 {
	out := make([]int64, 0, len(b.cfg.Deployments))
	for chainID := range b.cfg.Deployments {
		out = append(out, chainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (b *benqi) marketNames() []string {
	seen := map[string]bool{}
	var out []string
	for _, chainID := range b.chains() {
		for _, m := range b.cfg.Deployments[chainID].Markets {
			if !seen[m.Name] {
				seen[m.Name] = true
				out = append(out, m.Name)
			}
		}
	}
	return out
}

// market resolves a market by its underlying symbol, case-insensitively.
func (b *benqi) market(chainID int64, name string) (registry.BenqiMarket, error) {
	dep := b.cfg.Deployments[chainID]
	clean := strings.TrimSpace(name)
	if clean == "" {
		return registry.BenqiMarket{}, clierr.New(clierr.CodeUsage, "Market name is required")
	}
	for _, m := range dep.Markets {
		if strings.EqualFold(m.Name, clean) {
			return m, nil
		}
	}
	return registry.BenqiMarket{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Unsupported market: %s", clean))
}

func (b *benqi) comptroller(chainID int64) common.Address {
	return common.HexToAddress(b.cfg.Deployments[chainID].Comptroller)
}

func (b *benqi) gauge(chainID int64) common.Address {
	return common.HexToAddress(b.cfg.Deployments[chainID].GaugeVoting)
}

func marketParam(markets []string) adapter.Parameter {
	return adapter.Parameter{
		Name:        "marketName",
		Type:        adapter.TypeString,
		Description: "Underlying asset of the Benqi market",
		Enum:        markets,
		Required:    true,
	}
}

func tools(chains, markets []string) []adapter.Tool {
	lending := func(name, description, amount string) adapter.Tool {
		return adapter.Tool{
			Name:        name,
			Description: description,
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				marketParam(markets),
				adapter.AmountParam(amount),
			},
		}
	}
	return []adapter.Tool{
		lending("supply", "Supply an asset to a Benqi market", "Amount of the underlying asset to supply"),
		lending("redeem", "Redeem supplied underlying from a Benqi market", "Amount of the underlying asset to redeem"),
		lending("borrow", "Borrow an asset from a Benqi market against entered collateral", "Amount of the underlying asset to borrow"),
		lending("repay", "Repay a Benqi borrow", "Amount of the underlying asset to repay"),
		{
			Name:        "enterMarkets",
			Description: "Enable Benqi markets as collateral",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				{Name: "marketNames", Type: adapter.TypeArray, Items: adapter.TypeString, Description: "Markets to use as collateral", Enum: markets, Required: true},
			},
		},
		{
			Name:        "getMarketBalances",
			Description: "Show supplied and borrowed balances in every Benqi market",
			Parameters:  []adapter.Parameter{adapter.ChainParam(chains), adapter.AccountParam()},
		},
		{
			Name:        "getUserVotesLength",
			Description: "Count the gauge votes an account has cast with veQI",
			Parameters:  []adapter.Parameter{adapter.ChainParam(chains), adapter.AccountParam()},
		},
		{
			Name:        "voteForGauges",
			Description: "Distribute veQI voting power across validator node gauges",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				{Name: "nodeIds", Type: adapter.TypeArray, Items: adapter.TypeString, Description: "Validator node ids to vote for", Required: true},
				{Name: "weights", Type: adapter.TypeArray, Items: adapter.TypeString, Description: "veQI amount per node, in decimal form, same order as nodeIds", Required: true},
			},
		},
	}
}
