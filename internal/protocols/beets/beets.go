// Package beets implements the Beets staked Sonic (stS) liquid staking adapter.
package beets

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

const Name = "beets"

var (
	stakedSonicABI = execution.MustABI(registry.BeetsStakedSonicABI)
	sfcABI         = execution.MustABI(registry.SonicSFCABI)
)

type Config struct {
	Deployments map[int64]registry.BeetsDeployment
	Multicall   common.Address
}

func DefaultConfig() Config {
	cfg := Config{
		Deployments: map[int64]registry.BeetsDeployment{},
		Multicall:   common.HexToAddress(registry.Multicall3Address),
	}
	for _, chainID := range registry.BeetsChains() {
		dep, _ := registry.Beets(chainID)
		cfg.Deployments[chainID] = dep
	}
	return cfg
}

type beets struct {
	cfg Config
}

func New(cfg Config) adapter.Adapter {
	b := &beets{cfg: cfg}
	chains := id.ChainNames(b.chains())
	return adapter.Adapter{
		Name:        Name,
		Description: "Beets liquid staking of Sonic (S) into stS, including unstaking through validator undelegation and withdrawals",
		Tools:       tools(chains),
		Functions: map[string]adapter.Function{
			"stake":                   b.stake,
			"unstake":                 b.unstake,
			"withdraw":                b.withdraw,
			"getStakedBalance":        b.getStakedBalance,
			"getOpenWithdrawRequests": b.getOpenWithdrawRequests,
		},
	}
}

func Default() adapter.Adapter { return New(DefaultConfig()) }

func (b *beets) chains() []int64 {
	out := make([]int64, 0, len(b.cfg.Deployments))
	for chainID := range b.cfg.Deployments {
		out = append(out, chainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (b *beets) deployment(chainID int64) (registry.BeetsDeployment, common.Address) {
	dep := b.cfg.Deployments[chainID]
	return dep, common.HexToAddress(dep.StakedSonic)
}

func (b *beets) stakedBalance(ctx context.Context, p adapter.Provider, sts, account common.Address) (*bigPair, error) {
	results, err := execution.Aggregate(ctx, p, b.cfg.Multicall, []execution.ViewCall{
		execution.NewCall(sts, execution.ERC20ABI, "balanceOf", account),
		execution.NewCall(sts, stakedSonicABI, "getRate"),
	})
	if err != nil {
		return nil, err
	}
	return &bigPair{shares: results[0].Big(0), rate: results[1].Big(0)}, nil
}

func tools(chains []string) []adapter.Tool {
	return []adapter.Tool{
		{
			Name:        "stake",
			Description: "Stake S tokens with Beets and receive stS",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				adapter.AmountParam("Amount of S to stake, in decimal form"),
			},
		},
		{
			Name:        "unstake",
			Description: "Start unstaking S from Beets. Funds become withdrawable after the protocol withdrawal delay",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				adapter.AmountParam("Amount of S to unstake, in decimal form"),
			},
		},
		{
			Name:        "withdraw",
			Description: "Withdraw S from a matured Beets withdraw request",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				{Name: "withdrawId", Type: adapter.TypeString, Description: "Withdraw request id returned when unstaking", Required: true},
			},
		},
		{
			Name:        "getStakedBalance",
			Description: "Show the stS balance of an account and its value in S",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
			},
		},
		{
			Name:        "getOpenWithdrawRequests",
			Description: "List withdraw requests that have not been withdrawn yet and whether they can be withdrawn now",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
			},
		},
	}
}
