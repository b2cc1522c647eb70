// Package swapx implements SwapX vote-escrow locks and gauge voting on Sonic.
package swapx

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

const Name = "swapx"

var (
	votingEscrowABI = execution.MustABI(registry.SwapXVotingEscrowABI)
	voterABI        = execution.MustABI(registry.SwapXVoterABI)
)

type Config struct {
	Deployments map[int64]registry.SwapXDeployment
	Multicall   common.Address
}

func DefaultConfig() Config {
	cfg := Config{
		Deployments: map[int64]registry.SwapXDeployment{},
		Multicall:   common.HexToAddress(registry.Multicall3Address),
	}
	for _, chainID := range registry.SwapXChains() {
		dep, _ := registry.SwapX(chainID)
		cfg.Deployments[chainID] = dep
	}
	return cfg
}

type swapx struct {
	cfg Config
}

func New(cfg Config) adapter.Adapter {
	s := &swapx{cfg: cfg}
	return adapter.Adapter{
		Name:        Name,
		Description: "SwapX veSWPx locks: list locks, vote for pool gauges, reset votes, withdraw expired locks and add to a lock",
		Tools:       tools(id.ChainNames(s.chains())),
		Functions: map[string]adapter.Function{
			"getLocks":           s.getLocks,
			"vote":               s.vote,
			"resetVotes":         s.resetVotes,
			"withdrawLock":       s.withdrawLock,
			"increaseLockAmount": s.increaseLockAmount,
		},
	}
}

func Default() adapter.Adapter { return New(DefaultConfig()) }

func (s *swapx) chains() []int64 {
	out := make([]int64, 0, len(s.cfg.Deployments))
	for chainID := range s.cfg.Deployments {
		out = append(out, chainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type contracts struct {
	ve    common.Address
	voter common.Address
	swpx  common.Address
}

func (s *swapx) contracts(chainID int64) contracts {
	dep := s.cfg.Deployments[chainID]
	return contracts{
		ve:    common.HexToAddress(dep.VotingEscrow),
		voter: common.HexToAddress(dep.Voter),
		swpx:  common.HexToAddress(dep.SWPx),
	}
}

func tokenIDParam() adapter.Parameter {
	return adapter.Parameter{Name: "tokenId", Type: adapter.TypeString, Description: "veSWPx lock token id", Required: true}
}

func tools(chains []string) []adapter.Tool {
	return []adapter.Tool{
		{
			Name:        "getLocks",
			Description: "List veSWPx locks owned by an account with locked amount, unlock time and vote status",
			Parameters:  []adapter.Parameter{adapter.ChainParam(chains), adapter.AccountParam()},
		},
		{
			Name:        "vote",
			Description: "Vote with a veSWPx lock for one or more pools",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				tokenIDParam(),
				{Name: "pools", Type: adapter.TypeArray, Items: adapter.TypeString, Description: "Pool addresses to vote for", Required: true},
				{Name: "weights", Type: adapter.TypeArray, Items: adapter.TypeString, Description: "Relative integer weight per pool, same order as pools", Required: true},
			},
		},
		{
			Name:        "resetVotes",
			Description: "Clear all votes of a veSWPx lock",
			Parameters:  []adapter.Parameter{adapter.ChainParam(chains), adapter.AccountParam(), tokenIDParam()},
		},
		{
			Name:        "withdrawLock",
			Description: "Withdraw SWPx from an expired veSWPx lock",
			Parameters:  []adapter.Parameter{adapter.ChainParam(chains), adapter.AccountParam(), tokenIDParam()},
		},
		{
			Name:        "increaseLockAmount",
			Description: "Add SWPx to an existing veSWPx lock",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				tokenIDParam(),
				adapter.AmountParam("Amount of SWPx to add, in decimal form"),
			},
		},
	}
}
