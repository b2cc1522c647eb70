// Package aave implements Aave V3 lending: supply, withdraw, borrow, repay, rewards and
// account reads.
package aave

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

const Name = "aave"

// variableRate is the only borrow mode still offered by Aave V3 markets.
const variableRate = 2

var (
	addressProviderABI = execution.MustABI(registry.AavePoolAddressProviderABI)
	poolABI            = execution.MustABI(registry.AavePoolABI)
	dataProviderABI    = execution.MustABI(registry.AaveDataProviderABI)
	rewardsABI         = execution.MustABI(registry.AaveRewardsABI)

	incentivesControllerID = crypto.Keccak256Hash([]byte("INCENTIVES_CONTROLLER"))
)

type Config struct {
	Deployments map[int64]registry.AaveV3Deployment
	// Tokens are the reserves addressable by symbol on each chain.
	Tokens    map[int64][]id.Token
	Multicall common.Address
}

func DefaultConfig() Config {
	cfg := Config{
		Deployments: map[int64]registry.AaveV3Deployment{},
		Tokens:      map[int64][]id.Token{},
		Multicall:   common.HexToAddress(registry.Multicall3Address),
	}
	for _, chainID := range registry.AaveV3Chains() {
		dep, _ := registry.AaveV3(chainID)
		cfg.Deployments[chainID] = dep
		cfg.Tokens[chainID] = id.Tokens(chainID)
	}
	return cfg
}

type aave struct {
	cfg Config
}

func New(cfg Config) adapter.Adapter {
	a := &aave{cfg: cfg}
	return adapter.Adapter{
		Name:        Name,
		Description: "Aave V3 lending: supply, withdraw, borrow and repay assets, claim incentives and inspect positions",
		Tools:       tools(id.ChainNames(a.chains())),
		Functions: map[string]adapter.Function{
			"supply":             a.supply,
			"withdraw":           a.withdraw,
			"borrow":             a.borrow,
			"repay":              a.repay,
			"claimRewards":       a.claimRewards,
			"getUserAccountData": a.getUserAccountData,
			"getReserveBalances": a.getReserveBalances,
		},
	}
}

func Default() adapter.Adapter { return New(DefaultConfig()) }

func (a *aave) chains() []int64 {
	out := make([]int64, 0, len(a.cfg.Deployments))
	for chainID := range a.cfg.Deployments {
		out = append(out, chainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// asset resolves symbol against the configured reserves. The chain native symbol
// resolves to a native asset.
func (a *aave) asset(chain id.Chain, symbol string) (id.Asset, error) {
	clean := strings.TrimSpace(symbol)
	if clean == "" {
		return id.Asset{}, clierr.New(clierr.CodeUsage, "Token symbol is required")
	}
	if strings.EqualFold(clean, chain.NativeSymbol) {
		return id.Asset{ChainID: chain.EVMChainID, Address: id.NativeTokenAddress, Symbol: chain.NativeSymbol, Decimals: 18, Native: true}, nil
	}
	for _, t := range a.cfg.Tokens[chain.EVMChainID] {
		if strings.EqualFold(t.Symbol, clean) {
			return id.Asset{
				ChainID:        chain.EVMChainID,
				Address:        t.Address,
				Symbol:         strings.ToUpper(t.Symbol),
				Decimals:       t.Decimals,
				ResetAllowance: t.ResetAllowance,
			}, nil
		}
	}
	return id.Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Token %s is not supported on %s", clean, chain.Slug))
}

// market holds the addresses resolved from the PoolAddressesProvider.
type market struct {
	pool         common.Address
	dataProvider common.Address
	incentives   common.Address
}

// resolveMarket reads the pool, data provider and incentives controller in one batch.
func (a *aave) resolveMarket(ctx context.Context, p adapter.Provider, chainID int64) (market, error) {
	provider := common.HexToAddress(a.cfg.Deployments[chainID].PoolAddressesProvider)
	incentives := execution.NewCall(provider, addressProviderABI, "getAddress", incentivesControllerID)
	incentives.AllowFailure = true
	results, err := execution.Aggregate(ctx, p, a.cfg.Multicall, []execution.ViewCall{
		execution.NewCall(provider, addressProviderABI, "getPool"),
		execution.NewCall(provider, addressProviderABI, "getPoolDataProvider"),
		incentives,
	})
	if err != nil {
		return market{}, clierr.Wrap(clierr.CodeUnavailable, "failed to resolve Aave pool", err)
	}
	var m market
	m.pool, _ = results[0].Values[0].(common.Address)
	m.dataProvider, _ = results[1].Values[0].(common.Address)
	if results[2].Success {
		m.incentives, _ = results[2].Values[0].(common.Address)
	}
	if m.pool == (common.Address{}) {
		return market{}, clierr.New(clierr.CodeUnavailable, "Aave pool address is zero")
	}
	return m, nil
}

func (a *aave) wrappedNative(chainID int64) common.Address {
	return common.HexToAddress(a.cfg.Deployments[chainID].WrappedNative)
}

func tokenParam(description string) adapter.Parameter {
	return adapter.Parameter{Name: "tokenSymbol", Type: adapter.TypeString, Description: description, Required: true}
}

func tools(chains []string) []adapter.Tool {
	lending := func(name, description, token, amount string) adapter.Tool {
		return adapter.Tool{
			Name:        name,
			Description: description,
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				tokenParam(token),
				adapter.AmountParam(amount),
			},
		}
	}
	return []adapter.Tool{
		lending("supply", "Supply a token to Aave V3. Supplying the native token wraps it first", "Symbol of the token to supply", "Amount to supply, in decimal form"),
		lending("withdraw", "Withdraw a supplied token from Aave V3", "Symbol of the token to withdraw", "Amount to withdraw, in decimal form"),
		lending("borrow", "Borrow a token from Aave V3 at the variable rate", "Symbol of the token to borrow", "Amount to borrow, in decimal form"),
		lending("repay", "Repay a variable rate Aave V3 borrow", "Symbol of the token to repay", "Amount to repay, in decimal form"),
		{
			Name:        "claimRewards",
			Description: "Claim all Aave incentive rewards accrued on the given reserves",
			Parameters: []adapter.Parameter{
				adapter.ChainParam(chains),
				adapter.AccountParam(),
				{Name: "tokenSymbols", Type: adapter.TypeArray, Items: adapter.TypeString, Description: "Reserves to claim for. Defaults to every known reserve"},
			},
		},
		{
			Name:        "getUserAccountData",
			Description: "Show collateral, debt, borrowing power and health factor of an Aave V3 account",
			Parameters:  []adapter.Parameter{adapter.ChainParam(chains), adapter.AccountParam()},
		},
		{
			Name:        "getReserveBalances",
			Description: "List supplied and borrowed balances per Aave V3 reserve",
			Parameters:  []adapter.Parameter{adapter.ChainParam(chains), adapter.AccountParam()},
		},
	}
}
