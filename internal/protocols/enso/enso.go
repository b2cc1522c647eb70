// Package enso swaps tokens through the Enso router using routes computed by the Enso
// shortcuts API.
package enso

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/httpx"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

const Name = "enso"

const (
	defaultSlippageBps = 50
	maxSlippageBps     = 5000
)

type Config struct {
	Chains  []int64
	BaseURL string
	// APIKey is sent as a bearer token. Routes are refused without one.
	APIKey    string
	Router    common.Address
	Timeout   time.Duration
	Multicall common.Address
}

func DefaultConfig() Config {
	return Config{
		Chains:    registry.EnsoChains(),
		BaseURL:   registry.EnsoBaseURL,
		Router:    common.HexToAddress(registry.EnsoRouterAddress),
		Timeout:   15 * time.Second,
		Multicall: common.HexToAddress(registry.Multicall3Address),
	}
}

type enso struct {
	cfg  Config
	http *httpx.Client
}

func New(cfg Config) adapter.Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	e := &enso{cfg: cfg, http: httpx.New(cfg.Timeout)}
	return adapter.Adapter{
		Name:        Name,
		Description: "Enso router swaps: quote a route between two tokens and execute it",
		Tools:       tools(id.ChainNames(cfg.Chains)),
		Functions: map[string]adapter.Function{
			"getRouteQuote": e.getRouteQuote,
			"swap":          e.swap,
		},
	}
}

// Default builds the adapter with the given API key and the registry endpoints.
func Default(apiKey string) adapter.Adapter {
	cfg := DefaultConfig()
	cfg.APIKey = apiKey
	return New(cfg)
}

func tools(chains []string) []adapter.Tool {
	params := func() []adapter.Parameter {
		return []adapter.Parameter{
			adapter.ChainParam(chains),
			adapter.AccountParam(),
			{Name: "tokenIn", Type: adapter.TypeString, Description: "Symbol or address of the token to sell", Required: true},
			{Name: "tokenOut", Type: adapter.TypeString, Description: "Symbol or address of the token to buy", Required: true},
			adapter.AmountParam("Amount of tokenIn to sell, in decimal form"),
		}
	}
	swap := params()
	swap = append(swap, adapter.Parameter{Name: "slippageBps", Type: adapter.TypeString, Description: "Maximum slippage in basis points. Defaults to 50"})
	return []adapter.Tool{
		{Name: "getRouteQuote", Description: "Quote the Enso route for selling tokenIn for tokenOut", Parameters: params()},
		{Name: "swap", Description: "Swap tokenIn for tokenOut through the Enso router", Parameters: swap},
	}
}
