// Package catalog assembles every protocol adapter behind one lookup and applies the
// host-side function allowlist.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/host"
	"github.com/ggonzalez94/defi-adapters/internal/policy"
	"github.com/ggonzalez94/defi-adapters/internal/protocols/aave"
	"github.com/ggonzalez94/defi-adapters/internal/protocols/beets"
	"github.com/ggonzalez94/defi-adapters/internal/protocols/benqi"
	"github.com/ggonzalez94/defi-adapters/internal/protocols/betswirl"
	"github.com/ggonzalez94/defi-adapters/internal/protocols/enso"
	"github.com/ggonzalez94/defi-adapters/internal/protocols/morpho"
	"github.com/ggonzalez94/defi-adapters/internal/protocols/swapx"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

type Options struct {
	EnsoAPIKey string
	// HTTPTimeout bounds the off-chain reads of morpho, enso and betswirl.
	HTTPTimeout time.Duration
	// EnableFunctions is the allowlist of "adapter.function" entries; empty allows all.
	EnableFunctions []string
	// Endpoints overrides service URLs, keyed by registry service name.
	Endpoints map[string]string
}

type Catalog struct {
	adapters map[string]adapter.Adapter
	allow    []string
}

// New builds the catalog from the given adapters. Every adapter must pass Check.
func New(allow []string, adapters ...adapter.Adapter) (*Catalog, error) {
	c := &Catalog{adapters: map[string]adapter.Adapter{}, allow: allow}
	for _, a := range adapters {
		if err := a.Check(); err != nil {
			return nil, err
		}
		if _, dup := c.adapters[a.Name]; dup {
			return nil, fmt.Errorf("duplicate adapter %s", a.Name)
		}
		c.adapters[a.Name] = a
	}
	return c, nil
}

// Default wires the built-in adapters with registry deployments.
func Default(opts Options) (*Catalog, error) {
	morphoCfg, ensoCfg, betCfg := serviceConfigs(opts)
	return New(opts.EnableFunctions,
		aave.Default(),
		morpho.New(morphoCfg),
		beets.Default(),
		benqi.Default(),
		swapx.Default(),
		enso.New(ensoCfg),
		betswirl.New(betCfg),
	)
}

func serviceConfigs(opts Options) (morpho.Config, enso.Config, betswirl.Config) {
	morphoCfg := morpho.DefaultConfig()
	ensoCfg := enso.DefaultConfig()
	ensoCfg.APIKey = opts.EnsoAPIKey
	betCfg := betswirl.DefaultConfig()
	if opts.HTTPTimeout > 0 {
		morphoCfg.Timeout = opts.HTTPTimeout
		ensoCfg.Timeout = opts.HTTPTimeout
		betCfg.Timeout = opts.HTTPTimeout
	}
	if v := opts.Endpoints[registry.ServiceMorpho]; v != "" {
		morphoCfg.Endpoint = v
	}
	if v := opts.Endpoints[registry.ServiceEnso]; v != "" {
		ensoCfg.BaseURL = v
	}
	if v := opts.Endpoints[registry.ServiceBetSwirl]; v != "" {
		for _, chainID := range registry.BetSwirlChains() {
			if url, ok := registry.BetSwirlSubgraphURLAt(v, chainID); ok {
				betCfg.Subgraphs[chainID] = url
			}
		}
	}
	return morphoCfg, ensoCfg, betCfg
}

func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.adapters))
	for name := range c.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Get(name string) (adapter.Adapter, bool) {
	a, ok := c.adapters[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// Adapters returns the adapters in name order.
func (c *Catalog) Adapters() []adapter.Adapter {
	out := make([]adapter.Adapter, 0, len(c.adapters))
	for _, name := range c.Names() {
		out = append(out, c.adapters[name])
	}
	return out
}

// Allowed reports whether adapterName.function passes the allowlist.
func (c *Catalog) Allowed(adapterName, function string) error {
	return policy.CheckFunctionAllowed(c.allow, adapterName, function)
}

// Tools lists the tools of every adapter that pass the allowlist, keyed by adapter.
func (c *Catalog) Tools() map[string][]adapter.Tool {
	out := map[string][]adapter.Tool{}
	for _, a := range c.Adapters() {
		for _, t := range a.Tools {
			if c.Allowed(a.Name, t.Name) == nil {
				out[a.Name] = append(out[a.Name], t)
			}
		}
	}
	return out
}

// Invoke runs one function after the allowlist check, tagging ctx with the caller so
// the host can attribute notifications and proposals.
func (c *Catalog) Invoke(ctx context.Context, adapterName, function string, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	a, ok := c.Get(adapterName)
	if !ok {
		return adapter.Fail(fmt.Sprintf("Adapter %s not found", adapterName))
	}
	if err := c.Allowed(a.Name, function); err != nil {
		return adapter.FromError(err)
	}
	ctx = host.WithCaller(ctx, a.Name, function)
	return a.Invoke(ctx, function, props, opts)
}
