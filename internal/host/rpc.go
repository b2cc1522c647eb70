package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

// Providers dials one ethclient per chain and reuses it for the life of the host.
type Providers struct {
	overrides map[int64]string

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

func NewProviders(overrides map[int64]string) *Providers {
	cp := make(map[int64]string, len(overrides))
	for k, v := range overrides {
		cp[k] = v
	}
	return &Providers{overrides: cp, clients: map[int64]*ethclient.Client{}}
}

// Client returns the connected client for chainID. The endpoint must report the
// chain id it was configured for.
func (p *Providers) Client(ctx context.Context, chainID int64) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[chainID]; ok {
		return c, nil
	}
	url, err := registry.ResolveRPCURL(p.overrides, chainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnsupported, "resolve rpc", err)
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	reported, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if reported.Int64() != chainID {
		client.Close()
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("rpc for chain %d reports chain id %d", chainID, reported.Int64()))
	}
	p.clients[chainID] = client
	return client, nil
}

func (p *Providers) Provider(ctx context.Context, chainID int64) (adapter.Provider, error) {
	return p.Client(ctx, chainID)
}

func (p *Providers) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
