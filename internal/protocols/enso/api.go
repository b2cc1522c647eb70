package enso

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

type routeQuery struct {
	chainID     int64
	from        common.Address
	tokenIn     string
	tokenOut    string
	amountIn    *big.Int
	slippageBps int64
}

func (q routeQuery) values() url.Values {
	vals := url.Values{}
	vals.Set("chainId", strconv.FormatInt(q.chainID, 10))
	vals.Set("fromAddress", q.from.Hex())
	vals.Set("tokenIn", q.tokenIn)
	vals.Set("tokenOut", q.tokenOut)
	vals.Set("amountIn", q.amountIn.String())
	vals.Set("routingStrategy", "router")
	return vals
}

type routeStep struct {
	Action   string `json:"action"`
	Protocol string `json:"protocol"`
}

type quoteResponse struct {
	AmountOut   string      `json:"amountOut"`
	Gas         string      `json:"gas"`
	PriceImpact *float64    `json:"priceImpact"`
	Route       []routeStep `json:"route"`
}

type routeResponse struct {
	quoteResponse
	Tx struct {
		To    string `json:"to"`
		From  string `json:"from"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"tx"`
}

func (r quoteResponse) amountOut() (*big.Int, error) {
	out, ok := new(big.Int).SetString(strings.TrimSpace(r.AmountOut), 10)
	if !ok || out.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "Enso returned no output amount for this route")
	}
	return out, nil
}

// protocols lists the distinct protocols of a route in order.
func (r quoteResponse) protocols() []string {
	var out []string
	seen := map[string]bool{}
	for _, step := range r.Route {
		if step.Protocol == "" || seen[step.Protocol] {
			continue
		}
		seen[step.Protocol] = true
		out = append(out, step.Protocol)
	}
	return out
}

func (e *enso) get(ctx context.Context, path string, vals url.Values, out any) error {
	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + path + "?" + vals.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build Enso request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	_, err = e.http.DoJSON(ctx, req, out)
	return err
}

func (e *enso) quote(ctx context.Context, q routeQuery) (quoteResponse, error) {
	var resp quoteResponse
	if err := e.get(ctx, "/shortcuts/quote", q.values(), &resp); err != nil {
		return quoteResponse{}, err
	}
	return resp, nil
}

// route fetches an executable route and checks it targets the configured router.
func (e *enso) route(ctx context.Context, q routeQuery) (routeResponse, []byte, *big.Int, error) {
	vals := q.values()
	vals.Set("receiver", q.from.Hex())
	vals.Set("spender", q.from.Hex())
	vals.Set("slippage", strconv.FormatInt(q.slippageBps, 10))
	var resp routeResponse
	if err := e.get(ctx, "/shortcuts/route", vals, &resp); err != nil {
		return routeResponse{}, nil, nil, err
	}
	if !common.IsHexAddress(resp.Tx.To) || common.HexToAddress(resp.Tx.To) != e.cfg.Router {
		return routeResponse{}, nil, nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("Enso route targets unexpected contract %s", resp.Tx.To))
	}
	data, err := hexutil.Decode(resp.Tx.Data)
	if err != nil || len(data) < 4 {
		return routeResponse{}, nil, nil, clierr.New(clierr.CodeUnavailable, "Enso route is missing transaction data")
	}
	value := new(big.Int)
	if v := strings.TrimSpace(resp.Tx.Value); v != "" {
		if _, ok := value.SetString(v, 10); !ok {
			return routeResponse{}, nil, nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("Enso route has invalid value %q", v))
		}
	}
	return resp, data, value, nil
}
