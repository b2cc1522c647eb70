package morpho

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/httpx"
)

const marketByIDQuery = `query Market($chain:Int!,$key:String!){
  markets(first: 1, where:{ chainId_in: [$chain], uniqueKey_in: [$key] }){
    items{
      uniqueKey
      irmAddress
      lltv
      morphoBlue{ address }
      oracle{ address }
      loanAsset{ address symbol decimals }
      collateralAsset{ address symbol decimals }
      state{ supplyAssets borrowAssets liquidityAssets utilization supplyApy borrowApy }
    }
  }
}`

type graphAsset struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type marketInfo struct {
	UniqueKey string       `json:"uniqueKey"`
	IRM       string       `json:"irmAddress"`
	LLTV      bigintString `json:"lltv"`
	Morpho    struct {
		Address string `json:"address"`
	} `json:"morphoBlue"`
	Oracle struct {
		Address string `json:"address"`
	} `json:"oracle"`
	LoanAsset       graphAsset  `json:"loanAsset"`
	CollateralAsset *graphAsset `json:"collateralAsset"`
	State           struct {
		SupplyAssets    bigintString `json:"supplyAssets"`
		BorrowAssets    bigintString `json:"borrowAssets"`
		LiquidityAssets bigintString `json:"liquidityAssets"`
		Utilization     float64      `json:"utilization"`
		SupplyAPY       float64      `json:"supplyApy"`
		BorrowAPY       float64      `json:"borrowApy"`
	} `json:"state"`
}

// label renders the market as COLLATERAL/LOAN, the way Morpho lists markets.
func (m marketInfo) label() string {
	loan := strings.ToUpper(m.LoanAsset.Symbol)
	if m.CollateralAsset == nil || m.CollateralAsset.Symbol == "" {
		return "idle/" + loan
	}
	return m.CollateralAsset.Symbol + "/" + loan
}

// marketParams mirrors the MarketParams tuple taken by every Morpho Blue entry point.
type marketParams struct {
	LoanToken       common.Address `abi:"loanToken"`
	CollateralToken common.Address `abi:"collateralToken"`
	Oracle          common.Address `abi:"oracle"`
	Irm             common.Address `abi:"irm"`
	Lltv            *big.Int       `abi:"lltv"`
}

func (m marketInfo) params() (marketParams, error) {
	for _, f := range []struct{ name, addr string }{
		{"loan token", m.LoanAsset.Address},
		{"oracle", m.Oracle.Address},
		{"irm", m.IRM},
	} {
		if !common.IsHexAddress(f.addr) {
			return marketParams{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("Morpho market is missing its %s address", f.name))
		}
	}
	lltv := m.LLTV.Int()
	if lltv.Sign() <= 0 {
		return marketParams{}, clierr.New(clierr.CodeUnavailable, "Morpho market returned an invalid LLTV")
	}
	params := marketParams{
		LoanToken: common.HexToAddress(m.LoanAsset.Address),
		Oracle:    common.HexToAddress(m.Oracle.Address),
		Irm:       common.HexToAddress(m.IRM),
		Lltv:      lltv,
	}
	if m.CollateralAsset != nil && common.IsHexAddress(m.CollateralAsset.Address) {
		params.CollateralToken = common.HexToAddress(m.CollateralAsset.Address)
	}
	return params, nil
}

// normalizeMarketID returns the lower-case 0x form of a bytes32 market key.
func normalizeMarketID(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return "", clierr.New(clierr.CodeUsage, "Market id is required")
	}
	if !strings.HasPrefix(clean, "0x") && !strings.HasPrefix(clean, "0X") {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid market id: %s", clean))
	}
	hexPart := clean[2:]
	if len(hexPart) != 64 {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid market id: %s", clean))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid market id: %s", clean))
	}
	return "0x" + strings.ToLower(hexPart), nil
}

func (m *morpho) fetchMarket(ctx context.Context, chainID int64, marketID string) (marketInfo, error) {
	var data struct {
		Markets struct {
			Items []marketInfo `json:"items"`
		} `json:"markets"`
	}
	vars := map[string]any{"chain": chainID, "key": marketID}
	if err := httpx.DoGraphQL(ctx, m.http, m.cfg.Endpoint, marketByIDQuery, vars, &data); err != nil {
		return marketInfo{}, err
	}
	if len(data.Markets.Items) == 0 {
		return marketInfo{}, clierr.New(clierr.CodePrecondition, fmt.Sprintf("Market %s not found", marketID))
	}
	return data.Markets.Items[0], nil
}

// bigintString accepts Morpho BigInt scalars serialized either as JSON strings or numbers.
type bigintString string

func (b *bigintString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*b = "0"
		return nil
	}
	if strings.HasPrefix(raw, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = bigintString(strings.TrimSpace(s))
		return nil
	}
	*b = bigintString(raw)
	return nil
}

func (b bigintString) Int() *big.Int {
	n, ok := new(big.Int).SetString(strings.TrimSpace(string(b)), 10)
	if !ok || n.Sign() < 0 {
		return new(big.Int)
	}
	return n
}
