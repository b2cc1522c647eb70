package morpho

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/evmtest"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

const testMarketID = "0x64d65c9a2d91c36d56fbc42d69e979335320169b3df63bf92789e2c8883fcc64"

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testMorpho  = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	testUSDC    = common.HexToAddress("0x0000000000000000000000000000000000000d02")
	testCBBTC   = common.HexToAddress("0x0000000000000000000000000000000000000d03")
	testOracle  = common.HexToAddress("0x0000000000000000000000000000000000000d04")
	testIRM     = common.HexToAddress("0x0000000000000000000000000000000000000d05")
)

func usdc(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000)) }

// shares converts assets into Morpho supply shares at a 1:1 price.
func shares(assets *big.Int) *big.Int { return new(big.Int).Mul(assets, big.NewInt(1_000_000)) }

type graphServer struct {
	*httptest.Server
	hits  atomic.Int32
	empty bool
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()
	g := &graphServer{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.hits.Add(1)
		var body struct {
			Variables map[string]any `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if g.empty || body.Variables["key"] != testMarketID {
			_, _ = w.Write([]byte(`{"data":{"markets":{"items":[]}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"markets":{"items":[{
			"uniqueKey":"` + testMarketID + `",
			"irmAddress":"` + testIRM.Hex() + `",
			"lltv":"860000000000000000",
			"morphoBlue":{"address":"` + testMorpho.Hex() + `"},
			"oracle":{"address":"` + testOracle.Hex() + `"},
			"loanAsset":{"address":"` + testUSDC.Hex() + `","symbol":"USDC","decimals":6},
			"collateralAsset":{"address":"` + testCBBTC.Hex() + `","symbol":"cbBTC","decimals":8},
			"state":{"supplyAssets":"1000000000000","borrowAssets":900000000000,"liquidityAssets":"100000000000","utilization":0.9,"supplyApy":0.0412,"borrowApy":0.0501}
		}]}}}`))
	}))
	t.Cleanup(g.Close)
	return g
}

func newTestAdapter(chain *evmtest.Chain, endpoint string) adapter.Adapter {
	return New(Config{
		Deployments: map[int64]string{1: testMorpho.Hex()},
		Endpoint:    endpoint,
		Multicall:   chain.Multicall,
	})
}

// setPosition serves a market holding 1000 USDC supplied and borrowed as given.
func setPosition(chain *evmtest.Chain, supplied, borrowed, collateral, totalBorrow *big.Int) {
	totalSupply := usdc(1000)
	chain.Return(testMorpho, registry.MorphoBlueABI, "market",
		totalSupply, shares(totalSupply), totalBorrow, shares(totalBorrow), big.NewInt(1_700_000_000), big.NewInt(0))
	chain.Return(testMorpho, registry.MorphoBlueABI, "position", shares(supplied), shares(borrowed), collateral)
}

func props(kv ...string) adapter.Props {
	out := adapter.Props{"chainName": "ethereum", "account": testAccount.Hex(), "marketId": testMarketID}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func TestSupplyApprovesAndSupplies(t *testing.T) {
	g := newGraphServer(t)
	chain := evmtest.NewChain()
	setPosition(chain, big.NewInt(0), big.NewInt(0), big.NewInt(0), usdc(500))
	chain.Return(testUSDC, registry.ERC20ABI, "balanceOf", usdc(250))
	chain.Return(testUSDC, registry.ERC20ABI, "allowance", big.NewInt(0))
	host := evmtest.NewHost(chain)

	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "supplyToMarket", props("amount", "100"), host)
	if !res.Success || res.Message() != "Successfully supplied 100 USDC to Morpho market cbBTC/USDC" {
		t.Fatalf("unexpected result %+v", res)
	}
	txs := host.Requests()[0].Transactions
	if len(txs) != 2 || txs[0].Target != testUSDC || txs[1].Target != testMorpho {
		t.Fatalf("expected approve then supply, got %+v", txs)
	}
	approve, err := execution.ERC20ABI.Methods["approve"].Inputs.Unpack(txs[0].Data[4:])
	if err != nil {
		t.Fatalf("decode approve: %v", err)
	}
	if approve[0].(common.Address) != testMorpho || approve[1].(*big.Int).Cmp(usdc(100)) != 0 {
		t.Fatalf("unexpected approve %v", approve)
	}
	supply, err := morphoBlueABI.Methods["supply"].Inputs.Unpack(txs[1].Data[4:])
	if err != nil {
		t.Fatalf("decode supply: %v", err)
	}
	if supply[1].(*big.Int).Cmp(usdc(100)) != 0 || supply[2].(*big.Int).Sign() != 0 || supply[3].(common.Address) != testAccount {
		t.Fatalf("unexpected supply args %v", supply)
	}
}

func TestSupplySkipsApprovalWhenAllowanceCovers(t *testing.T) {
	g := newGraphServer(t)
	chain := evmtest.NewChain()
	setPosition(chain, big.NewInt(0), big.NewInt(0), big.NewInt(0), usdc(500))
	chain.Return(testUSDC, registry.ERC20ABI, "balanceOf", usdc(250))
	chain.Return(testUSDC, registry.ERC20ABI, "allowance", usdc(100))
	host := evmtest.NewHost(chain)

	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "supplyToMarket", props("amount", "100"), host)
	if !res.Success {
		t.Fatalf("supply failed: %s", res.Message())
	}
	if n := len(host.Requests()[0].Transactions); n != 1 {
		t.Fatalf("expected a single supply intent, got %d", n)
	}
}

func TestValidationHappensBeforeAnyIO(t *testing.T) {
	cases := []struct {
		name  string
		fn    string
		props adapter.Props
		want  string
	}{
		{"no wallet", "supplyToMarket", adapter.Props{"chainName": "ethereum", "marketId": testMarketID, "amount": "1"}, validate.MsgWalletNotConnected},
		{"unsupported chain", "borrowFromMarket", adapter.Props{"chainName": "avalanche", "account": testAccount.Hex(), "marketId": testMarketID, "amount": "1"}, "Protocol is not supported on avalanche"},
		{"bad market id", "withdrawFromMarket", props("marketId", "0x1234", "amount", "1"), "Invalid market id: 0x1234"},
		{"missing market id", "repayToMarket", props("marketId", "", "amount", "1"), "Market id is required"},
		{"zero amount", "repayToMarket", props("amount", "0"), validate.MsgAmountNotPositive},
		{"market info chain", "getMarketInfo", adapter.Props{"chainName": "sonic", "account": testAccount.Hex(), "marketId": testMarketID}, "Protocol is not supported on sonic"},
		{"market info no wallet", "getMarketInfo", adapter.Props{"chainName": "ethereum", "marketId": testMarketID}, validate.MsgWalletNotConnected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newGraphServer(t)
			chain := evmtest.NewChain()
			host := evmtest.NewHost(chain)
			res := newTestAdapter(chain, g.URL).Invoke(context.Background(), tc.fn, tc.props, host)
			if res.Success || res.Message() != tc.want {
				t.Fatalf("expected %q, got %+v", tc.want, res)
			}
			if host.Touched() || g.hits.Load() != 0 {
				t.Fatal("validation failure must not reach the host or the API")
			}
		})
	}
}

func TestAmountPrecisionCheckedAgainstLoanToken(t *testing.T) {
	g := newGraphServer(t)
	chain := evmtest.NewChain()
	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "supplyToMarket", props("amount", "1.0000001"), evmtest.NewHost(chain))
	if res.Success || res.Message() != "Amount precision exceeds token decimals (6)" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWithdrawPreconditions(t *testing.T) {
	g := newGraphServer(t)

	chain := evmtest.NewChain()
	setPosition(chain, usdc(50), big.NewInt(0), big.NewInt(0), usdc(500))
	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "withdrawFromMarket", props("amount", "60"), evmtest.NewHost(chain))
	if res.Success || res.Message() != "Insufficient supplied balance. Supplied 50 USDC, requested 60 USDC" {
		t.Fatalf("unexpected result %+v", res)
	}

	chain = evmtest.NewChain()
	setPosition(chain, usdc(200), big.NewInt(0), big.NewInt(0), usdc(950))
	res = newTestAdapter(chain, g.URL).Invoke(context.Background(), "withdrawFromMarket", props("amount", "60"), evmtest.NewHost(chain))
	if res.Success || res.Message() != "Insufficient liquidity in market cbBTC/USDC. Available 50 USDC" {
		t.Fatalf("unexpected result %+v", res)
	}

	chain = evmtest.NewChain()
	setPosition(chain, usdc(200), big.NewInt(0), big.NewInt(0), usdc(500))
	host := evmtest.NewHost(chain)
	res = newTestAdapter(chain, g.URL).Invoke(context.Background(), "withdrawFromMarket", props("amount", "60"), host)
	if !res.Success || res.Message() != "Successfully withdrew 60 USDC from Morpho market cbBTC/USDC" {
		t.Fatalf("unexpected result %+v", res)
	}
	args, err := morphoBlueABI.Methods["withdraw"].Inputs.Unpack(host.Requests()[0].Transactions[0].Data[4:])
	if err != nil {
		t.Fatalf("decode withdraw: %v", err)
	}
	if args[3].(common.Address) != testAccount || args[4].(common.Address) != testAccount {
		t.Fatalf("unexpected withdraw args %v", args)
	}
}

func TestBorrowRequiresCollateral(t *testing.T) {
	g := newGraphServer(t)
	chain := evmtest.NewChain()
	setPosition(chain, big.NewInt(0), big.NewInt(0), big.NewInt(0), usdc(500))
	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "borrowFromMarket", props("amount", "10"), evmtest.NewHost(chain))
	if res.Success || res.Message() != "No collateral supplied to market cbBTC/USDC. Supply collateral first" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestBorrowMultisigReturnsProposal(t *testing.T) {
	g := newGraphServer(t)
	chain := evmtest.NewChain()
	setPosition(chain, big.NewInt(0), big.NewInt(0), big.NewInt(100_000_000), usdc(500))
	host := evmtest.NewHost(chain)
	host.Multisig = true
	host.ProposalMessage = "Proposal 0xabc queued for signatures"
	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "borrowFromMarket", props("amount", "10"), host)
	if !res.Success || res.Message() != host.ProposalMessage {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRepayChecksDebt(t *testing.T) {
	g := newGraphServer(t)

	chain := evmtest.NewChain()
	setPosition(chain, big.NewInt(0), big.NewInt(0), big.NewInt(0), usdc(500))
	chain.Return(testUSDC, registry.ERC20ABI, "balanceOf", usdc(100))
	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "repayToMarket", props("amount", "10"), evmtest.NewHost(chain))
	if res.Success || res.Message() != "No outstanding USDC debt in market cbBTC/USDC" {
		t.Fatalf("unexpected result %+v", res)
	}

	chain = evmtest.NewChain()
	setPosition(chain, big.NewInt(0), usdc(20), big.NewInt(1), usdc(500))
	chain.Return(testUSDC, registry.ERC20ABI, "balanceOf", usdc(100))
	res = newTestAdapter(chain, g.URL).Invoke(context.Background(), "repayToMarket", props("amount", "30"), evmtest.NewHost(chain))
	if res.Success || res.Message() != "Repay amount exceeds outstanding debt of 20 USDC" {
		t.Fatalf("unexpected result %+v", res)
	}

	chain = evmtest.NewChain()
	setPosition(chain, big.NewInt(0), usdc(20), big.NewInt(1), usdc(500))
	chain.Return(testUSDC, registry.ERC20ABI, "balanceOf", usdc(100))
	chain.Return(testUSDC, registry.ERC20ABI, "allowance", big.NewInt(0))
	host := evmtest.NewHost(chain)
	res = newTestAdapter(chain, g.URL).Invoke(context.Background(), "repayToMarket", props("amount", "10"), host)
	if !res.Success || res.Message() != "Successfully repaid 10 USDC to Morpho market cbBTC/USDC" {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := len(host.Requests()[0].Transactions); n != 2 {
		t.Fatalf("expected approve + repay, got %d", n)
	}
}

func TestUnknownMarket(t *testing.T) {
	g := newGraphServer(t)
	g.empty = true
	chain := evmtest.NewChain()
	host := evmtest.NewHost(chain)
	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "supplyToMarket", props("amount", "1"), host)
	if res.Success || res.Message() != "Market "+testMarketID+" not found" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(host.Requests()) != 0 {
		t.Fatal("nothing should be submitted")
	}
}

func TestGetMarketInfo(t *testing.T) {
	g := newGraphServer(t)
	chain := evmtest.NewChain()
	res := newTestAdapter(chain, g.URL).Invoke(context.Background(), "getMarketInfo", adapter.Props{"chainName": "ethereum", "account": testAccount.Hex(), "marketId": strings.ToUpper(testMarketID[2:])}, evmtest.NewHost(chain))
	if res.Success {
		t.Fatal("expected a 0x prefix requirement")
	}
	res = newTestAdapter(chain, g.URL).Invoke(context.Background(), "getMarketInfo", adapter.Props{"chainName": "ethereum", "account": testAccount.Hex(), "marketId": testMarketID}, evmtest.NewHost(chain))
	if !res.Success {
		t.Fatalf("getMarketInfo failed: %s", res.Message())
	}
	for _, want := range []string{
		"Market cbBTC/USDC (" + testMarketID + ")",
		"LLTV: 86%",
		"Total supplied: 1000000 USDC",
		"Total borrowed: 900000 USDC",
		"Available liquidity: 100000 USDC",
		"Utilization: 90.00%",
		"Supply APY: 4.12%",
		"Borrow APY: 5.01%",
	} {
		if !strings.Contains(res.Message(), want) {
			t.Fatalf("missing %q in %q", want, res.Message())
		}
	}
}

func TestDefaultAdapterIsConsistent(t *testing.T) {
	if err := Default().Check(); err != nil {
		t.Fatal(err)
	}
}
