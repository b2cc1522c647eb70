package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestProtocolABIConstantsParse(t *testing.T) {
	abis := map[string]string{
		"erc20":          ERC20ABI,
		"wrapped-native": WrappedNativeABI,
		"multicall3":     Multicall3ABI,
		"aave-provider":  AavePoolAddressProviderABI,
		"aave-pool":      AavePoolABI,
		"aave-data":      AaveDataProviderABI,
		"aave-rewards":   AaveRewardsABI,
		"morpho-blue":    MorphoBlueABI,
		"beets-sts":      BeetsStakedSonicABI,
		"sonic-sfc":      SonicSFCABI,
		"benqi-market":   BenqiMarketABI,
		"benqi-native":   BenqiNativeMarketABI,
		"benqi-comp":     BenqiComptrollerABI,
		"benqi-gauges":   BenqiGaugeVotingABI,
		"swapx-ve":       SwapXVotingEscrowABI,
		"swapx-voter":    SwapXVoterABI,
		"betswirl-coin":  BetSwirlCoinTossABI,
		"betswirl-dice":  BetSwirlDiceABI,
		"betswirl-bank":  BetSwirlBankABI,
	}
	for name, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse %s abi json: %v", name, err)
		}
	}
}

func TestAaveV3Deployments(t *testing.T) {
	for _, chainID := range []int64{1, 8453, 42161, 10, 137, 43114} {
		dep, ok := AaveV3(chainID)
		if !ok || dep.PoolAddressesProvider == "" || dep.WrappedNative == "" {
			t.Fatalf("expected aave deployment for chain %d, got %+v", chainID, dep)
		}
	}
	if _, ok := AaveV3(146); ok {
		t.Fatal("did not expect aave deployment on sonic")
	}
	chains := AaveV3Chains()
	for i := 1; i < len(chains); i++ {
		if chains[i-1] >= chains[i] {
			t.Fatalf("expected sorted chain ids, got %v", chains)
		}
	}
}

func TestSonicDeployments(t *testing.T) {
	beets, ok := Beets(146)
	if !ok || len(beets.ValidatorIDs) == 0 {
		t.Fatalf("expected beets deployment with validators, got %+v", beets)
	}
	if _, ok := SwapX(146); !ok {
		t.Fatal("expected swapx deployment on sonic")
	}
	if _, ok := Beets(1); ok {
		t.Fatal("did not expect beets deployment on ethereum")
	}
}

func TestBenqiMarketsHaveSingleNativeMarket(t *testing.T) {
	dep, ok := Benqi(43114)
	if !ok {
		t.Fatal("expected benqi deployment on avalanche")
	}
	native := 0
	for _, m := range dep.Markets {
		if m.Native {
			native++
			if m.Underlying != "" {
				t.Fatalf("native market must not carry an underlying token: %+v", m)
			}
		} else if m.Underlying == "" {
			t.Fatalf("erc20 market missing underlying: %+v", m)
		}
	}
	if native != 1 {
		t.Fatalf("expected one native market, got %d", native)
	}
}

func TestDefaultRPCURL(t *testing.T) {
	if rpc, ok := DefaultRPCURL(146); !ok || rpc == "" {
		t.Fatalf("expected sonic rpc default, got ok=%v rpc=%q", ok, rpc)
	}
	if _, ok := DefaultRPCURL(999999); ok {
		t.Fatal("did not expect rpc default for unsupported chain")
	}
}

func TestResolveRPCURL(t *testing.T) {
	override, err := ResolveRPCURL(map[int64]string{1: " https://rpc.example.test "}, 1)
	if err != nil {
		t.Fatalf("resolve with override: %v", err)
	}
	if override != "https://rpc.example.test" {
		t.Fatalf("unexpected override value: %q", override)
	}
	defaultRPC, err := ResolveRPCURL(nil, 1)
	if err != nil || defaultRPC == "" {
		t.Fatalf("expected default rpc, got %q err=%v", defaultRPC, err)
	}
	if _, err := ResolveRPCURL(nil, 999999); err == nil {
		t.Fatal("expected error for unknown chain without override")
	}
}

func TestIsAllowedEndpointOverride(t *testing.T) {
	cases := []struct {
		service  string
		endpoint string
		want     bool
	}{
		{ServiceEnso, "", true},
		{ServiceEnso, "https://api.enso.finance/api/v2", true},
		{ServiceEnso, "http://api.enso.finance/api/v1", false},
		{ServiceEnso, "https://evil.example.com/api/v1", false},
		{ServiceEnso, "https://api.enso.finance:8443/api/v1", false},
		{ServiceMorpho, "http://127.0.0.1:8080/graphql", true},
		{ServiceMorpho, "http://localhost/graphql", true},
		{ServiceBetSwirl, "ftp://localhost/x", false},
		{"unknown", "https://api.enso.finance/api/v1", false},
	}
	for _, tc := range cases {
		if got := IsAllowedEndpointOverride(tc.service, tc.endpoint); got != tc.want {
			t.Fatalf("IsAllowedEndpointOverride(%q, %q) = %v, want %v", tc.service, tc.endpoint, got, tc.want)
		}
	}
}

func TestBetSwirlSubgraphURL(t *testing.T) {
	u, ok := BetSwirlSubgraphURL(8453)
	if !ok || !strings.HasPrefix(u, BetSwirlSubgraphBase) {
		t.Fatalf("unexpected subgraph url %q", u)
	}
	if _, ok := BetSwirlSubgraphURL(1); ok {
		t.Fatal("did not expect betswirl subgraph on ethereum")
	}
}
