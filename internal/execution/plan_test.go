package execution

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/evmtest"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

var (
	testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testSpender = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func chainWithAllowance(allowance *big.Int) *evmtest.Chain {
	chain := evmtest.NewChain()
	chain.Return(testToken, registry.ERC20ABI, "allowance", allowance)
	return chain
}

func TestEnsureAllowanceSkipsWhenSufficient(t *testing.T) {
	for _, allowance := range []*big.Int{big.NewInt(500), big.NewInt(1000)} {
		plan := NewPlan(1, testAccount)
		added, err := plan.EnsureAllowance(context.Background(), chainWithAllowance(allowance), Approval{
			Token: testToken, Spender: testSpender, Amount: big.NewInt(500),
		})
		if err != nil {
			t.Fatalf("EnsureAllowance failed: %v", err)
		}
		if added != 0 || plan.Len() != 0 {
			t.Fatalf("expected no approvals for allowance %s, got %d", allowance, plan.Len())
		}
	}
}

func TestEnsureAllowanceApprovesExactAmount(t *testing.T) {
	plan := NewPlan(1, testAccount)
	added, err := plan.EnsureAllowance(context.Background(), chainWithAllowance(big.NewInt(10)), Approval{
		Token: testToken, Spender: testSpender, Amount: big.NewInt(500),
	})
	if err != nil {
		t.Fatalf("EnsureAllowance failed: %v", err)
	}
	if added != 1 || plan.Len() != 1 {
		t.Fatalf("expected one approval, got %d", plan.Len())
	}
	intent := plan.Intents()[0]
	if intent.Target != testToken {
		t.Fatalf("approval must target the token, got %s", intent.Target.Hex())
	}
	spender, amount := decodeApprove(t, intent.Data)
	if spender != testSpender || amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected approve args spender=%s amount=%s", spender.Hex(), amount)
	}
}

func TestEnsureAllowanceResetsLegacyTokens(t *testing.T) {
	plan := NewPlan(1, testAccount)
	added, err := plan.EnsureAllowance(context.Background(), chainWithAllowance(big.NewInt(10)), Approval{
		Token: testToken, Spender: testSpender, Amount: big.NewInt(500), ResetFirst: true,
	})
	if err != nil {
		t.Fatalf("EnsureAllowance failed: %v", err)
	}
	if added != 2 || plan.Approvals() != 2 {
		t.Fatalf("expected two approvals, got %d", added)
	}
	_, first := decodeApprove(t, plan.Intents()[0].Data)
	_, second := decodeApprove(t, plan.Intents()[1].Data)
	if first.Sign() != 0 || second.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected approve(0) then approve(500), got %s then %s", first, second)
	}

	// A legacy token with zero allowance needs no reset.
	plan = NewPlan(1, testAccount)
	added, err = plan.EnsureAllowance(context.Background(), chainWithAllowance(big.NewInt(0)), Approval{
		Token: testToken, Spender: testSpender, Amount: big.NewInt(500), ResetFirst: true,
	})
	if err != nil || added != 1 {
		t.Fatalf("expected single approval from zero allowance, got %d err=%v", added, err)
	}
}

func TestEnsureAllowanceReadFailure(t *testing.T) {
	chain := evmtest.NewChain()
	chain.Revert(testToken, registry.ERC20ABI, "allowance", "boom")
	plan := NewPlan(1, testAccount)
	if _, err := plan.EnsureAllowance(context.Background(), chain, Approval{Token: testToken, Spender: testSpender, Amount: big.NewInt(1)}); err == nil {
		t.Fatal("expected allowance read failure")
	}
	if plan.Len() != 0 {
		t.Fatal("no intent may be appended when the allowance read fails")
	}
}

func TestWrapLeadsThePlan(t *testing.T) {
	weth := common.HexToAddress("0x4444444444444444444444444444444444444444")
	plan := NewPlan(1, testAccount)
	if _, err := plan.AppendApproval(Approval{Token: weth, Spender: testSpender, Amount: big.NewInt(7)}, big.NewInt(0)); err != nil {
		t.Fatalf("AppendApproval failed: %v", err)
	}
	if err := plan.Wrap(weth, big.NewInt(7)); err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	intents := plan.Intents()
	if len(intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(intents))
	}
	if intents[0].Value.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected deposit to carry value, got %s", intents[0].Value)
	}
	method, err := WrappedNativeABI.MethodById(intents[0].Data[:4])
	if err != nil || method.Name != "deposit" {
		t.Fatalf("expected deposit first, got %v err=%v", method, err)
	}
	req := plan.Request()
	if req.ChainID != 1 || req.Account != testAccount || len(req.Transactions) != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func decodeApprove(t *testing.T, data []byte) (common.Address, *big.Int) {
	t.Helper()
	method, err := ERC20ABI.MethodById(data[:4])
	if err != nil || method.Name != "approve" {
		t.Fatalf("expected approve calldata, got %v err=%v", method, err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack approve: %v", err)
	}
	return args[0].(common.Address), args[1].(*big.Int)
}
