package swapx

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/evmtest"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testVE      = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	testVoter   = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	testSWPx    = common.HexToAddress("0x0000000000000000000000000000000000000e03")
	testPool    = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	testGauge   = common.HexToAddress("0x0000000000000000000000000000000000000f02")
)

const now = 1_700_000_000

var oneSWPx = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func swpx(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), oneSWPx) }

func newTestAdapter(chain *evmtest.Chain) adapter.Adapter {
	return New(Config{
		Deployments: map[int64]registry.SwapXDeployment{
			146: {VotingEscrow: testVE.Hex(), Voter: testVoter.Hex(), SWPx: testSWPx.Hex()},
		},
		Multicall: chain.Multicall,
	})
}

func props(kv ...string) adapter.Props {
	out := adapter.Props{"chainName": "sonic", "account": testAccount.Hex()}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

// lockChain serves three locks enumerated as 42, 7, 19. Lock 7 has expired.
func lockChain() *evmtest.Chain {
	chain := evmtest.NewChain()
	chain.Timestamp = big.NewInt(now)
	ids := []int64{42, 7, 19}
	ends := map[int64]int64{42: now + 86400, 7: now - 1, 19: now + 365*86400}
	chain.Return(testVE, registry.SwapXVotingEscrowABI, "balanceOf", big.NewInt(int64(len(ids))))
	chain.Handle(testVE, registry.SwapXVotingEscrowABI, "tokenOfOwnerByIndex", func(args []any) ([]any, error) {
		return []any{big.NewInt(ids[args[1].(*big.Int).Int64()])}, nil
	})
	chain.Handle(testVE, registry.SwapXVotingEscrowABI, "locked", func(args []any) ([]any, error) {
		tokenID := args[0].(*big.Int).Int64()
		return []any{swpx(tokenID), big.NewInt(ends[tokenID])}, nil
	})
	chain.Handle(testVE, registry.SwapXVotingEscrowABI, "voted", func(args []any) ([]any, error) {
		return []any{args[0].(*big.Int).Int64() == 19}, nil
	})
	chain.Return(testVE, registry.SwapXVotingEscrowABI, "ownerOf", testAccount)
	chain.Return(testVE, registry.SwapXVotingEscrowABI, "attachments", big.NewInt(0))
	return chain
}

func TestReadLocksKeepsOrderAndOneTimestamp(t *testing.T) {
	chain := lockChain()
	s := &swapx{cfg: Config{Multicall: chain.Multicall}}
	locks, err := s.readLocks(context.Background(), chain, testVE, testAccount)
	if err != nil {
		t.Fatalf("readLocks failed: %v", err)
	}
	wantIDs := []int64{42, 7, 19}
	wantVesting := []bool{true, false, true}
	if len(locks) != len(wantIDs) {
		t.Fatalf("expected %d locks, got %d", len(wantIDs), len(locks))
	}
	for i, l := range locks {
		if l.TokenID.Int64() != wantIDs[i] {
			t.Fatalf("lock %d: expected id %d, got %s", i, wantIDs[i], l.TokenID)
		}
		if l.IsVesting != wantVesting[i] {
			t.Fatalf("lock %d: expected isVesting=%v", i, wantVesting[i])
		}
		if l.Amount.Cmp(swpx(wantIDs[i])) != 0 {
			t.Fatalf("lock %d: unexpected amount %s", i, l.Amount)
		}
	}
	if !locks[2].Voted || locks[0].Voted {
		t.Fatal("unexpected voted flags")
	}
	if n := chain.CallCount("getCurrentBlockTimestamp"); n != 1 {
		t.Fatalf("expected a single block timestamp read, got %d", n)
	}
	if chain.Batches() != 2 {
		t.Fatalf("expected id batch and state batch, got %d batches", chain.Batches())
	}
}

func TestGetLocksMessage(t *testing.T) {
	chain := lockChain()
	res := newTestAdapter(chain).Invoke(context.Background(), "getLocks", props(), evmtest.NewHost(chain))
	if !res.Success {
		t.Fatalf("getLocks failed: %s", res.Message())
	}
	lines := strings.Split(res.Message(), "\n")
	if len(lines) != 4 || lines[0] != "Found 3 locks:" {
		t.Fatalf("unexpected message %q", res.Message())
	}
	if !strings.HasPrefix(lines[1], "- #42: 42 SWPx, vesting until") || lines[2] != "- #7: 7 SWPx, expired, not voted" || !strings.HasSuffix(lines[3], ", voted") {
		t.Fatalf("unexpected lock lines %q", lines)
	}
}

func TestGetLocksEmpty(t *testing.T) {
	chain := evmtest.NewChain()
	chain.Return(testVE, registry.SwapXVotingEscrowABI, "balanceOf", big.NewInt(0))
	res := newTestAdapter(chain).Invoke(context.Background(), "getLocks", props(), evmtest.NewHost(chain))
	if !res.Success || res.Message() != "No veSWPx locks found" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestValidationFailuresTouchNothing(t *testing.T) {
	cases := []struct {
		name  string
		fn    string
		props adapter.Props
		want  string
	}{
		{"no wallet", "getLocks", adapter.Props{"chainName": "sonic"}, validate.MsgWalletNotConnected},
		{"unsupported chain", "vote", adapter.Props{"chainName": "ethereum", "account": testAccount.Hex(), "tokenId": "1"}, "Protocol is not supported on ethereum"},
		{"zero amount", "increaseLockAmount", props("tokenId", "7", "amount", "0"), validate.MsgAmountNotPositive},
		{"bad pool", "vote", props("tokenId", "7", "pools", "nope", "weights", "1"), "Invalid pool: nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain := lockChain()
			host := evmtest.NewHost(chain)
			res := newTestAdapter(chain).Invoke(context.Background(), tc.fn, tc.props, host)
			if res.Success || res.Message() != tc.want {
				t.Fatalf("expected %q, got %+v", tc.want, res)
			}
			if host.Touched() {
				t.Fatal("validation failure must not touch the host")
			}
		})
	}
}

func TestWithdrawLockPreconditions(t *testing.T) {
	chain := lockChain()
	host := evmtest.NewHost(chain)
	a := newTestAdapter(chain)

	res := a.Invoke(context.Background(), "withdrawLock", props("tokenId", "42"), host)
	if res.Success || !strings.Contains(res.Message(), "still vesting") {
		t.Fatalf("expected vesting failure, got %+v", res)
	}
	res = a.Invoke(context.Background(), "withdrawLock", props("tokenId", "19"), host)
	if res.Success || !strings.Contains(res.Message(), "Reset votes before withdrawing") {
		t.Fatalf("expected voted failure, got %+v", res)
	}
	res = a.Invoke(context.Background(), "withdrawLock", props("tokenId", "7"), host)
	if !res.Success || res.Message() != "Successfully withdrew 7 SWPx from lock #7" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(host.Requests()) != 1 {
		t.Fatalf("expected a single submission, got %d", len(host.Requests()))
	}
}

func TestWithdrawLockRequiresOwner(t *testing.T) {
	chain := lockChain()
	chain.Return(testVE, registry.SwapXVotingEscrowABI, "ownerOf", testPool)
	res := newTestAdapter(chain).Invoke(context.Background(), "withdrawLock", props("tokenId", "7"), evmtest.NewHost(chain))
	if res.Success || !strings.Contains(res.Message(), "is not owned by") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestVoteRequiresGauge(t *testing.T) {
	chain := lockChain()
	chain.Return(testVoter, registry.SwapXVoterABI, "gauges", common.Address{})
	res := newTestAdapter(chain).Invoke(context.Background(), "vote", props("tokenId", "42", "pools", testPool.Hex(), "weights", "100"), evmtest.NewHost(chain))
	if res.Success || !strings.Contains(res.Message(), "has no gauge") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestVoteBuildsVoterCall(t *testing.T) {
	chain := lockChain()
	chain.Return(testVoter, registry.SwapXVoterABI, "gauges", testGauge)
	host := evmtest.NewHost(chain)
	res := newTestAdapter(chain).Invoke(context.Background(), "vote", props("tokenId", "42", "pools", testPool.Hex(), "weights", "100"), host)
	if !res.Success || res.Message() != "Successfully voted with lock #42 for 1 pool" {
		t.Fatalf("unexpected result %+v", res)
	}
	tx := host.Requests()[0].Transactions[0]
	args, err := voterABI.Methods["vote"].Inputs.Unpack(tx.Data[4:])
	if err != nil {
		t.Fatalf("decode vote: %v", err)
	}
	if tx.Target != testVoter || args[0].(*big.Int).Int64() != 42 || args[1].([]common.Address)[0] != testPool {
		t.Fatalf("unexpected vote call %v", args)
	}
}

func TestResetVotesRequiresVotes(t *testing.T) {
	chain := lockChain()
	res := newTestAdapter(chain).Invoke(context.Background(), "resetVotes", props("tokenId", "42"), evmtest.NewHost(chain))
	if res.Success || !strings.Contains(res.Message(), "has no active votes") {
		t.Fatalf("unexpected result %+v", res)
	}
	res = newTestAdapter(chain).Invoke(context.Background(), "resetVotes", props("tokenId", "19"), evmtest.NewHost(chain))
	if !res.Success || res.Message() != "Successfully reset votes for lock #19" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestIncreaseLockAmountApproves(t *testing.T) {
	chain := lockChain()
	chain.Return(testSWPx, registry.ERC20ABI, "balanceOf", swpx(100))
	chain.Return(testSWPx, registry.ERC20ABI, "allowance", big.NewInt(0))
	host := evmtest.NewHost(chain)
	res := newTestAdapter(chain).Invoke(context.Background(), "increaseLockAmount", props("tokenId", "42", "amount", "8"), host)
	if !res.Success || res.Message() != "Successfully added 8 SWPx to lock #42. Lock now holds 50 SWPx" {
		t.Fatalf("unexpected result %+v", res)
	}
	txs := host.Requests()[0].Transactions
	if len(txs) != 2 || txs[0].Target != testSWPx || txs[1].Target != testVE {
		t.Fatalf("expected approve then increase_amount, got %+v", txs)
	}
}

func TestIncreaseLockAmountMultisig(t *testing.T) {
	chain := lockChain()
	chain.Return(testSWPx, registry.ERC20ABI, "balanceOf", swpx(100))
	chain.Return(testSWPx, registry.ERC20ABI, "allowance", swpx(100))
	host := evmtest.NewHost(chain)
	host.Multisig = true
	host.ProposalMessage = "Proposal submitted to the Safe transaction service"
	res := newTestAdapter(chain).Invoke(context.Background(), "increaseLockAmount", props("tokenId", "42", "amount", "8"), host)
	if !res.Success || res.Message() != host.ProposalMessage {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := len(host.Requests()[0].Transactions); n != 1 {
		t.Fatalf("expected no approval with sufficient allowance, got %d intents", n)
	}
}
