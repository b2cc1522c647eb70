package host

import (
	"context"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

func openTestStore(t *testing.T) *ProposalStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenProposalStore(filepath.Join(dir, "proposals.db"), filepath.Join(dir, "proposals.lock"))
	if err != nil {
		t.Fatalf("OpenProposalStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRequest() adapter.SendTransactionsRequest {
	return adapter.SendTransactionsRequest{
		ChainID: 146,
		Account: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Transactions: []adapter.TransactionIntent{
			{Target: common.HexToAddress("0x00000000000000000000000000000000000000bb"), Data: []byte{0xde, 0xad}},
			{Target: common.HexToAddress("0x00000000000000000000000000000000000000cc"), Value: big.NewInt(42)},
		},
	}
}

func TestStoreSaveGetList(t *testing.T) {
	store := openTestStore(t)

	p := NewProposal(sampleRequest(), "beets.stake")
	if err := store.Save(p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.Get(p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Source != "beets.stake" || got.ChainID != 146 || len(got.Transactions) != 2 {
		t.Fatalf("unexpected proposal %+v", got)
	}
	if got.Transactions[1].Value.Cmp(big.NewInt(42)) != 0 || got.Transactions[0].Data[1] != 0xad {
		t.Fatalf("intents did not round trip: %+v", got.Transactions)
	}

	got.Status = ProposalExecuted
	got.Touch()
	if err := store.Save(got); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	executed, err := store.List(string(ProposalExecuted), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(executed) != 1 {
		t.Fatalf("expected one executed proposal, got %d", len(executed))
	}
	pending, err := store.List(string(ProposalPending), 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected no pending proposals, got %d (%v)", len(pending), err)
	}
}

func TestStoreGetMissingProposal(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get("missing"); err == nil {
		t.Fatal("expected missing proposal error")
	}
}

func TestProposalSubmitterQueuesBatch(t *testing.T) {
	store := openTestStore(t)
	sub := NewProposalSubmitter(store)

	ctx := WithCaller(context.Background(), "swapx", "vote")
	res, err := sub.Submit(ctx, sampleRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !res.IsMultisigProposal || len(res.Data) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.LastMessage(), "with 2 transactions on chain 146") {
		t.Fatalf("unexpected acknowledgement %q", res.LastMessage())
	}
	list, err := store.List("", 5)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one stored proposal, got %d (%v)", len(list), err)
	}
	if list[0].Source != "swapx.vote" || list[0].Status != ProposalPending {
		t.Fatalf("unexpected stored proposal %+v", list[0])
	}
	if !strings.Contains(res.LastMessage(), list[0].ID) {
		t.Fatal("acknowledgement does not name the proposal id")
	}
}

func TestStoreSetStatus(t *testing.T) {
	store := openTestStore(t)
	p := NewProposal(sampleRequest(), "swapx.vote")
	if err := store.Save(p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.SetStatus(p.ID, ProposalPending); err == nil {
		t.Fatal("expected error for pending target status")
	}
	rejected, err := store.SetStatus(p.ID, ProposalRejected)
	if err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if rejected.Status != ProposalRejected {
		t.Fatalf("unexpected status %s", rejected.Status)
	}
	_, err = store.SetStatus(p.ID, ProposalExecuted)
	if err == nil || !strings.Contains(err.Error(), "already rejected") {
		t.Fatalf("expected already-resolved error, got %v", err)
	}
	if clierr.ExitCode(err) != int(clierr.CodePrecondition) {
		t.Fatalf("unexpected exit code %d", clierr.ExitCode(err))
	}
}
