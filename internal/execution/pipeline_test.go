package execution

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/evmtest"
)

func TestSubmitSurfacesHostFailuresVerbatim(t *testing.T) {
	plan := NewPlan(1, testAccount)
	plan.Add(testToken, []byte{1, 2, 3, 4}, nil)

	host := evmtest.NewHost(evmtest.NewChain())
	host.SendErr = errors.New("user rejected the request")
	_, err := Submit(context.Background(), host, plan)
	if res := adapter.FromError(err); res.Message() != "user rejected the request" {
		t.Fatalf("expected verbatim host error, got %q", res.Message())
	}

	host = evmtest.NewHost(evmtest.NewChain())
	host.HostError = "safe service unavailable"
	_, err = Submit(context.Background(), host, plan)
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeHost || typed.Message != "safe service unavailable" {
		t.Fatalf("unexpected host failure mapping: %v", err)
	}
}

func TestSubmitRejectsEmptyPlan(t *testing.T) {
	host := evmtest.NewHost(evmtest.NewChain())
	if _, err := Submit(context.Background(), host, NewPlan(1, testAccount)); err == nil {
		t.Fatal("expected error for empty plan")
	}
	if len(host.Requests()) != 0 {
		t.Fatal("empty plan must not reach the host")
	}
}

func TestFormatSubmissionMultisigVerbatim(t *testing.T) {
	composed := false
	res := adapter.SubmissionResult{
		IsMultisigProposal: true,
		Data:               []adapter.TransactionOutcome{{Message: "Proposal #12 queued for 2/3 signers"}},
	}
	msg, err := FormatSubmission(res, func() (string, error) {
		composed = true
		return "should not be used", nil
	})
	if err != nil {
		t.Fatalf("FormatSubmission failed: %v", err)
	}
	if msg != "Proposal #12 queued for 2/3 signers" {
		t.Fatalf("expected proposal message verbatim, got %q", msg)
	}
	if composed {
		t.Fatal("compose must not run for multisig proposals")
	}

	msg, err = FormatSubmission(adapter.SubmissionResult{}, func() (string, error) { return "done", nil })
	if err != nil || msg != "done" {
		t.Fatalf("expected composed message, got %q err=%v", msg, err)
	}
}

func TestSnapshotDelta(t *testing.T) {
	value := big.NewInt(100)
	read := func(context.Context) (*big.Int, error) { return new(big.Int).Set(value), nil }
	snap, err := TakeSnapshot(context.Background(), "stS balance", read)
	if err != nil {
		t.Fatalf("TakeSnapshot failed: %v", err)
	}
	value = big.NewInt(175)
	delta, err := snap.Delta(context.Background())
	if err != nil {
		t.Fatalf("Delta failed: %v", err)
	}
	if delta.Int64() != 75 || snap.Before().Int64() != 100 {
		t.Fatalf("unexpected delta %s before %s", delta, snap.Before())
	}

	failing := func(context.Context) (*big.Int, error) { return nil, errors.New("rpc down") }
	if _, err := TakeSnapshot(context.Background(), "x", failing); err == nil {
		t.Fatal("expected snapshot read failure")
	}
}

func TestPluralize(t *testing.T) {
	cases := map[int64]string{0: "0 votes", 1: "1 vote", 5: "5 votes"}
	for n, want := range cases {
		if got := Pluralize(big.NewInt(n), "vote", "votes"); got != want {
			t.Fatalf("Pluralize(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFanOutKeepsOrderAndFailsWhole(t *testing.T) {
	out, err := FanOut(context.Background(), 5, func(_ context.Context, i int) (int, error) { return i * i, nil })
	if err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("index %d: expected %d, got %d", i, i*i, v)
		}
	}

	out, err = FanOut(context.Background(), 5, func(_ context.Context, i int) (int, error) {
		if i == 3 {
			return 0, errors.New("branch failed")
		}
		return i, nil
	})
	if err == nil || out != nil {
		t.Fatalf("expected no partial results on failure, got %v err=%v", out, err)
	}
}

func TestInvocationStages(t *testing.T) {
	host := evmtest.NewHost(nil)
	ctx, inv := Begin(context.Background(), "beets", "unstake", host)
	inv.Enter(StageValidating)
	inv.Enter(StageReading)
	inv.Enter(StageBuilding)
	inv.Notify(ctx, "Preparing unstake")
	res := inv.Done("ok")
	if !res.Success || inv.Stage() != StageDone {
		t.Fatalf("expected done, got %s", inv.Stage())
	}
	want := []Stage{StageStart, StageValidating, StageReading, StageBuilding, StageDone}
	got := inv.History()
	if len(got) != len(want) {
		t.Fatalf("unexpected history %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected history %v", got)
		}
	}
	if notes := host.Notes(); len(notes) != 1 || notes[0] != "Preparing unstake" {
		t.Fatalf("expected notify to reach host, got %v", notes)
	}
}

func TestInvocationFailIsTerminal(t *testing.T) {
	_, inv := Begin(context.Background(), "benqi", "supply", nil)
	inv.Enter(StageValidating)
	res := inv.Fail(clierr.New(clierr.CodeUsage, "Amount must be greater than 0"))
	if res.Success || !res.IsError || inv.Stage() != StageFailed {
		t.Fatalf("unexpected failure result %+v stage=%s", res, inv.Stage())
	}
	if inv.Reason() != "Amount must be greater than 0" {
		t.Fatalf("unexpected reason %q", inv.Reason())
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic entering a stage after failure")
		}
	}()
	inv.Enter(StageReading)
}

func TestInvocationRejectsBackwardTransition(t *testing.T) {
	_, inv := Begin(context.Background(), "swapx", "vote", nil)
	inv.Enter(StageBuilding)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on backward transition")
		}
	}()
	inv.Enter(StageReading)
}
