package host

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/signer"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func testSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func fastExecuteOptions() ExecuteOptions {
	opts := DefaultExecuteOptions()
	opts.PollInterval = 10 * time.Millisecond
	opts.ReceiptTimeout = time.Second
	return opts
}

func TestWalletSubmitterSendsIntentsInOrder(t *testing.T) {
	rpc := newTestRPC(t, 146)
	s := testSigner(t)
	providers := NewProviders(map[int64]string{146: rpc.URL})
	defer providers.Close()
	wallet := NewWalletSubmitter(providers, s, fastExecuteOptions())

	first := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	second := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	res, err := wallet.Submit(context.Background(), adapter.SendTransactionsRequest{
		ChainID: 146,
		Account: s.Address(),
		Transactions: []adapter.TransactionIntent{
			{Target: first, Data: []byte{0x01, 0x02, 0x03, 0x04}},
			{Target: second, Data: []byte{0x05}, Value: big.NewInt(7)},
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.IsMultisigProposal || len(res.Data) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	sent := rpc.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected two broadcasts, got %d", len(sent))
	}
	if *sent[0].To() != first || *sent[1].To() != second {
		t.Fatal("transactions broadcast out of order")
	}
	if sent[0].Nonce() != 0 || sent[1].Nonce() != 1 {
		t.Fatalf("unexpected nonces %d, %d", sent[0].Nonce(), sent[1].Nonce())
	}
	if sent[1].Value().Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected value 7, got %s", sent[1].Value())
	}
	if sent[0].Type() != types.DynamicFeeTxType || sent[0].Gas() != 25200 {
		t.Fatalf("expected eip-1559 tx with gas 25200, got type %d gas %d", sent[0].Type(), sent[0].Gas())
	}
	// fee cap = 2 * base fee + tip = 4 gwei
	if sent[0].GasFeeCap().Cmp(big.NewInt(4_000_000_000)) != 0 {
		t.Fatalf("unexpected fee cap %s", sent[0].GasFeeCap())
	}
	if res.Data[1].Hash != sent[1].Hash().Hex() || !strings.HasPrefix(res.Data[1].Message, "Transaction 2 of 2 confirmed") {
		t.Fatalf("unexpected outcome %+v", res.Data[1])
	}
}

func TestWalletSubmitterStopsAtFirstRevert(t *testing.T) {
	rpc := newTestRPC(t, 146)
	s := testSigner(t)
	providers := NewProviders(map[int64]string{146: rpc.URL})
	defer providers.Close()

	bad := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	rpc.revert(bad, "insufficient output amount")
	wallet := NewWalletSubmitter(providers, s, fastExecuteOptions())
	res, err := wallet.Submit(context.Background(), adapter.SendTransactionsRequest{
		ChainID: 146,
		Account: s.Address(),
		Transactions: []adapter.TransactionIntent{
			{Target: common.HexToAddress("0x00000000000000000000000000000000000000b1")},
			{Target: bad},
			{Target: common.HexToAddress("0x00000000000000000000000000000000000000b3")},
		},
	})
	if err == nil {
		t.Fatal("expected revert error")
	}
	if !strings.Contains(err.Error(), "transaction 2 of 3") || !strings.Contains(err.Error(), "insufficient output amount") {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rpc.Sent()) != 1 || len(res.Data) != 1 {
		t.Fatalf("expected only the first transaction to be sent, got %d", len(rpc.Sent()))
	}
}

func TestWalletSubmitterReportsOnChainRevert(t *testing.T) {
	rpc := newTestRPC(t, 146)
	rpc.failReceipts = true
	s := testSigner(t)
	providers := NewProviders(map[int64]string{146: rpc.URL})
	defer providers.Close()

	wallet := NewWalletSubmitter(providers, s, fastExecuteOptions())
	_, err := wallet.Submit(context.Background(), adapter.SendTransactionsRequest{
		ChainID:      146,
		Account:      s.Address(),
		Transactions: []adapter.TransactionIntent{{Target: common.HexToAddress("0x00000000000000000000000000000000000000b1")}},
	})
	if err == nil || !strings.Contains(err.Error(), "reverted on-chain") {
		t.Fatalf("expected on-chain revert, got %v", err)
	}
}

func TestWalletSubmitterRejectsForeignAccountBeforeDial(t *testing.T) {
	s := testSigner(t)
	providers := NewProviders(map[int64]string{146: "http://127.0.0.1:1"})
	wallet := NewWalletSubmitter(providers, s, fastExecuteOptions())
	_, err := wallet.Submit(context.Background(), adapter.SendTransactionsRequest{
		ChainID:      146,
		Account:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Transactions: []adapter.TransactionIntent{{Target: common.HexToAddress("0x01")}},
	})
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestProvidersRejectChainMismatch(t *testing.T) {
	rpc := newTestRPC(t, 1)
	providers := NewProviders(map[int64]string{146: rpc.URL})
	defer providers.Close()
	if _, err := providers.Client(context.Background(), 146); err == nil || !strings.Contains(err.Error(), "reports chain id 1") {
		t.Fatalf("expected chain mismatch, got %v", err)
	}
}

func TestProvidersReuseClient(t *testing.T) {
	rpc := newTestRPC(t, 146)
	providers := NewProviders(map[int64]string{146: rpc.URL})
	defer providers.Close()
	a, err := providers.Client(context.Background(), 146)
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}
	b, err := providers.Client(context.Background(), 146)
	if err != nil || a != b {
		t.Fatalf("expected cached client, err=%v", err)
	}
	if rpc.Count("eth_chainId") != 1 {
		t.Fatalf("expected one chain id lookup, got %d", rpc.Count("eth_chainId"))
	}
}

type testRPCDataError struct {
	msg  string
	data any
}

func (e testRPCDataError) Error() string { return e.msg }

func (e testRPCDataError) ErrorData() interface{} { return e.data }

func TestDecodeRevertDataReasonString(t *testing.T) {
	if reason := decodeRevertData(encodeErrorString(t, "slippage too high")); reason != "slippage too high" {
		t.Fatalf("expected decoded revert reason, got %q", reason)
	}
}

func TestDecodeRevertDataCustomErrorSelector(t *testing.T) {
	if reason := decodeRevertData(common.FromHex("0x12345678")); !strings.Contains(reason, "0x12345678") {
		t.Fatalf("expected custom error selector in reason, got %q", reason)
	}
}

func TestWrapEVMExecutionErrorIncludesDecodedRevert(t *testing.T) {
	rootErr := testRPCDataError{
		msg:  "execution reverted",
		data: "0x" + common.Bytes2Hex(encodeErrorString(t, "panic path")),
	}
	wrapped := wrapEVMExecutionError(clierr.CodeHost, "simulate (eth_call)", rootErr)
	var typed *clierr.Error
	if !errors.As(wrapped, &typed) {
		t.Fatalf("expected typed error, got %T", wrapped)
	}
	if !strings.Contains(typed.Error(), "panic path") {
		t.Fatalf("expected decoded reason in wrapped error, got: %v", typed)
	}
}

func TestAcquireSignerNonceLockSerializesSameSignerChain(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	unlock := acquireSignerNonceLock(big.NewInt(1), account)
	secondAcquired := make(chan struct{})
	go func() {
		unlockSecond := acquireSignerNonceLock(big.NewInt(1), account)
		close(secondAcquired)
		unlockSecond()
	}()

	select {
	case <-secondAcquired:
		t.Fatal("expected second lock attempt to block while first lock is held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-secondAcquired:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("expected second lock attempt to acquire after unlock")
	}
}

func TestParseGwei(t *testing.T) {
	v, err := parseGwei("1.5")
	if err != nil || v.Cmp(big.NewInt(1_500_000_000)) != 0 {
		t.Fatalf("unexpected parse: %v %v", v, err)
	}
	if _, err := parseGwei("0.0000000001"); err == nil {
		t.Fatal("expected sub-wei value to fail")
	}
	if _, err := resolveFeeCap(big.NewInt(1), big.NewInt(5_000_000_000), "1"); err == nil {
		t.Fatal("expected fee cap below tip to fail")
	}
}
