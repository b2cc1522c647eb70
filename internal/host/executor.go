package host

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/signer"
)

type ExecuteOptions struct {
	PollInterval       time.Duration
	ReceiptTimeout     time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
		GasMultiplier:  1.2,
	}
}

// WalletSubmitter signs and broadcasts each intent in order with a local key, waiting
// for every receipt before sending the next transaction.
type WalletSubmitter struct {
	providers *Providers
	signer    signer.Signer
	opts      ExecuteOptions
}

func NewWalletSubmitter(providers *Providers, txSigner signer.Signer, opts ExecuteOptions) *WalletSubmitter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &WalletSubmitter{providers: providers, signer: txSigner, opts: opts}
}

func (w *WalletSubmitter) Mode() string { return ModeWallet }

func (w *WalletSubmitter) Submit(ctx context.Context, req adapter.SendTransactionsRequest) (adapter.SubmissionResult, error) {
	if w.signer == nil {
		return adapter.SubmissionResult{}, clierr.New(clierr.CodeAuth, "missing signer")
	}
	if w.signer.Address() != req.Account {
		return adapter.SubmissionResult{}, clierr.New(clierr.CodeAuth, fmt.Sprintf("Signer %s cannot send transactions for account %s", w.signer.Address().Hex(), req.Account.Hex()))
	}
	client, err := w.providers.Client(ctx, req.ChainID)
	if err != nil {
		return adapter.SubmissionResult{}, err
	}

	unlock := acquireSignerNonceLock(big.NewInt(req.ChainID), req.Account)
	defer unlock()

	total := len(req.Transactions)
	res := adapter.SubmissionResult{}
	for i, intent := range req.Transactions {
		hash, err := w.send(ctx, client, intent)
		if err != nil {
			logrus.WithFields(logrus.Fields{"chain_id": req.ChainID, "index": i + 1}).Warnf("wallet submission failed: %v", err)
			return res, fmt.Errorf("transaction %d of %d failed: %w", i+1, total, err)
		}
		res.Data = append(res.Data, adapter.TransactionOutcome{
			Hash:    hash.Hex(),
			Message: fmt.Sprintf("Transaction %d of %d confirmed: %s", i+1, total, hash.Hex()),
		})
	}
	return res, nil
}

func (w *WalletSubmitter) send(ctx context.Context, client *ethclient.Client, intent adapter.TransactionIntent) (common.Hash, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	target := intent.Target
	value := intent.Value
	if value == nil {
		value = new(big.Int)
	}
	from := w.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &target, Value: value, Data: intent.Data}

	if _, err := client.CallContract(ctx, msg, nil); err != nil {
		return common.Hash{}, wrapEVMExecutionError(clierr.CodeHost, "simulate (eth_call)", err)
	}
	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, wrapEVMExecutionError(clierr.CodeHost, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * w.opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, client, w.opts.MaxPriorityFeeGwei)
	if err != nil {
		return common.Hash{}, err
	}
	baseFee, err := baseFeeAtBlockTag(ctx, client, EstimateBlockTagLatest)
	if err != nil {
		return common.Hash{}, err
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, w.opts.MaxFeeGwei)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      intent.Data,
	})
	signed, err := w.signer.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeAuth, "sign transaction", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return signed.Hash(), w.waitReceipt(ctx, client, signed.Hash())
}

func (w *WalletSubmitter) waitReceipt(ctx context.Context, client *ethclient.Client, hash common.Hash) error {
	waitCtx, cancel := context.WithTimeout(ctx, w.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return clierr.New(clierr.CodeHost, fmt.Sprintf("transaction %s reverted on-chain", hash.Hex()))
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logrus.WithField("tx", hash.Hex()).Debugf("receipt poll: %v", err)
		}
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeUnavailable, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

var signerNonceLocks sync.Map

// acquireSignerNonceLock serializes batches from one account on one chain so
// concurrent requests never race for the same pending nonce.
func acquireSignerNonceLock(chainID *big.Int, account common.Address) func() {
	key := chainID.String() + ":" + strings.ToLower(account.Hex())
	v, _ := signerNonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func resolveTipCap(ctx context.Context, client *ethclient.Client, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	return feeCap.Add(feeCap, tipCap), nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}
