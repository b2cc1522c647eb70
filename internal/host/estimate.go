package host

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/id"
)

type EstimateBlockTag string

const (
	EstimateBlockTagLatest  EstimateBlockTag = "latest"
	EstimateBlockTagPending EstimateBlockTag = "pending"
)

type EstimateOptions struct {
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	BlockTag           EstimateBlockTag
}

func DefaultEstimateOptions() EstimateOptions {
	return EstimateOptions{
		GasMultiplier: 1.2,
		BlockTag:      EstimateBlockTagPending,
	}
}

// IntentEstimate is the simulation outcome of one intent.
type IntentEstimate struct {
	Index        int
	Reverted     bool
	Reason       string
	GasLimit     uint64
	LikelyFeeWei *big.Int
}

// DryRunSubmitter simulates each intent with eth_call and estimates its gas without
// signing anything. Nothing executes, so the batch is reported like a proposal and
// adapters skip their post-submission reads.
type DryRunSubmitter struct {
	providers *Providers
	opts      EstimateOptions
}

func NewDryRunSubmitter(providers *Providers, opts EstimateOptions) *DryRunSubmitter {
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &DryRunSubmitter{providers: providers, opts: opts}
}

func (d *DryRunSubmitter) Mode() string { return ModeDryRun }

func (d *DryRunSubmitter) Submit(ctx context.Context, req adapter.SendTransactionsRequest) (adapter.SubmissionResult, error) {
	estimates, err := d.Estimate(ctx, req)
	if err != nil {
		return adapter.SubmissionResult{}, err
	}
	symbol := "native"
	if chain, ok := id.ChainByID(req.ChainID); ok {
		symbol = chain.NativeSymbol
	}

	total := len(estimates)
	res := adapter.SubmissionResult{IsMultisigProposal: true}
	lines := make([]string, 0, total+1)
	fees := new(big.Int)
	for _, est := range estimates {
		var msg string
		if est.Reverted {
			msg = fmt.Sprintf("Transaction %d of %d to %s would revert: %s", est.Index+1, total, req.Transactions[est.Index].Target.Hex(), est.Reason)
			if est.Index > 0 {
				msg += " (it may depend on earlier transactions in the batch)"
			}
		} else {
			fees.Add(fees, est.LikelyFeeWei)
			msg = fmt.Sprintf("Transaction %d of %d to %s simulated, gas limit %d, fee about %s %s",
				est.Index+1, total, req.Transactions[est.Index].Target.Hex(), est.GasLimit,
				id.FormatUnitsPrecision(est.LikelyFeeWei, 18, 8), symbol)
		}
		res.Data = append(res.Data, adapter.TransactionOutcome{Message: msg})
		lines = append(lines, msg)
	}
	summary := fmt.Sprintf("Dry run of %d transaction(s) on chain %d, nothing was sent. Estimated fees about %s %s",
		total, req.ChainID, id.FormatUnitsPrecision(fees, 18, 8), symbol)
	res.Data = append(res.Data, adapter.TransactionOutcome{Message: summary + "\n" + strings.Join(lines, "\n")})
	return res, nil
}

// Estimate simulates every intent independently against the current state.
func (d *DryRunSubmitter) Estimate(ctx context.Context, req adapter.SendTransactionsRequest) ([]IntentEstimate, error) {
	blockTag, err := normalizeEstimateBlockTag(d.opts.BlockTag)
	if err != nil {
		return nil, err
	}
	client, err := d.providers.Client(ctx, req.ChainID)
	if err != nil {
		return nil, err
	}
	tipCap, err := resolveTipCap(ctx, client, d.opts.MaxPriorityFeeGwei)
	if err != nil {
		return nil, err
	}
	baseFee, err := baseFeeAtBlockTag(ctx, client, blockTag)
	if err != nil {
		return nil, err
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, d.opts.MaxFeeGwei)
	if err != nil {
		return nil, err
	}
	effective := new(big.Int).Add(baseFee, tipCap)
	if effective.Cmp(feeCap) > 0 {
		effective = new(big.Int).Set(feeCap)
	}

	out := make([]IntentEstimate, 0, len(req.Transactions))
	for i, intent := range req.Transactions {
		target := intent.Target
		value := intent.Value
		if value == nil {
			value = new(big.Int)
		}
		msg := ethereum.CallMsg{From: req.Account, To: &target, Value: value, Data: intent.Data}
		if _, err := client.CallContract(ctx, msg, nil); err != nil {
			out = append(out, IntentEstimate{Index: i, Reverted: true, Reason: revertMessage(err)})
			continue
		}
		rawGas, err := estimateGasWithBlockTag(ctx, client, msg, blockTag)
		if err != nil {
			out = append(out, IntentEstimate{Index: i, Reverted: true, Reason: revertMessage(err)})
			continue
		}
		gasLimit := uint64(float64(rawGas) * d.opts.GasMultiplier)
		out = append(out, IntentEstimate{
			Index:        i,
			GasLimit:     gasLimit,
			LikelyFeeWei: new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), effective),
		})
	}
	return out, nil
}

func normalizeEstimateBlockTag(input EstimateBlockTag) (EstimateBlockTag, error) {
	switch strings.ToLower(strings.TrimSpace(string(input))) {
	case "", string(EstimateBlockTagPending):
		return EstimateBlockTagPending, nil
	case string(EstimateBlockTagLatest):
		return EstimateBlockTagLatest, nil
	default:
		return "", clierr.New(clierr.CodeUsage, "block tag must be one of: pending,latest")
	}
}

func estimateGasWithBlockTag(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg, blockTag EstimateBlockTag) (uint64, error) {
	arg := map[string]any{
		"from": msg.From.Hex(),
	}
	if msg.To != nil {
		arg["to"] = msg.To.Hex()
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}

	var estimated hexutil.Uint64
	if err := client.Client().CallContext(ctx, &estimated, "eth_estimateGas", arg, string(blockTag)); err != nil {
		if blockTag == EstimateBlockTagPending {
			if retryErr := client.Client().CallContext(ctx, &estimated, "eth_estimateGas", arg, string(EstimateBlockTagLatest)); retryErr == nil {
				return uint64(estimated), nil
			}
		}
		return 0, err
	}
	return uint64(estimated), nil
}

func baseFeeAtBlockTag(ctx context.Context, client *ethclient.Client, blockTag EstimateBlockTag) (*big.Int, error) {
	var block struct {
		BaseFeePerGas *hexutil.Big `json:"baseFeePerGas"`
	}
	err := client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", string(blockTag), false)
	if err != nil && blockTag == EstimateBlockTagPending {
		err = client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", string(EstimateBlockTagLatest), false)
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch base fee", err)
	}
	if block.BaseFeePerGas == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set((*big.Int)(block.BaseFeePerGas)), nil
}
