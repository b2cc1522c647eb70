package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

// Call3 and Call3Result mirror the Multicall3 aggregate3 tuples.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type Call3Result struct {
	Success    bool
	ReturnData []byte
}

// ViewResult is the decoded outcome of one batched call. Values is nil when the call
// was allowed to fail and did.
type ViewResult struct {
	Success bool
	Values  []any
}

func (r ViewResult) Big(i int) *big.Int {
	if !r.Success {
		return nil
	}
	v, err := BigAt(r.Values, i)
	if err != nil {
		return nil
	}
	return v
}

// Aggregate batches calls into one aggregate3 eth_call. Results keep the order of calls.
func Aggregate(ctx context.Context, p adapter.Provider, multicall common.Address, calls []ViewCall) ([]ViewResult, error) {
	results, _, err := aggregate(ctx, p, multicall, calls, false)
	return results, err
}

// AggregateWithTimestamp appends getCurrentBlockTimestamp to the same batch so every
// result and the timestamp come from one block.
func AggregateWithTimestamp(ctx context.Context, p adapter.Provider, multicall common.Address, calls []ViewCall) ([]ViewResult, *big.Int, error) {
	return aggregate(ctx, p, multicall, calls, true)
}

func aggregate(ctx context.Context, p adapter.Provider, multicall common.Address, calls []ViewCall, withTimestamp bool) ([]ViewResult, *big.Int, error) {
	batch := make([]Call3, 0, len(calls)+1)
	for _, c := range calls {
		data, err := c.pack()
		if err != nil {
			return nil, nil, err
		}
		batch = append(batch, Call3{Target: c.Target, AllowFailure: c.AllowFailure, CallData: data})
	}
	if withTimestamp {
		data, err := multicallABI.Pack("getCurrentBlockTimestamp")
		if err != nil {
			return nil, nil, clierr.Wrap(clierr.CodeInternal, "pack getCurrentBlockTimestamp", err)
		}
		batch = append(batch, Call3{Target: multicall, CallData: data})
	}
	if len(batch) == 0 {
		return []ViewResult{}, nil, nil
	}

	input, err := multicallABI.Pack("aggregate3", batch)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.CodeInternal, "pack aggregate3", err)
	}
	out, err := p.CallContract(ctx, ethereum.CallMsg{To: &multicall, Data: input}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate3: %w", err)
	}
	raw, err := DecodeAggregate3(out)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) != len(batch) {
		return nil, nil, fmt.Errorf("aggregate3: expected %d results, got %d", len(batch), len(raw))
	}

	var timestamp *big.Int
	if withTimestamp {
		last := raw[len(raw)-1]
		if !last.Success {
			return nil, nil, fmt.Errorf("getCurrentBlockTimestamp failed")
		}
		values, err := multicallABI.Unpack("getCurrentBlockTimestamp", last.ReturnData)
		if err != nil {
			return nil, nil, fmt.Errorf("decode block timestamp: %w", err)
		}
		if timestamp, err = BigAt(values, 0); err != nil {
			return nil, nil, err
		}
		raw = raw[:len(raw)-1]
	}

	results := make([]ViewResult, len(calls))
	for i, r := range raw {
		if !r.Success {
			results[i] = ViewResult{}
			continue
		}
		values, err := calls[i].ABI.Unpack(calls[i].Method, r.ReturnData)
		if err != nil {
			if calls[i].AllowFailure {
				results[i] = ViewResult{}
				continue
			}
			return nil, nil, fmt.Errorf("decode %s: %w", calls[i].Method, err)
		}
		results[i] = ViewResult{Success: true, Values: values}
	}
	return results, timestamp, nil
}

// DecodeAggregate3 unpacks the raw aggregate3 return data.
func DecodeAggregate3(out []byte) ([]Call3Result, error) {
	values, err := multicallABI.Unpack("aggregate3", out)
	if err != nil {
		return nil, fmt.Errorf("decode aggregate3: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("decode aggregate3: empty result")
	}
	return *abi.ConvertType(values[0], new([]Call3Result)).(*[]Call3Result), nil
}
