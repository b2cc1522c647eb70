// Package evmtest provides an in-process chain and host for adapter tests.
package evmtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

// Handler answers one contract method. args are the decoded inputs and the returned
// values are packed with the method outputs.
type Handler func(args []any) ([]any, error)

type handlerKey struct {
	target   common.Address
	selector [4]byte
}

type route struct {
	method  abi.Method
	handler Handler
}

// CallRecord is one dispatched contract call, including calls made inside aggregate3.
type CallRecord struct {
	Target common.Address
	Method string
}

// Chain dispatches eth_call by target and selector. It implements adapter.Provider.
type Chain struct {
	mu        sync.Mutex
	routes    map[handlerKey]route
	balances  map[common.Address]*big.Int
	calls     []CallRecord
	batches   int
	Multicall common.Address
	Timestamp *big.Int
}

func NewChain() *Chain {
	return &Chain{
		routes:    map[handlerKey]route{},
		balances:  map[common.Address]*big.Int{},
		Multicall: common.HexToAddress(registry.Multicall3Address),
		Timestamp: big.NewInt(1_700_000_000),
	}
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Handle registers fn for method of the given ABI on target.
func (c *Chain) Handle(target common.Address, rawABI string, method string, fn Handler) {
	parsed := mustABI(rawABI)
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("evmtest: method %s not in abi", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[handlerKey{target: target, selector: sel}] = route{method: m, handler: fn}
}

// Return registers a static answer for method on target.
func (c *Chain) Return(target common.Address, rawABI string, method string, values ...any) {
	c.Handle(target, rawABI, method, func([]any) ([]any, error) { return values, nil })
}

// Revert makes method on target fail.
func (c *Chain) Revert(target common.Address, rawABI string, method string, reason string) {
	c.Handle(target, rawABI, method, func([]any) ([]any, error) { return nil, errors.New(reason) })
}

func (c *Chain) SetBalance(account common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] = new(big.Int).Set(wei)
}

func (c *Chain) Calls() []CallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CallRecord, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount counts dispatched calls to method across all targets.
func (c *Chain) CallCount(method string) int {
	n := 0
	for _, rec := range c.Calls() {
		if rec.Method == method {
			n++
		}
	}
	return n
}

// Batches is the number of aggregate3 calls served.
func (c *Chain) Batches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

func (c *Chain) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, errors.New("evmtest: contract creation not supported")
	}
	if *msg.To == c.Multicall && len(msg.Data) >= 4 && bytes.Equal(msg.Data[:4], multicallABI.Methods["aggregate3"].ID) {
		return c.aggregate3(msg.Data[4:])
	}
	return c.dispatch(*msg.To, msg.Data)
}

var multicallABI = mustABI(registry.Multicall3ABI)

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type call3Result struct {
	Success    bool
	ReturnData []byte
}

func (c *Chain) aggregate3(input []byte) ([]byte, error) {
	method := multicallABI.Methods["aggregate3"]
	args, err := method.Inputs.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("evmtest: decode aggregate3: %w", err)
	}
	calls := *abi.ConvertType(args[0], new([]call3)).(*[]call3)

	c.mu.Lock()
	c.batches++
	c.mu.Unlock()

	results := make([]call3Result, 0, len(calls))
	for _, call := range calls {
		out, err := c.dispatch(call.Target, call.CallData)
		if err != nil {
			if !call.AllowFailure {
				return nil, fmt.Errorf("execution reverted: %w", err)
			}
			results = append(results, call3Result{Success: false})
			continue
		}
		results = append(results, call3Result{Success: true, ReturnData: out})
	}
	return method.Outputs.Pack(results)
}

func (c *Chain) dispatch(target common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("evmtest: missing selector")
	}
	var sel [4]byte
	copy(sel[:], data[:4])

	if target == c.Multicall && bytes.Equal(sel[:], multicallABI.Methods["getCurrentBlockTimestamp"].ID) {
		c.record(target, "getCurrentBlockTimestamp")
		return multicallABI.Methods["getCurrentBlockTimestamp"].Outputs.Pack(new(big.Int).Set(c.Timestamp))
	}

	c.mu.Lock()
	r, ok := c.routes[handlerKey{target: target, selector: sel}]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("evmtest: no handler for %s selector 0x%x", target.Hex(), sel)
	}
	c.record(target, r.method.Name)

	args, err := r.method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("evmtest: decode %s args: %w", r.method.Name, err)
	}
	values, err := r.handler(args)
	if err != nil {
		return nil, err
	}
	return r.method.Outputs.Pack(values...)
}

func (c *Chain) record(target common.Address, method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, CallRecord{Target: target, Method: method})
}
