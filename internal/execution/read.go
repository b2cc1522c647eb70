package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

var (
	ERC20ABI         = MustABI(registry.ERC20ABI)
	WrappedNativeABI = MustABI(registry.WrappedNativeABI)
	multicallABI     = MustABI(registry.Multicall3ABI)
)

// MustABI parses a hardcoded ABI fragment.
func MustABI(raw string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return &parsed
}

// Provider asks the host for a read client for chainID.
func Provider(opts adapter.FunctionOptions, chainID int64) (adapter.Provider, error) {
	if opts == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing function options")
	}
	p, err := opts.GetProvider(chainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("failed to get provider for chain %d", chainID), err)
	}
	return p, nil
}

// ViewCall is one read-only contract call.
type ViewCall struct {
	Target       common.Address
	ABI          *abi.ABI
	Method       string
	Args         []any
	AllowFailure bool
}

func NewCall(target common.Address, parsed *abi.ABI, method string, args ...any) ViewCall {
	return ViewCall{Target: target, ABI: parsed, Method: method, Args: args}
}

func (c ViewCall) pack() ([]byte, error) {
	data, err := c.ABI.Pack(c.Method, c.Args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s call", c.Method), err)
	}
	return data, nil
}

// Read performs a single eth_call and decodes the outputs.
func Read(ctx context.Context, p adapter.Provider, call ViewCall) ([]any, error) {
	data, err := call.pack()
	if err != nil {
		return nil, err
	}
	target := call.Target
	out, err := p.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call.Method, err)
	}
	values, err := call.ABI.Unpack(call.Method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", call.Method, err)
	}
	return values, nil
}

func ReadBig(ctx context.Context, p adapter.Provider, call ViewCall) (*big.Int, error) {
	values, err := Read(ctx, p, call)
	if err != nil {
		return nil, err
	}
	return BigAt(values, 0)
}

func ReadAddress(ctx context.Context, p adapter.Provider, call ViewCall) (common.Address, error) {
	values, err := Read(ctx, p, call)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) == 0 {
		return common.Address{}, fmt.Errorf("%s: empty result", call.Method)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected result type %T", call.Method, values[0])
	}
	return addr, nil
}

func ReadBool(ctx context.Context, p adapter.Provider, call ViewCall) (bool, error) {
	values, err := Read(ctx, p, call)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, fmt.Errorf("%s: empty result", call.Method)
	}
	b, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s: unexpected result type %T", call.Method, values[0])
	}
	return b, nil
}

// BigAt extracts an integer output, widening the small fixed-size kinds abi decoding produces.
func BigAt(values []any, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("missing output %d", i)
	}
	switch v := values[i].(type) {
	case *big.Int:
		return v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unexpected integer output type %T", values[i])
	}
}

func BalanceOf(ctx context.Context, p adapter.Provider, token, owner common.Address) (*big.Int, error) {
	return ReadBig(ctx, p, NewCall(token, ERC20ABI, "balanceOf", owner))
}

func Allowance(ctx context.Context, p adapter.Provider, token, owner, spender common.Address) (*big.Int, error) {
	return ReadBig(ctx, p, NewCall(token, ERC20ABI, "allowance", owner, spender))
}

func Decimals(ctx context.Context, p adapter.Provider, token common.Address) (int, error) {
	v, err := ReadBig(ctx, p, NewCall(token, ERC20ABI, "decimals"))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func NativeBalance(ctx context.Context, p adapter.Provider, owner common.Address) (*big.Int, error) {
	return p.BalanceAt(ctx, owner, nil)
}
