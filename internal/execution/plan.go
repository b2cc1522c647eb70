package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

// Plan is the ordered list of intents one invocation hands to the host.
type Plan struct {
	ChainID int64
	Account common.Address

	intents   []adapter.TransactionIntent
	approvals int
}

func NewPlan(chainID int64, account common.Address) *Plan {
	return &Plan{ChainID: chainID, Account: account}
}

func (p *Plan) Add(target common.Address, data []byte, value *big.Int) {
	if value == nil {
		value = big.NewInt(0)
	}
	p.intents = append(p.intents, adapter.TransactionIntent{Target: target, Data: data, Value: value})
}

// Call packs method on parsed and appends it.
func (p *Plan) Call(target common.Address, parsed *abi.ABI, method string, value *big.Int, args ...any) error {
	data, err := Pack(parsed, method, args...)
	if err != nil {
		return err
	}
	p.Add(target, data, value)
	return nil
}

// Wrap inserts a wrapped-native deposit of amount ahead of every other intent.
func (p *Plan) Wrap(wrapped common.Address, amount *big.Int) error {
	data, err := Pack(WrappedNativeABI, "deposit")
	if err != nil {
		return err
	}
	lead := adapter.TransactionIntent{Target: wrapped, Data: data, Value: new(big.Int).Set(amount)}
	p.intents = append([]adapter.TransactionIntent{lead}, p.intents...)
	return nil
}

// Approval describes the allowance a following spend needs. ResetFirst marks tokens that
// revert when a nonzero allowance is changed to another nonzero value.
type Approval struct {
	Token      common.Address
	Spender    common.Address
	Amount     *big.Int
	ResetFirst bool
}

// EnsureAllowance reads the current allowance and appends an approve for exactly the
// required amount when it falls short. It never lowers a sufficient allowance. Returns
// the number of intents appended.
func (p *Plan) EnsureAllowance(ctx context.Context, provider adapter.Provider, a Approval) (int, error) {
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return 0, nil
	}
	current, err := Allowance(ctx, provider, a.Token, p.Account, a.Spender)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "failed to fetch allowance", err)
	}
	return p.AppendApproval(a, current)
}

// AppendApproval applies the approval rule against an allowance the caller already read.
func (p *Plan) AppendApproval(a Approval, current *big.Int) (int, error) {
	if current != nil && current.Cmp(a.Amount) >= 0 {
		return 0, nil
	}
	added := 0
	if a.ResetFirst && current != nil && current.Sign() > 0 {
		if err := p.Call(a.Token, ERC20ABI, "approve", nil, a.Spender, big.NewInt(0)); err != nil {
			return 0, err
		}
		added++
	}
	if err := p.Call(a.Token, ERC20ABI, "approve", nil, a.Spender, new(big.Int).Set(a.Amount)); err != nil {
		return added, err
	}
	added++
	p.approvals += added
	return added, nil
}

func (p *Plan) Intents() []adapter.TransactionIntent {
	out := make([]adapter.TransactionIntent, len(p.intents))
	copy(out, p.intents)
	return out
}

func (p *Plan) Len() int { return len(p.intents) }

// Approvals is the number of approve intents appended so far.
func (p *Plan) Approvals() int { return p.approvals }

func (p *Plan) Request() adapter.SendTransactionsRequest {
	return adapter.SendTransactionsRequest{ChainID: p.ChainID, Account: p.Account, Transactions: p.Intents()}
}

func Pack(parsed *abi.ABI, method string, args ...any) ([]byte, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s calldata", method), err)
	}
	return data, nil
}
