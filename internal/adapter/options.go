package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Provider is the read-only chain client handed out by the host. *ethclient.Client satisfies it.
type Provider interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// TransactionIntent is one unsigned contract call.
type TransactionIntent struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

type intentJSON struct {
	Target string `json:"target"`
	Data   string `json:"data"`
	Value  string `json:"value,omitempty"`
}

func (t TransactionIntent) MarshalJSON() ([]byte, error) {
	out := intentJSON{Target: t.Target.Hex(), Data: hexutil.Encode(t.Data)}
	if t.Value != nil && t.Value.Sign() > 0 {
		out.Value = t.Value.String()
	}
	return json.Marshal(out)
}

func (t *TransactionIntent) UnmarshalJSON(buf []byte) error {
	var in intentJSON
	if err := json.Unmarshal(buf, &in); err != nil {
		return err
	}
	var data []byte
	if in.Data != "" {
		decoded, err := hexutil.Decode(in.Data)
		if err != nil {
			return fmt.Errorf("decode intent data: %w", err)
		}
		data = decoded
	}
	t.Target = common.HexToAddress(in.Target)
	t.Data = data
	t.Value = nil
	if in.Value != "" {
		v, ok := new(big.Int).SetString(in.Value, 10)
		if !ok {
			return fmt.Errorf("invalid intent value %q", in.Value)
		}
		t.Value = v
	}
	return nil
}

type SendTransactionsRequest struct {
	ChainID      int64               `json:"chainId"`
	Account      common.Address      `json:"account"`
	Transactions []TransactionIntent `json:"transactions"`
}

type TransactionOutcome struct {
	Hash    string `json:"hash,omitempty"`
	Message string `json:"message"`
}

// SubmissionResult is what the host returns after handling a batch. A non-empty Error
// is a host-reported failure.
type SubmissionResult struct {
	IsMultisigProposal bool                 `json:"isMultisigProposal"`
	Data               []TransactionOutcome `json:"data"`
	Error              string               `json:"error,omitempty"`
}

// LastMessage is the message attached to the final outcome, which for proposals is the
// acknowledgement of the whole batch.
func (r SubmissionResult) LastMessage() string {
	if len(r.Data) == 0 {
		return ""
	}
	return r.Data[len(r.Data)-1].Message
}

// FunctionOptions are the capabilities a host injects into every call.
type FunctionOptions interface {
	GetProvider(chainID int64) (Provider, error)
	SendTransactions(ctx context.Context, req SendTransactionsRequest) (SubmissionResult, error)
	Notify(ctx context.Context, message string) error
}

// MessageSigner is implemented by hosts able to sign off-chain messages.
type MessageSigner interface {
	SignMessages(ctx context.Context, account common.Address, messages []string) ([]string, error)
}

func SignerOf(opts FunctionOptions) (MessageSigner, bool) {
	s, ok := opts.(MessageSigner)
	return s, ok
}
