// Package host implements the collaborator side of adapter.FunctionOptions: chain
// providers, transaction submitters and notification fan-out.
package host

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
)

const (
	ModeWallet   = "wallet"
	ModeProposal = "proposal"
	ModeDryRun   = "dry-run"
)

// Submitter handles one ordered batch of intents.
type Submitter interface {
	Mode() string
	Submit(ctx context.Context, req adapter.SendTransactionsRequest) (adapter.SubmissionResult, error)
}

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalExecuted ProposalStatus = "executed"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a queued batch awaiting approval by the account's owners.
type Proposal struct {
	ID           string                      `json:"id"`
	Status       ProposalStatus              `json:"status"`
	ChainID      int64                       `json:"chainId"`
	Account      string                      `json:"account"`
	Source       string                      `json:"source,omitempty"`
	CreatedAt    string                      `json:"createdAt"`
	UpdatedAt    string                      `json:"updatedAt"`
	Transactions []adapter.TransactionIntent `json:"transactions"`
}

func NewProposal(req adapter.SendTransactionsRequest, source string) Proposal {
	now := time.Now().UTC().Format(time.RFC3339)
	txs := make([]adapter.TransactionIntent, len(req.Transactions))
	copy(txs, req.Transactions)
	return Proposal{
		ID:           "prop_" + uuid.NewString(),
		Status:       ProposalPending,
		ChainID:      req.ChainID,
		Account:      req.Account.Hex(),
		Source:       source,
		CreatedAt:    now,
		UpdatedAt:    now,
		Transactions: txs,
	}
}

func (p *Proposal) Touch() {
	p.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

type callerKey struct{}

// Caller names the adapter function a batch came from.
type Caller struct {
	Adapter  string
	Function string
}

func (c Caller) String() string {
	if c.Adapter == "" {
		return ""
	}
	return c.Adapter + "." + c.Function
}

func WithCaller(ctx context.Context, adapterName, function string) context.Context {
	return context.WithValue(ctx, callerKey{}, Caller{Adapter: adapterName, Function: function})
}

func CallerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}
