package evmtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
)

// Host is a scripted FunctionOptions implementation.
type Host struct {
	Chain *Chain

	// Multisig makes SendTransactions answer with a proposal acknowledgement.
	Multisig        bool
	ProposalMessage string
	// SendErr and HostError simulate a rejecting submitter.
	SendErr   error
	HostError string
	// OnSend runs before the host answers, typically to move balances.
	OnSend func(req adapter.SendTransactionsRequest)

	mu            sync.Mutex
	providerCalls int
	requests      []adapter.SendTransactionsRequest
	notes         []string
}

func NewHost(chain *Chain) *Host {
	return &Host{Chain: chain}
}

func (h *Host) GetProvider(int64) (adapter.Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.providerCalls++
	if h.Chain == nil {
		return nil, errors.New("no chain configured")
	}
	return h.Chain, nil
}

func (h *Host) SendTransactions(_ context.Context, req adapter.SendTransactionsRequest) (adapter.SubmissionResult, error) {
	h.mu.Lock()
	h.requests = append(h.requests, req)
	h.mu.Unlock()
	if h.OnSend != nil {
		h.OnSend(req)
	}
	if h.SendErr != nil {
		return adapter.SubmissionResult{}, h.SendErr
	}
	if h.HostError != "" {
		return adapter.SubmissionResult{Error: h.HostError}, nil
	}
	if h.Multisig {
		msg := h.ProposalMessage
		if msg == "" {
			msg = "Multisig proposal created"
		}
		return adapter.SubmissionResult{IsMultisigProposal: true, Data: []adapter.TransactionOutcome{{Message: msg}}}, nil
	}
	out := adapter.SubmissionResult{}
	for i := range req.Transactions {
		out.Data = append(out.Data, adapter.TransactionOutcome{
			Hash:    fmt.Sprintf("0x%064x", i+1),
			Message: fmt.Sprintf("Transaction %d confirmed", i+1),
		})
	}
	return out, nil
}

func (h *Host) Notify(_ context.Context, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notes = append(h.notes, message)
	return nil
}

func (h *Host) ProviderCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.providerCalls
}

func (h *Host) Requests() []adapter.SendTransactionsRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]adapter.SendTransactionsRequest, len(h.requests))
	copy(out, h.requests)
	return out
}

func (h *Host) Notes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.notes))
	copy(out, h.notes)
	return out
}

// Touched reports whether the function reached for a provider or the submitter.
func (h *Host) Touched() bool {
	return h.ProviderCalls() > 0 || len(h.Requests()) > 0
}
