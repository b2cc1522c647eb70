package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/signer"
	"github.com/ggonzalez94/defi-adapters/internal/telemetry"
)

// Notification is one adapter progress message.
type Notification struct {
	Adapter  string    `json:"adapter,omitempty"`
	Function string    `json:"function,omitempty"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// NotifySink receives every notification a host emits.
type NotifySink interface {
	Publish(n Notification)
}

type Option func(*Host)

func WithSigner(s signer.Signer) Option {
	return func(h *Host) { h.signer = s }
}

func WithSink(sink NotifySink) Option {
	return func(h *Host) { h.sinks = append(h.sinks, sink) }
}

func WithPolicy(p PolicyOptions) Option {
	return func(h *Host) { h.policy = p }
}

// Host implements adapter.FunctionOptions and adapter.MessageSigner.
type Host struct {
	providers *Providers
	submitter Submitter
	signer    signer.Signer
	policy    PolicyOptions

	mu    sync.RWMutex
	sinks []NotifySink
}

func New(providers *Providers, submitter Submitter, opts ...Option) *Host {
	h := &Host{providers: providers, submitter: submitter}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) Mode() string {
	if h.submitter == nil {
		return ""
	}
	return h.submitter.Mode()
}

func (h *Host) AddSink(sink NotifySink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, sink)
}

func (h *Host) GetProvider(chainID int64) (adapter.Provider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return h.providers.Provider(ctx, chainID)
}

func (h *Host) SendTransactions(ctx context.Context, req adapter.SendTransactionsRequest) (adapter.SubmissionResult, error) {
	caller := CallerFrom(ctx)
	log := logrus.WithFields(logrus.Fields{
		"mode":         h.Mode(),
		"chain_id":     req.ChainID,
		"account":      req.Account.Hex(),
		"transactions": len(req.Transactions),
		"caller":       caller.String(),
	})
	if h.submitter == nil {
		return adapter.SubmissionResult{}, clierr.New(clierr.CodeInternal, "no submitter configured")
	}
	if err := validateBatch(req, h.policy); err != nil {
		telemetry.ObserveSubmission(h.Mode(), "rejected")
		log.WithError(err).Warn("batch rejected by policy")
		return adapter.SubmissionResult{}, err
	}
	res, err := h.submitter.Submit(ctx, req)
	if err != nil {
		telemetry.ObserveSubmission(h.Mode(), "failure")
		log.WithError(err).Warn("submission failed")
		return res, err
	}
	telemetry.ObserveSubmission(h.Mode(), "success")
	log.WithField("proposal", res.IsMultisigProposal).Info("batch submitted")
	return res, nil
}

func (h *Host) Notify(ctx context.Context, message string) error {
	caller := CallerFrom(ctx)
	n := Notification{Adapter: caller.Adapter, Function: caller.Function, Message: message, Time: time.Now().UTC()}
	logrus.WithFields(logrus.Fields{"adapter": n.Adapter, "function": n.Function}).Info(message)
	h.mu.RLock()
	sinks := append([]NotifySink(nil), h.sinks...)
	h.mu.RUnlock()
	for _, sink := range sinks {
		sink.Publish(n)
	}
	return nil
}

// SignMessages returns hex EIP-191 signatures, one per message.
func (h *Host) SignMessages(_ context.Context, account common.Address, messages []string) ([]string, error) {
	if h.signer == nil {
		return nil, clierr.New(clierr.CodeUnsupported, "message signing is not available in this host")
	}
	if h.signer.Address() != account {
		return nil, clierr.New(clierr.CodeAuth, fmt.Sprintf("Signer %s cannot sign for account %s", h.signer.Address().Hex(), account.Hex()))
	}
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		sig, err := h.signer.SignMessage([]byte(m))
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeAuth, "sign message", err)
		}
		out = append(out, hexutil.Encode(sig))
	}
	return out, nil
}

var (
	_ adapter.FunctionOptions = (*Host)(nil)
	_ adapter.MessageSigner   = (*Host)(nil)
)
