package execution

import (
	"context"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

// Submit hands the plan to the host. Host failures are terminal and keep the host's
// own message.
func Submit(ctx context.Context, opts adapter.FunctionOptions, plan *Plan) (adapter.SubmissionResult, error) {
	if plan == nil || plan.Len() == 0 {
		return adapter.SubmissionResult{}, clierr.New(clierr.CodeInternal, "no transactions to submit")
	}
	res, err := opts.SendTransactions(ctx, plan.Request())
	if err != nil {
		return res, clierr.New(clierr.CodeHost, err.Error())
	}
	if res.Error != "" {
		return res, clierr.New(clierr.CodeHost, res.Error)
	}
	return res, nil
}

// FormatSubmission returns the proposal acknowledgement unchanged for multisig hosts.
// Otherwise compose builds the message; it is never called for proposals, so no
// post-submission reads happen when nothing has executed yet.
func FormatSubmission(res adapter.SubmissionResult, compose func() (string, error)) (string, error) {
	if res.IsMultisigProposal {
		return res.LastMessage(), nil
	}
	return compose()
}

// Finish runs the submitting and formatting stages and ends inv.
func Finish(ctx context.Context, inv *Invocation, opts adapter.FunctionOptions, plan *Plan, compose func(res adapter.SubmissionResult) (string, error)) adapter.Result {
	inv.Enter(StageSubmitting)
	res, err := Submit(ctx, opts, plan)
	if err != nil {
		return inv.Fail(err)
	}
	inv.Enter(StageFormatting)
	msg, err := FormatSubmission(res, func() (string, error) { return compose(res) })
	if err != nil {
		return inv.Fail(err)
	}
	return inv.Done(msg)
}
