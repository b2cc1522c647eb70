package app

import (
	"fmt"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/config"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/host"
	"github.com/ggonzalez94/defi-adapters/internal/signer"
)

// defaultHost picks the submitter for the configured mode. Only wallet mode loads a
// key; the other modes never sign.
func defaultHost(settings config.Settings) (adapter.FunctionOptions, func(), error) {
	providers := host.NewProviders(settings.RPCURLs)
	closers := []func(){providers.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		submitter host.Submitter
		opts      []host.Option
	)
	switch settings.SubmissionMode {
	case config.ModeWallet:
		txSigner, err := signer.NewLocalSignerFromEnv(settings.KeySource)
		if err != nil {
			closeAll()
			return nil, nil, clierr.Wrap(clierr.CodeAuth, "load wallet signer", err)
		}
		submitter = host.NewWalletSubmitter(providers, txSigner, host.DefaultExecuteOptions())
		opts = append(opts, host.WithSigner(txSigner))
	case config.ModeProposal:
		store, err := host.OpenProposalStore(settings.ProposalPath, settings.ProposalLockPath)
		if err != nil {
			closeAll()
			return nil, nil, clierr.Wrap(clierr.CodeInternal, "open proposal store", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		submitter = host.NewProposalSubmitter(store)
	case config.ModeDryRun, "":
		submitter = host.NewDryRunSubmitter(providers, host.DefaultEstimateOptions())
	default:
		closeAll()
		return nil, nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown submission mode %q", settings.SubmissionMode))
	}
	return host.New(providers, submitter, opts...), closeAll, nil
}
