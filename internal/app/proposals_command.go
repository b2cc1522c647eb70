package app

import (
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/host"
	"github.com/ggonzalez94/defi-adapters/internal/model"
)

func (s *runtimeState) newProposalsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "proposals",
		Short: "Inspect and resolve queued multisig proposals",
	}

	var (
		status string
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openProposalStore()
			if err != nil {
				return err
			}
			items, err := store.List(strings.ToLower(strings.TrimSpace(status)), limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list proposals", err)
			}
			rows := make([]model.ProposalSummary, 0, len(items))
			for _, p := range items {
				rows = append(rows, model.ProposalSummary{
					ID:           p.ID,
					Status:       string(p.Status),
					ChainID:      p.ChainID,
					Account:      p.Account,
					Source:       p.Source,
					Transactions: len(p.Transactions),
					UpdatedAt:    p.UpdatedAt,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, nil)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status: pending|executed|rejected")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum proposals to return")

	showCmd := &cobra.Command{
		Use:   "show <proposal-id>",
		Short: "Show one proposal with its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openProposalStore()
			if err != nil {
				return err
			}
			p, err := store.Get(args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), p, nil)
		},
	}

	var resolution string
	resolveCmd := &cobra.Command{
		Use:   "resolve <proposal-id>",
		Short: "Record that a pending proposal was executed or rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openProposalStore()
			if err != nil {
				return err
			}
			p, err := store.SetStatus(args[0], host.ProposalStatus(strings.ToLower(strings.TrimSpace(resolution))))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), p, nil)
		},
	}
	resolveCmd.Flags().StringVar(&resolution, "status", string(host.ProposalExecuted), "New status: executed|rejected")

	root.AddCommand(listCmd, showCmd, resolveCmd)
	return root
}

func (s *runtimeState) openProposalStore() (*host.ProposalStore, error) {
	store, err := host.OpenProposalStore(s.settings.ProposalPath, s.settings.ProposalLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open proposal store", err)
	}
	s.closers = append(s.closers, func() { _ = store.Close() })
	return store, nil
}
