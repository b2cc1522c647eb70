package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/model"
	"github.com/ggonzalez94/defi-adapters/internal/toolschema"
)

func (s *runtimeState) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List adapters and the functions the allowlist enables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools := s.catalog.Tools()
			rows := make([]model.AdapterSummary, 0, len(tools))
			for _, a := range s.catalog.Adapters() {
				allowed := tools[a.Name]
				if len(allowed) == 0 {
					continue
				}
				row := model.AdapterSummary{
					Name:        a.Name,
					Description: a.Description,
					Chains:      adapterChains(a),
					Functions:   make([]string, 0, len(allowed)),
				}
				for _, t := range allowed {
					row.Functions = append(row.Functions, t.Name)
				}
				rows = append(rows, row)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, nil)
		},
	}
}

func (s *runtimeState) newToolsCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools [adapter]",
		Short: "Print tool descriptors for a tool-calling host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order := s.catalog.Names()
			if len(args) == 1 {
				a, ok := s.catalog.Get(args[0])
				if !ok {
					return clierr.New(clierr.CodeUsage, fmt.Sprintf("Adapter %s not found", args[0]))
				}
				order = []string{a.Name}
			}
			rendered, err := toolschema.Render(format, order, s.catalog.Tools())
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "render tools", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rendered, nil)
		},
	}
	cmd.Flags().StringVar(&format, "format", toolschema.FormatNative, "Descriptor format: native|openai|anthropic")
	return cmd
}

// adapterChains reads the chainName enum, which every tool of an adapter shares.
func adapterChains(a adapter.Adapter) []string {
	for _, t := range a.Tools {
		for _, p := range t.Parameters {
			if p.Name == "chainName" && len(p.Enum) > 0 {
				return p.Enum
			}
		}
	}
	return []string{}
}
