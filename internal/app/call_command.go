package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/catalog"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/toolschema"
)

// newCallCommand builds `call <adapter> <function>` with one flag per tool parameter.
func (s *runtimeState) newCallCommand(descriptors *catalog.Catalog) *cobra.Command {
	var paramsJSON string
	cmd := &cobra.Command{
		Use:   "call <adapter> <function>",
		Short: "Invoke an adapter function",
		Long: "Invoke an adapter function. Parameters are passed as flags named after the tool\n" +
			"parameters, or as a JSON object with --params. Flags win over --params.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return clierr.New(clierr.CodeUsage, "specify an adapter, see `"+cmd.Root().Name()+" list`")
			}
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("Adapter %s not found", args[0]))
		},
	}
	cmd.PersistentFlags().StringVar(&paramsJSON, "params", "", "Function parameters as a JSON object")

	for _, a := range descriptors.Adapters() {
		adapterCmd := &cobra.Command{
			Use:   a.Name + " <function>",
			Short: a.Description,
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 0 {
					return clierr.New(clierr.CodeUsage, fmt.Sprintf("specify a function of %s: %s", a.Name, strings.Join(a.FunctionNames(), ", ")))
				}
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("Function %s not found in adapter %s", args[0], a.Name))
			},
		}
		for _, tool := range a.Tools {
			fnCmd := &cobra.Command{
				Use:   tool.Name,
				Short: firstLine(tool.Description),
				Long:  tool.Description,
				Args:  cobra.NoArgs,
			}
			collect := toolschema.BindFlags(fnCmd.Flags(), tool)
			adapterName, function := a.Name, tool.Name
			fnCmd.RunE = func(cmd *cobra.Command, _ []string) error {
				props, err := mergeProps(paramsJSON, collect())
				if err != nil {
					return err
				}
				return s.runCall(cmd, adapterName, function, props)
			}
			adapterCmd.AddCommand(fnCmd)
		}
		cmd.AddCommand(adapterCmd)
	}
	return cmd
}

func (s *runtimeState) runCall(cmd *cobra.Command, adapterName, function string, props adapter.Props) error {
	if err := s.catalog.Allowed(adapterName, function); err != nil {
		return err
	}
	opts, err := s.functionOptions()
	if err != nil {
		return err
	}
	s.meta.Adapter = adapterName
	s.meta.Function = function
	if m, ok := opts.(interface{ Mode() string }); ok {
		s.meta.Mode = m.Mode()
	}

	start := s.runner.now()
	res := s.catalog.Invoke(contextOrBackground(cmd), adapterName, function, props, opts)
	s.meta.LatencyMS = s.runner.now().Sub(start).Milliseconds()
	if !res.Success {
		return clierr.New(clierr.CodeFunctionFailed, res.Message())
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), res.Data, nil)
}

// mergeProps overlays flag values on the --params object.
func mergeProps(paramsJSON string, flags adapter.Props) (adapter.Props, error) {
	props := adapter.Props{}
	if strings.TrimSpace(paramsJSON) != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &props); err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --params", err)
		}
	}
	for k, v := range flags {
		props[k] = v
	}
	return props, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if i := strings.Index(line, ". "); i > 0 {
		return line[:i+1]
	}
	return line
}
