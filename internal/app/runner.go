package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/catalog"
	"github.com/ggonzalez94/defi-adapters/internal/config"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/model"
	"github.com/ggonzalez94/defi-adapters/internal/out"
	"github.com/ggonzalez94/defi-adapters/internal/schema"
	"github.com/ggonzalez94/defi-adapters/internal/telemetry"
	"github.com/ggonzalez94/defi-adapters/internal/version"
)

// CatalogFactory builds the adapter catalog for the loaded settings.
type CatalogFactory func(settings config.Settings) (*catalog.Catalog, error)

// HostFactory builds the FunctionOptions adapters run against. The returned closer
// releases RPC connections and stores.
type HostFactory func(settings config.Settings) (adapter.FunctionOptions, func(), error)

type Runner struct {
	stdout     io.Writer
	stderr     io.Writer
	logs       io.Writer
	now        func() time.Time
	newCatalog CatalogFactory
	newHost    HostFactory
}

type Option func(*Runner)

func WithCatalogFactory(f CatalogFactory) Option {
	return func(r *Runner) { r.newCatalog = f }
}

func WithHostFactory(f HostFactory) Option {
	return func(r *Runner) { r.newHost = f }
}

// WithLogWriter sends logs somewhere other than stderr.
func WithLogWriter(w io.Writer) Option {
	return func(r *Runner) { r.logs = w }
}

func NewRunner(opts ...Option) *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr, opts...)
}

func NewRunnerWithWriters(stdout, stderr io.Writer, opts ...Option) *Runner {
	r := &Runner{
		stdout:     stdout,
		stderr:     stderr,
		logs:       stderr,
		now:        time.Now,
		newCatalog: defaultCatalog,
		newHost:    defaultHost,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string
	meta        model.EnvelopeMeta

	catalog  *catalog.Catalog
	opts     adapter.FunctionOptions
	closers  []func()
	shutdown func()
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root, err := state.newRootCommand()
	if err != nil {
		state.renderError(clierr.Wrap(clierr.CodeInternal, "build commands", err))
		return int(clierr.CodeInternal)
	}
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err = normalizeRunError(root.Execute())
	state.close()
	if err == nil {
		return 0
	}
	state.renderError(err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	if s.shutdown != nil {
		s.shutdown()
		s.shutdown = nil
	}
}

func (s *runtimeState) newRootCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Protocol adapters for tool-calling DeFi agents",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())

			telemetry.SetupLogging(settings.LogLevel, settings.LogFormat, s.runner.logs)
			shutdown, err := telemetry.InitTracer(contextOrBackground(cmd), settings.OTLPEndpoint)
			if err != nil {
				logrus.WithError(err).Warn("tracing disabled")
			}
			s.shutdown = shutdown

			cat, err := s.runner.newCatalog(settings)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "build adapter catalog", err)
			}
			s.catalog = cat
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Load environment variables from this file")
	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableFunctions, "enable-functions", "", "Allowlist adapter functions (adapter.function, adapter.* or adapter; comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Off-chain HTTP request timeout")
	cmd.PersistentFlags().StringVar(&s.flags.Mode, "mode", "", "Submission mode: wallet|proposal|dry-run")
	cmd.PersistentFlags().StringVar(&s.flags.KeySource, "key-source", "", "Signer key source for wallet mode: auto|env|file|keystore")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&s.flags.LogFormat, "log-format", "", "Log format (text|json)")

	// Tool descriptors do not depend on configuration, so the call tree is built from
	// an unconfigured catalog before flags are parsed.
	descriptors, err := s.runner.newCatalog(config.Settings{})
	if err != nil {
		return nil, err
	}

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newListCommand())
	cmd.AddCommand(s.newToolsCommand())
	cmd.AddCommand(s.newCallCommand(descriptors))
	cmd.AddCommand(s.newProposalsCommand())
	cmd.AddCommand(s.newServeCommand())
	return cmd, nil
}

// functionOptions builds the host lazily so read-only commands never dial an RPC or
// open a key.
func (s *runtimeState) functionOptions() (adapter.FunctionOptions, error) {
	if s.opts != nil {
		return s.opts, nil
	}
	opts, closer, err := s.runner.newHost(s.settings)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	s.opts = opts
	return opts, nil
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	meta := s.meta
	meta.RequestID = newRequestID()
	meta.Timestamp = s.runner.now().UTC()
	meta.Command = commandPath
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta:     meta,
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

// renderError always writes a full envelope to stderr, whatever the output flags say.
func (s *runtimeState) renderError(err error) {
	commandPath := s.lastCommand
	if commandPath == "" {
		commandPath = version.CLIName
	}
	code := clierr.ExitCode(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Error()
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = config.OutputJSON
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil

	meta := s.meta
	meta.RequestID = newRequestID()
	meta.Timestamp = s.runner.now().UTC()
	meta.Command = commandPath
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error: &model.ErrorBody{
			Code:    code,
			Type:    clierr.TypeName(clierr.Code(code)),
			Message: message,
		},
		Meta: meta,
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func defaultCatalog(settings config.Settings) (*catalog.Catalog, error) {
	return catalog.Default(catalog.Options{
		EnsoAPIKey:      settings.EnsoAPIKey,
		HTTPTimeout:     settings.Timeout,
		EnableFunctions: settings.EnableFunctions,
		Endpoints:       settings.Endpoints,
	})
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
