package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/host"
	"github.com/ggonzalez94/defi-adapters/internal/server"
)

func (s *runtimeState) newServeCommand() *cobra.Command {
	var (
		listen        string
		invokeTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve adapter functions over HTTP with a websocket notification stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := s.functionOptions()
			if err != nil {
				return err
			}
			hub := server.NewHub()
			if h, ok := opts.(interface{ AddSink(host.NotifySink) }); ok {
				h.AddSink(hub)
			}
			addr := s.settings.ListenAddr
			if listen != "" {
				addr = listen
			}
			srv := server.New(server.Config{
				ListenAddr: addr,
				JWTSecret:  s.settings.JWTSecret,
				RateLimit:  s.settings.RateLimit,
				RateBurst:  s.settings.RateBurst,

				InvokeTimeout: invokeTimeout,
			}, s.catalog, opts, hub)

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ListenAndServe(ctx); err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "serve", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	cmd.Flags().DurationVar(&invokeTimeout, "invoke-timeout", 5*time.Minute, "Upper bound for one function call including submission (0 disables)")
	return cmd
}
