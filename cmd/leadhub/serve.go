package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadhub/leadhub/internal/daemon"
	"github.com/leadhub/leadhub/internal/logging"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and event consumers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, st, cleanup, err := setup(ctx, g)
			if err != nil {
				return err
			}
			defer cleanup()
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			d := daemon.New(cfg, st)
			errc := make(chan error, 1)
			go func() { errc <- d.Start() }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logging.Get().Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutdown signal received, waiting for active operations to complete")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			d.Stop(shutdownCtx)
			return <-errc
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http_addr)")
	return cmd
}
