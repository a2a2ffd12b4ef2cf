package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/fetchctl/internal/metrics"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the fetch-service if needed and supervise it until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			started, err := a.cp.EnsureRunning(ctx)
			if err != nil {
				return err
			}
			a.logger.Info().Bool("started", started).Msg("fetch-service is ready")

			if a.cfg.MetricsAddr != "" {
				srv := metrics.NewServer(a.cfg.MetricsAddr, a.health)
				go func() {
					a.logger.Info().Str("addr", a.cfg.MetricsAddr).Msg("starting metrics server")
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						a.logger.Error().Err(err).Msg("metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			<-ctx.Done()
			a.logger.Info().Msg("shutting down")
			return a.cp.Stop()
		},
	}
}
