package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-overlay/internal/api"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API used by the overlay UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.startPipeline(); err != nil {
				return err
			}

			addr := a.current().API.Listen
			if listen != "" {
				addr = listen
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			go a.watchConfig(ctx)

			svc := api.NewService(addr, a.ctrl, a.models, a.selection)
			errCh := make(chan error, 1)
			go func() { errCh <- svc.ListenAndServe() }()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				slog.Info("[main] shutting down")
			}

			if _, err := a.ctrl.Stop(context.Background()); err != nil {
				slog.Warn("[main] stopping active session", "error", err)
			}
			return svc.Shutdown()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides api.listen)")
	return cmd
}
