package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"commentdedup/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(a *app) *cobra.Command {
	defaults := defaultsForFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API for sessions, progress and reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}

			srv, err := server.New(server.Config{
				Addr:        a.cfg.ServerAddr,
				RateLimit:   a.cfg.ServerRateLimit,
				SessionTTL:  a.cfg.ServerSessionTTL,
				MaxSessions: a.cfg.ServerMaxSessions,
				Dedup:       a.cfg,
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().String("addr", defaults.ServerAddr, "listen address")
	cmd.Flags().Float64("rate-limit", defaults.ServerRateLimit, "API requests per second (0 disables)")
	cmd.Flags().Duration("session-ttl", defaults.ServerSessionTTL, "how long finished sessions are kept (0 keeps them)")
	cmd.Flags().Int("max-sessions", defaults.ServerMaxSessions, "how many sessions are kept (0 disables the limit)")
	a.bind(cmd, map[string]string{
		"server_addr":         "addr",
		"server_rate_limit":   "rate-limit",
		"server_session_ttl":  "session-ttl",
		"server_max_sessions": "max-sessions",
	})
	return cmd
}
