package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/marketplace-client/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	servePageLimit   int
	serveSessionIdle time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve facets, listings and browsing sessions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := newStack(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := server.New(server.Options{
			Gateway:     st.gateway,
			Schema:      st.schema,
			Cache:       st.cache,
			PageLimit:   servePageLimit,
			SessionIdle: serveSessionIdle,
			Ready:       st.ready,
		})

		scheduler, err := srv.StartMaintenance(cfg.CleanupSchedule)
		if err != nil {
			return err
		}
		defer scheduler.Stop()

		errs := make(chan error, 1)
		go func() {
			errs <- srv.Start(":" + cfg.Port)
		}()

		log.Info().
			Str("api", cfg.APIURL).
			Str("user_agent", cfg.UserAgent).
			Bool("redis_mirror", st.redis != nil).
			Msg("Marketplace server started")

		select {
		case err := <-errs:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePageLimit, "page-limit", 0, "listing page size of new sessions (default 20)")
	serveCmd.Flags().DurationVar(&serveSessionIdle, "session-idle", server.DefaultSessionIdle, "drop sessions untouched for this long")
	rootCmd.AddCommand(serveCmd)
}
