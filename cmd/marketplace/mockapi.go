package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/marketplace-client/internal/testutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var mockAddr string

var mockAPICmd = &cobra.Command{
	Use:   "mock-api",
	Short: "Serve the sample marketplace query API for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mock := testutil.NewMockMarketplace(testutil.CarsDataset())
		srv := &http.Server{
			Addr:              mockAddr,
			Handler:           mock.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errs := make(chan error, 1)
		go func() {
			errs <- srv.ListenAndServe()
		}()
		log.Info().Str("addr", mockAddr).Msg("Mock marketplace API listening")

		select {
		case err := <-errs:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	mockAPICmd.Flags().StringVar(&mockAddr, "addr", ":8090", "listen address")
	rootCmd.AddCommand(mockAPICmd)
}
