package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/afrostorm/hazardwatch/pkg/api"
)

var serveDaemon bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the hazard query API",
	Long: `Starts the HTTP façade. With --with-monitor the monitoring daemon runs
in the same process, so fresh detections appear in the feed without a
separate monitor deployment.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDaemon, "with-monitor", false, "also run the monitor daemon")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveDaemon {
		go func() {
			if err := a.monitor.RunContinuous(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("monitor daemon stopped")
			}
		}()
	}

	srv := api.New(a.cfg.API.Addr, a.query, a.pipeline, a.ledger, a.store,
		a.adapterNames(), a.log)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
