package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/afrostorm/hazardwatch/pkg/alerts"
)

var (
	alertsTestCountry string
	alertsStats       bool
	alertsRecipients  bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and exercise the alert pipeline",
	RunE:  runAlerts,
}

func init() {
	alertsCmd.Flags().StringVar(&alertsTestCountry, "test", "", "dry-run fanout to the named country's recipients")
	alertsCmd.Flags().BoolVar(&alertsStats, "stats", false, "print validation statistics")
	alertsCmd.Flags().BoolVar(&alertsRecipients, "list-recipients", false, "print the routing table")
}

func runAlerts(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case alertsStats:
		stats, err := a.ledger.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)

	case alertsRecipients:
		table := map[string][]alerts.Recipient{}
		for _, route := range alerts.Routes() {
			table[route] = alerts.RecipientsFor(route)
		}
		return printJSON(table)

	case alertsTestCountry != "":
		rcpts := alerts.RecipientsFor(alertsTestCountry)
		if rcpts == nil {
			return fmt.Errorf("unknown country %q", alertsTestCountry)
		}
		n := alerts.Notice{
			HazardType: "test",
			HazardID:   fmt.Sprintf("drill-%d", time.Now().Unix()),
			Country:    alertsTestCountry,
			Headline:   "Alert pipeline drill",
			Lines:      []string{"This is a routing test, no hazard is active."},
			IssuedAt:   time.Now().UTC(),
		}
		msg, err := a.pipeline.Preview(n, "")
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"country": alertsTestCountry, "recipients": rcpts, "preview": msg,
		})

	default:
		return fmt.Errorf("one of --test, --stats or --list-recipients is required")
	}
}
