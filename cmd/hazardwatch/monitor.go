package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	monitorOnce   bool
	monitorDaemon bool
	monitorStatus bool
	recentHours   int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the hazard monitoring pipeline",
	Long: `Runs the fetch-detect-persist-alert cycle. --once executes a single
cycle and prints the JSON result; --daemon cycles continuously at the
configured interval until SIGINT or SIGTERM.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "run a single cycle and exit")
	monitorCmd.Flags().BoolVar(&monitorDaemon, "daemon", false, "run continuously")
	monitorCmd.Flags().BoolVar(&monitorStatus, "status", false, "print the pipeline status snapshot")
	monitorCmd.Flags().IntVar(&recentHours, "recent", 0, "print detections from the last N hours")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case monitorStatus:
		snap, err := a.monitor.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(snap)

	case recentHours > 0:
		since := time.Now().UTC().Add(-time.Duration(recentHours) * time.Hour)
		detections, err := a.store.ListDetections(ctx, since)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"since": since.Format(time.RFC3339),
			"count": len(detections), "detections": detections,
		})

	case monitorDaemon:
		return a.monitor.RunContinuous(ctx)

	case monitorOnce:
		res, err := a.monitor.RunOnce(ctx)
		if res != nil {
			if perr := printJSON(res); perr != nil {
				return perr
			}
		}
		return err

	default:
		return fmt.Errorf("one of --once, --daemon, --status or --recent is required")
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
