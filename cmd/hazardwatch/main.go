package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // overridden with -ldflags at release
)

var rootCmd = &cobra.Command{
	Use:   "hazardwatch",
	Short: "Continental early-warning engine for the African region",
	Long: `Hazardwatch fuses tropical-cyclone forecasts, satellite flood extents,
slope and rainfall landslide risk, and disease-outbreak surveillance into a
unified hazard feed, detects climate-health convergences, and dispatches
alerts to institutional recipients with delivery tracking.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
