package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"csgo-arbitrage/internal/app"
	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/report"
	"csgo-arbitrage/internal/store"
)

var (
	cfgFile string
	outPath string
	limit   int
	action  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "export-candidates",
		Short:        "Export the latest evaluation per item to an xlsx file",
		SilenceUsage: true,
		RunE:         runExport,
	}
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml), optional")
	rootCmd.Flags().StringVar(&outPath, "out", "candidates.xlsx", "output file")
	rootCmd.Flags().IntVar(&limit, "limit", 100, "maximum rows")
	rootCmd.Flags().StringVar(&action, "action", "", "only this action: skip, monitor or candidate")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runExport(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.Open(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := report.Collect(context.Background(), a.Store, store.CandidateFilter{Action: models.Action(action), Limit: limit})
	if err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := report.Write(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %d rows to %s\n", len(rows), outPath)
	return nil
}
