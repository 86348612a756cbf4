package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csgo-arbitrage/internal/api"
	"csgo-arbitrage/internal/app"
	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/pipeline"
)

var (
	cfgFile  string
	once     bool
	interval int
	cronSpec string
	workers  int
	httpAddr string
	dryRun   bool
	migrate  bool
	items    []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Poll Steam and Buff and evaluate arbitrage candidates",
		Long: `Runs collection cycles over the item catalog: Buff order book, then Steam
price overview, then evaluation. Runs forever at a fixed interval unless
--once or --cron is given. The first SIGINT/SIGTERM finishes the in-flight
item and exits; a second one aborts immediately.`,
		SilenceUsage: true,
		RunE:         runDaemon,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml), optional")
	flags.BoolVar(&once, "once", false, "run a single cycle and exit")
	flags.IntVar(&interval, "interval", 0, "seconds between cycles (default from config, 300)")
	flags.StringVar(&cronSpec, "cron", "", "cron schedule instead of a fixed interval, e.g. \"*/5 * * * *\"")
	flags.IntVar(&workers, "workers", 0, "items processed concurrently (default from config, 1)")
	flags.StringVar(&httpAddr, "http-addr", "", "also serve the read-only API on this address")
	flags.BoolVar(&dryRun, "dry-run", false, "keep all data in memory, no database")
	flags.BoolVar(&migrate, "migrate", false, "run schema migration before starting")
	flags.StringArrayVar(&items, "item", nil, "add NAME[:BUFF_GOODS_ID] to the catalog before starting (repeatable)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if interval > 0 {
		cfg.Scheduler.Interval = time.Duration(interval) * time.Second
	}
	if cmd.Flags().Changed("cron") {
		cfg.Scheduler.Cron = cronSpec
	}
	if workers > 0 {
		cfg.Scheduler.Workers = workers
	}
	if cfg.Scheduler.Cron != "" {
		if err := pipeline.ValidateCron(cfg.Scheduler.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", cfg.Scheduler.Cron, err)
		}
	}

	a, err := app.Open(cfg, app.Options{DryRun: dryRun, Migrate: migrate})
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.Log

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seeds := items
	if dryRun && len(seeds) == 0 {
		seeds = cfg.Scheduler.Items
	}
	if len(seeds) > 0 {
		seeded, err := a.SeedItems(ctx, seeds)
		if err != nil {
			return err
		}
		log.Info("catalog seeded", zap.Int("items", len(seeded)))
	} else if dryRun {
		log.Warn("dry run with an empty catalog, pass --item or scheduler.items")
	}

	var publishers api.Fanout
	serverDone := make(chan struct{})
	if httpAddr != "" {
		hub := api.NewHub(log)
		go hub.Run(ctx)
		publishers = append(publishers, hub)
		go func() {
			defer close(serverDone)
			if err := api.Serve(ctx, httpAddr, api.NewRouter(a.Store, hub, log), log); err != nil {
				log.Error("http server", zap.Error(err))
			}
		}()
	} else {
		close(serverDone)
	}
	bus, err := a.EventBus(ctx)
	if err != nil {
		return err
	}
	if bus != nil {
		publishers = append(publishers, bus)
	}
	var publisher pipeline.Publisher
	if len(publishers) > 0 {
		publisher = publishers
	}

	sched, err := a.Scheduler(ctx, publisher)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Info("收到关闭信号，完成当前商品后退出")
		sched.Stop()
		<-sigCh
		log.Warn("再次收到信号，立即退出")
		cancel()
	}()

	log.Info("daemon started",
		zap.Int("pid", os.Getpid()),
		zap.Bool("once", once),
		zap.Duration("interval", cfg.Scheduler.Interval),
		zap.String("cron", cfg.Scheduler.Cron),
		zap.Int("workers", cfg.Scheduler.Workers),
		zap.Bool("dry_run", dryRun))

	switch {
	case once:
		sum, err := sched.RunOnce(ctx)
		if err != nil {
			return err
		}
		printSummary(sum)
	case cfg.Scheduler.Cron != "":
		err = sched.RunCron(ctx, cfg.Scheduler.Cron)
	default:
		err = sched.Run(ctx, cfg.Scheduler.Interval)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	cancel()
	<-serverDone
	log.Info("daemon stopped")
	return nil
}

func printSummary(s pipeline.Summary) {
	fmt.Printf("cycle %s: %d/%d items in %s\n", s.CycleID, s.Processed, s.Items, s.Duration().Round(time.Millisecond))
	fmt.Printf("  buff       ok=%d skip=%d fail=%d\n", s.Buff.Succeeded, s.Buff.Skipped, s.Buff.Failed)
	fmt.Printf("  steam      ok=%d skip=%d fail=%d\n", s.Steam.Succeeded, s.Steam.Skipped, s.Steam.Failed)
	fmt.Printf("  evaluation ok=%d skip=%d fail=%d\n", s.Evaluation.Succeeded, s.Evaluation.Skipped, s.Evaluation.Failed)
	for action, n := range s.Actions {
		fmt.Printf("  %-10s %d\n", action, n)
	}
}
