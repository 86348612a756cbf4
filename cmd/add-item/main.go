package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"csgo-arbitrage/internal/app"
	"csgo-arbitrage/internal/catalog"
	"csgo-arbitrage/internal/config"
)

var (
	cfgFile     string
	buffGoodsID int64
	appID       int
	migrate     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "add-item <market_hash_name>",
		Short:        "Add an item to the tracked catalog",
		Long:         `Registers a market hash name for polling. Adding an existing name is a no-op, except that a Buff goods id is attached if the item has none.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runAddItem,
	}
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml), optional")
	rootCmd.Flags().Int64Var(&buffGoodsID, "buff-goods-id", 0, "Buff goods id, discovered by the daemon when omitted")
	rootCmd.Flags().IntVar(&appID, "app-id", 730, "Steam app id")
	rootCmd.Flags().BoolVar(&migrate, "migrate", false, "run schema migration first")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAddItem(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.Open(cfg, app.Options{Migrate: migrate})
	if err != nil {
		return err
	}
	defer a.Close()

	var goodsID *int64
	if buffGoodsID > 0 {
		goodsID = &buffGoodsID
	}
	item, created, err := catalog.New(a.Store, a.Log).Add(context.Background(), args[0], goodsID, appID)
	if err != nil {
		return err
	}

	state := "already tracked"
	if created {
		state = "added"
	}
	goods := "-"
	if item.BuffGoodsID != nil {
		goods = fmt.Sprint(*item.BuffGoodsID)
	}
	fmt.Printf("%s: #%d %s (buff_goods_id=%s)\n", state, item.ItemID, item.MarketHashName, goods)
	return nil
}
