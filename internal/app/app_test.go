package app

import (
	"context"
	"errors"
	"testing"

	"csgo-arbitrage/internal/catalog"
	"csgo-arbitrage/internal/config"
)

func TestDryRunSeedsCatalog(t *testing.T) {
	a, err := Open(&config.Config{}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer a.Close()
	ctx := context.Background()

	specs := []string{"AK-47 | Redline (Field-Tested):33815", "AWP | Asiimov (Field-Tested)"}
	seeded, err := a.SeedItems(ctx, specs)
	if err != nil || len(seeded) != 2 {
		t.Fatalf("seeded=%+v err=%v", seeded, err)
	}
	if _, err := a.SeedItems(ctx, specs); err != nil {
		t.Fatalf("reseed err=%v", err)
	}

	items, err := a.Store.ListItems(ctx)
	if err != nil || len(items) != 2 {
		t.Fatalf("items=%+v err=%v", items, err)
	}
	if items[0].BuffGoodsID == nil || *items[0].BuffGoodsID != 33815 || items[0].AppID != 730 {
		t.Fatalf("item=%+v", items[0])
	}

	if _, err := a.SeedItems(ctx, []string{"  "}); !errors.Is(err, catalog.ErrEmptyName) {
		t.Fatalf("err=%v want=%v", err, catalog.ErrEmptyName)
	}
}
