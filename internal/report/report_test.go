package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/store"
)

func TestCollectAndWrite(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	goods := int64(33815)
	item := &models.Item{MarketHashName: "AWP | Asiimov (Field-Tested)", BuffGoodsID: &goods}
	mem.GetOrCreateItem(ctx, item)
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	mem.InsertCandidate(ctx, &models.TradeCandidate{ItemID: item.ItemID, Timestamp: ts, PnLNow: 3, SpreadPct: 0.25, RecommendedAction: models.ActionCandidate})
	mem.InsertCandidate(ctx, &models.TradeCandidate{ItemID: 99, Timestamp: ts, PnLNow: 1, RecommendedAction: models.ActionMonitor})

	rows, err := Collect(ctx, mem, store.CandidateFilter{Limit: 10})
	if err != nil || len(rows) != 2 {
		t.Fatalf("rows=%d err=%v", len(rows), err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(got) != 3 || got[0][0] != "Item" || got[0][3] != "Action" {
		t.Fatalf("sheet=%v", got)
	}
	// Highest pnl first.
	if got[1][0] != "AWP | Asiimov (Field-Tested)" || got[1][1] != "33815" || got[1][3] != "candidate" || got[1][8] != "25" {
		t.Fatalf("row1=%v", got[1])
	}
	if got[2][0] != "item #99" || got[2][3] != "monitor" {
		t.Fatalf("row2=%v", got[2])
	}
}
