package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"csgo-arbitrage/internal/database"
	"csgo-arbitrage/internal/models"
)

func newGormStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "arb.db")), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormStore(db), db
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

func TestGormSnapshotUniqueness(t *testing.T) {
	ctx := context.Background()
	s, db := newGormStore(t)
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		inserted, err := s.InsertSteamSnapshot(ctx, &models.SteamSnapshot{ItemID: 1, Timestamp: ts, BestAsk: f64(10), CurrencyID: 3})
		if err != nil {
			t.Fatalf("steam insert %d err=%v", i, err)
		}
		if inserted != (i == 0) {
			t.Fatalf("steam attempt %d inserted=%v", i, inserted)
		}
		inserted, err = s.InsertBuffSnapshot(ctx, &models.BuffSnapshot{ItemID: 1, Timestamp: ts, BestAsk: f64(8), Currency: "CNY"})
		if err != nil {
			t.Fatalf("buff insert %d err=%v", i, err)
		}
		if inserted != (i == 0) {
			t.Fatalf("buff attempt %d inserted=%v", i, inserted)
		}
	}
	if n := countRows(t, db, &models.SteamSnapshot{}); n != 1 {
		t.Fatalf("steam rows=%d want=1", n)
	}
	if n := countRows(t, db, &models.BuffSnapshot{}); n != 1 {
		t.Fatalf("buff rows=%d want=1", n)
	}

	// Another item at the same second and the same item a second later are new rows.
	if ok, err := s.InsertSteamSnapshot(ctx, &models.SteamSnapshot{ItemID: 2, Timestamp: ts}); !ok || err != nil {
		t.Fatalf("other item inserted=%v err=%v", ok, err)
	}
	later := ts.Add(time.Second)
	if ok, err := s.InsertSteamSnapshot(ctx, &models.SteamSnapshot{ItemID: 1, Timestamp: later, BestAsk: f64(11)}); !ok || err != nil {
		t.Fatalf("next second inserted=%v err=%v", ok, err)
	}

	latest, err := s.LatestSteamSnapshot(ctx, 1)
	if err != nil || latest == nil || !latest.Timestamp.Equal(later) || *latest.BestAsk != 11 {
		t.Fatalf("latest=%+v err=%v", latest, err)
	}
	history, err := s.SteamHistory(ctx, 1, ts)
	if err != nil || len(history) != 2 || !history[0].Timestamp.Equal(ts) {
		t.Fatalf("history=%+v err=%v", history, err)
	}
	if missing, err := s.LatestBuffSnapshot(ctx, 99); missing != nil || err != nil {
		t.Fatalf("missing=%+v err=%v", missing, err)
	}
}

func TestGormDepthIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, db := newGormStore(t)
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rows := func() []models.BookDepth {
		return []models.BookDepth{
			{SnapshotID: 7, Source: models.SourceBuff, Side: models.SideAsk, Price: 70, Quantity: 1, OrderRank: 1, Timestamp: ts},
			{SnapshotID: 7, Source: models.SourceBuff, Side: models.SideAsk, Price: 71, Quantity: 1, OrderRank: 2, Timestamp: ts},
			{SnapshotID: 7, Source: models.SourceBuff, Side: models.SideBid, Price: 60, Quantity: 2, OrderRank: 1, Timestamp: ts},
		}
	}

	if n, err := s.InsertDepth(ctx, rows()); n != 3 || err != nil {
		t.Fatalf("first insert n=%d err=%v", n, err)
	}
	if n, err := s.InsertDepth(ctx, rows()); n != 0 || err != nil {
		t.Fatalf("second insert n=%d err=%v", n, err)
	}
	if n := countRows(t, db, &models.BookDepth{}); n != 3 {
		t.Fatalf("depth rows=%d want=3", n)
	}
}

func TestGormItems(t *testing.T) {
	ctx := context.Background()
	s, _ := newGormStore(t)

	item := &models.Item{MarketHashName: "AK-47 | Redline (Field-Tested)", AppID: 730}
	created, err := s.GetOrCreateItem(ctx, item)
	if err != nil || !created || item.ItemID == 0 {
		t.Fatalf("created=%v err=%v item=%+v", created, err, item)
	}
	again := &models.Item{MarketHashName: "AK-47 | Redline (Field-Tested)", AppID: 730}
	created, err = s.GetOrCreateItem(ctx, again)
	if err != nil || created || again.ItemID != item.ItemID {
		t.Fatalf("again=%+v created=%v err=%v", again, created, err)
	}

	if err := s.AttachBuffGoodsID(ctx, item.ItemID, 33815); err != nil {
		t.Fatalf("attach err=%v", err)
	}
	got, err := s.GetItemByName(ctx, item.MarketHashName)
	if err != nil || got.BuffGoodsID == nil || *got.BuffGoodsID != 33815 {
		t.Fatalf("got=%+v err=%v", got, err)
	}
	if err := s.AttachBuffGoodsID(ctx, 999, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrNotFound)
	}
	if _, err := s.GetItem(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrNotFound)
	}
}

func TestGormLatestCandidates(t *testing.T) {
	ctx := context.Background()
	s, _ := newGormStore(t)
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	for _, c := range []models.TradeCandidate{
		{ItemID: 1, Timestamp: t0, PnLNow: 5, RecommendedAction: models.ActionCandidate},
		{ItemID: 1, Timestamp: t1, PnLNow: 1, RecommendedAction: models.ActionMonitor},
		{ItemID: 2, Timestamp: t1, PnLNow: 2, RecommendedAction: models.ActionMonitor},
		// Same second as the row above: the later insert wins.
		{ItemID: 2, Timestamp: t1, PnLNow: 4, RecommendedAction: models.ActionCandidate},
	} {
		if err := s.InsertCandidate(ctx, &c); err != nil {
			t.Fatalf("insert candidate: %v", err)
		}
	}

	all, err := s.LatestCandidates(ctx, CandidateFilter{})
	if err != nil {
		t.Fatalf("LatestCandidates err=%v", err)
	}
	if len(all) != 2 || all[0].ItemID != 2 || all[0].PnLNow != 4 || all[1].ItemID != 1 || all[1].PnLNow != 1 {
		t.Fatalf("latest=%+v", all)
	}

	picked, _ := s.LatestCandidates(ctx, CandidateFilter{Action: models.ActionCandidate})
	if len(picked) != 1 || picked[0].ItemID != 2 {
		t.Fatalf("candidates=%+v", picked)
	}
	monitor, _ := s.LatestCandidates(ctx, CandidateFilter{Action: models.ActionMonitor})
	if len(monitor) != 1 || monitor[0].ItemID != 1 {
		t.Fatalf("monitor=%+v", monitor)
	}
	limited, _ := s.LatestCandidates(ctx, CandidateFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ItemID != 2 {
		t.Fatalf("limited=%+v", limited)
	}
}

func TestGormFetchLogSummary(t *testing.T) {
	ctx := context.Background()
	s, _ := newGormStore(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for _, e := range []models.FetchLog{
		{Source: models.SourceSteam, Timestamp: now, StatusCode: 200, Success: true, LatencyMs: 100},
		{Source: models.SourceSteam, Timestamp: now, StatusCode: 200, Success: true, LatencyMs: 200},
		{Source: models.SourceSteam, Timestamp: now, StatusCode: 429, Success: false, LatencyMs: 300, ErrorMessage: "rate limited"},
		{Source: models.SourceBuff, Timestamp: now, StatusCode: 200, Success: true, LatencyMs: 50},
		{Source: models.SourceSteam, Timestamp: now.Add(-48 * time.Hour), StatusCode: 500, LatencyMs: 1000},
	} {
		if err := s.InsertFetchLog(ctx, &e); err != nil {
			t.Fatalf("insert fetch log: %v", err)
		}
	}

	stats, err := s.FetchLogSummary(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FetchLogSummary err=%v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats=%+v", stats)
	}
	buff, steam := stats[0], stats[1]
	if buff.Source != models.SourceBuff || buff.Total != 1 || buff.Successes != 1 || buff.Failures != 0 {
		t.Fatalf("buff=%+v", buff)
	}
	if steam.Source != models.SourceSteam || steam.Total != 3 || steam.Successes != 2 || steam.Failures != 1 || steam.AvgLatencyMs != 200 {
		t.Fatalf("steam=%+v", steam)
	}
}
