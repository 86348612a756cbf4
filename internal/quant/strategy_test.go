package quant

import (
	"context"
	"math"
	"testing"
	"time"

	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/store"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, mem *store.Memory, itemID uint, steam *models.SteamSnapshot, buff *models.BuffSnapshot) {
	t.Helper()
	ctx := context.Background()
	if steam != nil {
		steam.ItemID = itemID
		if _, err := mem.InsertSteamSnapshot(ctx, steam); err != nil {
			t.Fatalf("seed steam: %v", err)
		}
	}
	if buff != nil {
		buff.ItemID = itemID
		if _, err := mem.InsertBuffSnapshot(ctx, buff); err != nil {
			t.Fatalf("seed buff: %v", err)
		}
	}
}

func TestEvaluatePnLExactness(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, 1,
		&models.SteamSnapshot{Timestamp: fixedNow, MedianPrice: f64(100), LowestPrice: f64(105), BestAsk: f64(105)},
		&models.BuffSnapshot{Timestamp: fixedNow, BestAsk: f64(70), SellOrderCount: intp(50)},
	)
	e := NewEvaluator(mem, nil, nil, nil, WithNow(func() time.Time { return fixedNow }))

	c, err := e.Evaluate(context.Background(), models.Item{ItemID: 1})
	if err != nil || c == nil {
		t.Fatalf("c=%v err=%v", c, err)
	}
	if !near(c.AdjSteamBid, 85, 1e-9) || !near(c.PnLNow, 15, 1e-9) || !near(c.SpreadPct, 15.0/70, 1e-9) {
		t.Fatalf("adj=%v pnl=%v spread=%v", c.AdjSteamBid, c.PnLNow, c.SpreadPct)
	}
	if c.SteamBid != 100 || c.BuffAsk != 70 || c.HoldDays != 3 {
		t.Fatalf("bid=%v ask=%v hold=%d", c.SteamBid, c.BuffAsk, c.HoldDays)
	}
	if !near(c.ExecutionProb, 1-math.Exp(-5), 1e-12) {
		t.Fatalf("exec=%v", c.ExecutionProb)
	}
	// One history point: default volatility 0.05, risk ~0.43.
	if c.RecommendedAction != models.ActionCandidate || c.RiskScore >= 0.5 {
		t.Fatalf("action=%s risk=%v", c.RecommendedAction, c.RiskScore)
	}
	if got := mem.Candidates(); len(got) != 1 {
		t.Fatalf("candidates=%d want=1", len(got))
	}
}

func TestEvaluateMissingCounterpart(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, 1, &models.SteamSnapshot{Timestamp: fixedNow, LowestPrice: f64(10)}, nil)
	seed(t, mem, 2, nil, &models.BuffSnapshot{Timestamp: fixedNow, BestAsk: f64(7)})
	e := NewEvaluator(mem, nil, nil, nil)

	for _, id := range []uint{1, 2, 3} {
		c, err := e.Evaluate(context.Background(), models.Item{ItemID: id})
		if err != nil || c != nil {
			t.Fatalf("item %d: c=%v err=%v", id, c, err)
		}
	}
	if got := mem.Candidates(); len(got) != 0 {
		t.Fatalf("candidates=%d want=0", len(got))
	}
}

func TestEvaluateSkipsWithoutBuffAsk(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, 1,
		&models.SteamSnapshot{Timestamp: fixedNow, LowestPrice: f64(10)},
		&models.BuffSnapshot{Timestamp: fixedNow, BestBid: f64(6)},
	)
	c, err := NewEvaluator(mem, nil, nil, nil).Evaluate(context.Background(), models.Item{ItemID: 1})
	if err != nil || c != nil {
		t.Fatalf("c=%v err=%v", c, err)
	}
}

func TestEvaluateUnprofitableIsSkipAction(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, 1,
		&models.SteamSnapshot{Timestamp: fixedNow, LowestPrice: f64(10)},
		&models.BuffSnapshot{Timestamp: fixedNow, BestAsk: f64(9)},
	)
	c, err := NewEvaluator(mem, nil, nil, nil).Evaluate(context.Background(), models.Item{ItemID: 1})
	if err != nil || c == nil {
		t.Fatalf("c=%v err=%v", c, err)
	}
	if c.PnLNow >= 0 || c.RecommendedAction != models.ActionSkip {
		t.Fatalf("pnl=%v action=%s", c.PnLNow, c.RecommendedAction)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	mem := store.NewMemory()
	for i, p := range []float64{100, 104, 98, 101} {
		ts := fixedNow.Add(time.Duration(i-3) * 24 * time.Hour)
		seed(t, mem, 1, &models.SteamSnapshot{Timestamp: ts, MedianPrice: f64(p)}, nil)
	}
	seed(t, mem, 1, nil, &models.BuffSnapshot{Timestamp: fixedNow, BestAsk: f64(70), SellOrderCount: intp(4)})

	for _, model := range []HoldRiskModel{NormalModel{}, LognormalModel{}} {
		e := NewEvaluator(mem, nil, model, nil, WithNow(func() time.Time { return fixedNow }))
		a, err := e.Evaluate(context.Background(), models.Item{ItemID: 1})
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		b, err := e.Evaluate(context.Background(), models.Item{ItemID: 1})
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		a.CandidateID, b.CandidateID = 0, 0
		if *a != *b {
			t.Fatalf("%s: a=%+v b=%+v", model.Name(), a, b)
		}
	}
}

func TestHistoryVolatility(t *testing.T) {
	cfg := DefaultStrategyConfig()
	hist := []models.SteamSnapshot{{MedianPrice: f64(100)}, {MedianPrice: f64(110)}, {MedianPrice: f64(99)}}
	want := (math.Log(1.1) - math.Log(0.9)) / 2
	if got := historyVolatility(cfg, hist); !near(got, want, 1e-12) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	if got := historyVolatility(cfg, hist[:2]); got != cfg.DefaultVolatility {
		t.Fatalf("short history=%v want default", got)
	}
	flat := []models.SteamSnapshot{{LowestPrice: f64(5)}, {LowestPrice: f64(5)}, {LowestPrice: f64(5)}}
	if got := historyVolatility(cfg, flat); got != 0 {
		t.Fatalf("flat=%v want=0", got)
	}
}

func TestSteamReferencePriceChain(t *testing.T) {
	if p, _ := SteamReferencePrice(&models.SteamSnapshot{BestBid: f64(9), MedianPrice: f64(10), LowestPrice: f64(11)}); p != 9 {
		t.Fatalf("bid first: %v", p)
	}
	if p, _ := SteamReferencePrice(&models.SteamSnapshot{MedianPrice: f64(10), LowestPrice: f64(11)}); p != 10 {
		t.Fatalf("median next: %v", p)
	}
	if p, _ := SteamReferencePrice(&models.SteamSnapshot{LowestPrice: f64(11)}); p != 11 {
		t.Fatalf("lowest last: %v", p)
	}
	if _, ok := SteamReferencePrice(&models.SteamSnapshot{}); ok {
		t.Fatalf("empty snapshot should have no price")
	}
}

func TestStrategyConfigFrom(t *testing.T) {
	sc := StrategyConfigFrom(config.EvaluatorConfig{FeeRate: 0.13, MinPnL: 2, HoldDays: 7, BuffFXRate: 0.13})
	if sc.FeeRate != 0.13 || sc.MinPnL != 2 || sc.HoldDays != 7 || sc.BuffFXRate != 0.13 {
		t.Fatalf("sc=%+v", sc)
	}
	if sc.TypicalDepth != 10 || sc.RiskThreshold != 0.5 {
		t.Fatalf("unset keys should keep defaults: %+v", sc)
	}
}
