package depth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/source"
	"csgo-arbitrage/internal/store"
)

func TestRecordBuffLevels(t *testing.T) {
	mem := store.NewMemory()
	r := NewRecorder(mem, 2, nil)
	book := &source.BuffOrderBook{
		SellOrders: []source.BuffOrder{{Price: "8.50"}, {Price: "oops"}, {Price: "8.60"}, {Price: "8.70"}},
		BuyOrders:  []source.BuffOrder{{Price: "8.20", Num: 4}},
	}

	res := r.Record(context.Background(), 42, models.SourceBuff, time.Now(), BuffLevels(book))
	if res.Err != nil || res.Written != 4 || res.Dropped != 0 {
		t.Fatalf("res=%+v", res)
	}

	rows := mem.Depth(42, models.SourceBuff)
	if len(rows) != 4 {
		t.Fatalf("rows=%d want=4", len(rows))
	}
	// Memory orders by side ("ask" < "bid") then rank.
	asks := rows[:3]
	if asks[0].OrderRank != 1 || asks[0].Price != 8.5 || asks[2].OrderRank != 3 || asks[2].Price != 8.7 {
		t.Fatalf("asks=%+v", asks)
	}
	bid := rows[3]
	if bid.Side != models.SideBid || bid.Quantity != 4 || bid.OrderRank != 1 {
		t.Fatalf("bid=%+v", bid)
	}
}

func TestRecordDropsInvalidRanks(t *testing.T) {
	mem := store.NewMemory()
	r := NewRecorder(mem, 10, nil)
	levels := slices.Values([]Level{
		{Side: models.SideAsk, Price: 1, Quantity: 1, Rank: 1},
		{Side: models.SideAsk, Price: 2, Quantity: 1, Rank: 1},
		{Side: models.SideBid, Price: 1, Quantity: 1, Rank: 0},
		{Side: models.SideBid, Price: 1, Quantity: 1, Rank: 1},
	})
	res := r.Record(context.Background(), 1, models.SourceSteam, time.Now(), levels)
	if res.Written != 2 || res.Dropped != 2 {
		t.Fatalf("res=%+v", res)
	}
}

type failingWriter struct{ calls int }

func (f *failingWriter) InsertDepth(context.Context, []models.BookDepth) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestRecordIsBestEffort(t *testing.T) {
	w := &failingWriter{}
	r := NewRecorder(w, 1, nil)
	levels := slices.Values([]Level{
		{Side: models.SideAsk, Price: 1, Quantity: 1, Rank: 1},
		{Side: models.SideAsk, Price: 2, Quantity: 1, Rank: 2},
	})
	res := r.Record(context.Background(), 1, models.SourceBuff, time.Now(), levels)
	if res.Err == nil || res.Written != 0 {
		t.Fatalf("res=%+v", res)
	}
	if w.calls != 1 {
		t.Fatalf("writer calls=%d want=1 (stop after first failure)", w.calls)
	}
}
