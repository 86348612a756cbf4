package normalize

import (
	"context"
	"errors"
	"testing"
	"time"

	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/source"
	"csgo-arbitrage/internal/store"
)

func TestParsePrice(t *testing.T) {
	cases := map[string]string{
		"$12.34":        "12.34",
		"10,50€":        "10.5",
		"€10.50":        "10.5",
		"$1,234.56":     "1234.56",
		"1.234,56 pуб.": "1234.56",
		"¥ 8.5":         "8.5",
		"12,--€":        "12",
		"1.234,--€":     "1234",
		"8.50":          "8.5",
	}
	for in, want := range cases {
		got, ok := ParsePrice(in)
		if !ok || got.String() != want {
			t.Fatalf("ParsePrice(%q)=%s,%v want=%s", in, got, ok, want)
		}
	}
	for _, bad := range []string{"", "invalid", "--"} {
		if _, ok := ParsePrice(bad); ok {
			t.Fatalf("ParsePrice(%q) should fail", bad)
		}
	}
}

func TestParseVolume(t *testing.T) {
	if v, ok := ParseVolume("1,234"); !ok || v != 1234 {
		t.Fatalf("volume=%d ok=%v", v, ok)
	}
	if _, ok := ParseVolume(""); ok {
		t.Fatalf("empty volume should be absent")
	}
}

var item = models.Item{ItemID: 3, MarketHashName: "AWP | Asiimov (Field-Tested)"}

func steamPayload(lowest, median, volume string) *source.RawPayload {
	return &source.RawPayload{
		Source: models.SourceSteam,
		Body:   []byte(`{"success":true}`),
		Steam:  &source.SteamPriceOverview{Success: true, LowestPrice: lowest, MedianPrice: median, Volume: volume},
	}
}

func TestSteamSnapshotFrom(t *testing.T) {
	ts := time.Date(2026, 10, 1, 12, 0, 0, 750, time.UTC)
	snap, err := SteamSnapshotFrom(item, steamPayload("$10.50", "$11.00", "1,234"), ts, 3)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if snap.BestBid != nil {
		t.Fatalf("best_bid=%v want absent", *snap.BestBid)
	}
	if snap.BestAsk == nil || *snap.BestAsk != 10.5 || *snap.MedianPrice != 11 {
		t.Fatalf("snap=%+v", snap)
	}
	if snap.Volume24h == nil || *snap.Volume24h != 1234 || snap.Volume7d != nil || snap.HighestPrice != nil {
		t.Fatalf("volumes=%v/%v highest=%v", snap.Volume24h, snap.Volume7d, snap.HighestPrice)
	}
	if snap.CurrencyID != 3 || !snap.Timestamp.Equal(ts.Truncate(time.Second)) {
		t.Fatalf("currency=%d ts=%v", snap.CurrencyID, snap.Timestamp)
	}
	if string(snap.RawResponse) != `{"success":true}` {
		t.Fatalf("raw=%s", snap.RawResponse)
	}
}

func TestSteamWithoutPricesIsNormalizationError(t *testing.T) {
	_, err := SteamSnapshotFrom(item, steamPayload("", "$3.00", "12"), time.Now(), 3)
	var ne *NormalizationError
	if !errors.As(err, &ne) {
		t.Fatalf("err=%v want NormalizationError", err)
	}
}

func TestMissingTimestampIsNormalizationError(t *testing.T) {
	_, err := SteamSnapshotFrom(item, steamPayload("$1.00", "", ""), time.Time{}, 3)
	var ne *NormalizationError
	if !errors.As(err, &ne) {
		t.Fatalf("err=%v want NormalizationError", err)
	}
}

func TestBuffSnapshotFrom(t *testing.T) {
	raw := &source.RawPayload{
		Source: models.SourceBuff,
		Body:   []byte(`{}`),
		Buff: &source.BuffOrderBook{
			SellOrders: []source.BuffOrder{{Price: "8.60"}, {Price: "8.50"}, {Price: "bad"}},
			BuyOrders:  []source.BuffOrder{{Price: "8.1", Num: 2}, {Price: "8.2", Num: 1}},
			SellTotal:  57,
		},
	}
	snap, err := BuffSnapshotFrom(item, raw, time.Now(), "CNY")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if *snap.BestAsk != 8.5 || *snap.BestBid != 8.2 {
		t.Fatalf("ask=%v bid=%v", *snap.BestAsk, *snap.BestBid)
	}
	if *snap.SellOrderCount != 57 || *snap.BuyOrderCount != 2 || snap.Currency != "CNY" {
		t.Fatalf("counts=%d/%d currency=%s", *snap.SellOrderCount, *snap.BuyOrderCount, snap.Currency)
	}
}

func TestBuffEmptyAskSideKeepsAbsent(t *testing.T) {
	raw := &source.RawPayload{
		Source: models.SourceBuff,
		Buff:   &source.BuffOrderBook{BuyOrders: []source.BuffOrder{{Price: "5"}}},
	}
	snap, err := BuffSnapshotFrom(item, raw, time.Now(), "CNY")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if snap.BestAsk != nil {
		t.Fatalf("best_ask=%v want absent", *snap.BestAsk)
	}

	empty := &source.RawPayload{Source: models.SourceBuff, Buff: &source.BuffOrderBook{}}
	if _, err := BuffSnapshotFrom(item, empty, time.Now(), "CNY"); err == nil {
		t.Fatalf("empty book should fail normalization")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	n := New(mem, 3, "CNY", nil)
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	first, err := n.Normalize(ctx, item, steamPayload("$1.00", "", ""), ts)
	if err != nil || !first.Inserted || first.SnapshotID == 0 {
		t.Fatalf("first=%+v err=%v", first, err)
	}
	second, err := n.Normalize(ctx, item, steamPayload("$1.00", "", ""), ts.Add(300*time.Millisecond))
	if err != nil {
		t.Fatalf("duplicate should not error: %v", err)
	}
	if second.Inserted {
		t.Fatalf("duplicate inserted")
	}
	if steam, _ := mem.SnapshotCounts(); steam != 1 {
		t.Fatalf("steam rows=%d want=1", steam)
	}
}
