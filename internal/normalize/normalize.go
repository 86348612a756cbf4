// Package normalize maps source payloads onto canonical snapshot rows and
// persists them idempotently.
package normalize

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"csgo-arbitrage/internal/metrics"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/source"
)

// NormalizationError means the payload lacks the fields a snapshot needs.
type NormalizationError struct {
	Source models.Source
	ItemID uint
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s item %d: %s", e.Source, e.ItemID, e.Reason)
}

// SnapshotWriter persists snapshots with upsert-or-ignore semantics.
type SnapshotWriter interface {
	InsertSteamSnapshot(ctx context.Context, snap *models.SteamSnapshot) (bool, error)
	InsertBuffSnapshot(ctx context.Context, snap *models.BuffSnapshot) (bool, error)
}

// Snapshot is the source-independent view of a stored snapshot.
type Snapshot struct {
	Source     models.Source
	SnapshotID uint64
	ItemID     uint
	Timestamp  time.Time
	BestBid    *float64
	BestAsk    *float64
	// Inserted is false when a row for (item, timestamp) already existed.
	Inserted bool

	Steam *models.SteamSnapshot
	Buff  *models.BuffSnapshot
}

type Normalizer struct {
	w               SnapshotWriter
	steamCurrencyID int
	buffCurrency    string
	log             *zap.Logger
}

func New(w SnapshotWriter, steamCurrencyID int, buffCurrency string, log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{
		w:               w,
		steamCurrencyID: steamCurrencyID,
		buffCurrency:    buffCurrency,
		log:             log.Named("normalize"),
	}
}

// Normalize maps raw onto a snapshot for item at ts and stores it. A
// duplicate (item, timestamp) is not an error: the returned snapshot has
// Inserted=false.
func (n *Normalizer) Normalize(ctx context.Context, item models.Item, raw *source.RawPayload, ts time.Time) (*Snapshot, error) {
	if raw == nil {
		return nil, &NormalizationError{ItemID: item.ItemID, Reason: "empty payload"}
	}
	switch raw.Source {
	case models.SourceSteam:
		snap, err := SteamSnapshotFrom(item, raw, ts, n.steamCurrencyID)
		if err != nil {
			metrics.SnapshotsTotal.WithLabelValues(raw.Source.String(), "invalid").Inc()
			return nil, err
		}
		inserted, err := n.w.InsertSteamSnapshot(ctx, snap)
		if err != nil {
			return nil, err
		}
		n.count(raw.Source, inserted)
		return &Snapshot{
			Source: raw.Source, SnapshotID: snap.SnapshotID, ItemID: item.ItemID, Timestamp: snap.Timestamp,
			BestBid: snap.BestBid, BestAsk: snap.BestAsk, Inserted: inserted, Steam: snap,
		}, nil

	case models.SourceBuff:
		snap, err := BuffSnapshotFrom(item, raw, ts, n.buffCurrency)
		if err != nil {
			metrics.SnapshotsTotal.WithLabelValues(raw.Source.String(), "invalid").Inc()
			return nil, err
		}
		inserted, err := n.w.InsertBuffSnapshot(ctx, snap)
		if err != nil {
			return nil, err
		}
		n.count(raw.Source, inserted)
		return &Snapshot{
			Source: raw.Source, SnapshotID: snap.SnapshotID, ItemID: item.ItemID, Timestamp: snap.Timestamp,
			BestBid: snap.BestBid, BestAsk: snap.BestAsk, Inserted: inserted, Buff: snap,
		}, nil

	default:
		return nil, &NormalizationError{Source: raw.Source, ItemID: item.ItemID, Reason: "unknown source"}
	}
}

func (n *Normalizer) count(src models.Source, inserted bool) {
	result := "inserted"
	if !inserted {
		result = "duplicate"
		n.log.Debug("snapshot already stored", zap.String("source", src.String()))
	}
	metrics.SnapshotsTotal.WithLabelValues(src.String(), result).Inc()
}

// SteamSnapshotFrom maps priceoverview. The endpoint has no bid: best_ask is
// the lowest listing and best_bid stays absent.
func SteamSnapshotFrom(item models.Item, raw *source.RawPayload, ts time.Time, currencyID int) (*models.SteamSnapshot, error) {
	if raw.Steam == nil {
		return nil, &NormalizationError{Source: models.SourceSteam, ItemID: item.ItemID, Reason: "missing priceoverview body"}
	}
	if ts.IsZero() {
		return nil, &NormalizationError{Source: models.SourceSteam, ItemID: item.ItemID, Reason: "missing timestamp"}
	}
	ov := raw.Steam

	snap := &models.SteamSnapshot{
		ItemID:      item.ItemID,
		Timestamp:   canonicalTime(ts),
		LowestPrice: pricePtr(ov.LowestPrice),
		MedianPrice: pricePtr(ov.MedianPrice),
		CurrencyID:  currencyID,
		RawResponse: datatypes.JSON(raw.Body),
	}
	snap.BestAsk = snap.LowestPrice
	if v, ok := ParseVolume(ov.Volume); ok {
		snap.Volume24h = &v
	}

	if snap.BestBid == nil && snap.BestAsk == nil {
		return nil, &NormalizationError{Source: models.SourceSteam, ItemID: item.ItemID, Reason: "neither bid nor ask present"}
	}
	return snap, nil
}

// BuffSnapshotFrom maps the first page of sell and buy orders. best_ask is
// the cheapest listing, best_bid the highest purchase request.
func BuffSnapshotFrom(item models.Item, raw *source.RawPayload, ts time.Time, currency string) (*models.BuffSnapshot, error) {
	if raw.Buff == nil {
		return nil, &NormalizationError{Source: models.SourceBuff, ItemID: item.ItemID, Reason: "missing order book body"}
	}
	if ts.IsZero() {
		return nil, &NormalizationError{Source: models.SourceBuff, ItemID: item.ItemID, Reason: "missing timestamp"}
	}
	book := raw.Buff

	snap := &models.BuffSnapshot{
		ItemID:         item.ItemID,
		Timestamp:      canonicalTime(ts),
		BestAsk:        extremePrice(book.SellOrders, math.Min),
		BestBid:        extremePrice(book.BuyOrders, math.Max),
		SellOrderCount: orderCount(book.SellTotal, len(book.SellOrders)),
		BuyOrderCount:  orderCount(book.BuyTotal, len(book.BuyOrders)),
		Currency:       currency,
		RawResponse:    datatypes.JSON(raw.Body),
	}
	if snap.BestBid == nil && snap.BestAsk == nil {
		return nil, &NormalizationError{Source: models.SourceBuff, ItemID: item.ItemID, Reason: "neither bid nor ask present"}
	}
	return snap, nil
}

// canonicalTime is the stored precision of snapshot timestamps.
func canonicalTime(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Second)
}

func extremePrice(orders []source.BuffOrder, pick func(a, b float64) float64) *float64 {
	var out *float64
	for _, o := range orders {
		p := pricePtr(o.Price)
		if p == nil {
			continue
		}
		if out == nil {
			out = p
			continue
		}
		v := pick(*out, *p)
		out = &v
	}
	return out
}

func orderCount(total, page int) *int {
	n := page
	if total > n {
		n = total
	}
	return &n
}
