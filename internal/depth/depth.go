// Package depth records per-level order-book rows next to a snapshot.
// Recording is best effort: a failure never invalidates the parent snapshot.
package depth

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"csgo-arbitrage/internal/metrics"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/normalize"
	"csgo-arbitrage/internal/source"
)

// Level is one price level. Rank 1 is the top of book.
type Level struct {
	Side     models.Side
	Price    float64
	Quantity float64
	Rank     int
}

type Writer interface {
	InsertDepth(ctx context.Context, rows []models.BookDepth) (int, error)
}

// Result summarises one Record call.
type Result struct {
	Written int
	Dropped int
	Err     error
}

type Recorder struct {
	w         Writer
	batchSize int
	log       *zap.Logger
}

func NewRecorder(w Writer, batchSize int, log *zap.Logger) *Recorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{w: w, batchSize: batchSize, log: log.Named("depth")}
}

// Record consumes levels and appends them for snapshotID. Levels with a
// non-positive or repeated rank on the same side are dropped.
func (r *Recorder) Record(ctx context.Context, snapshotID uint64, src models.Source, ts time.Time, levels iter.Seq[Level]) Result {
	var res Result
	seen := make(map[models.Side]map[int]struct{}, 2)
	batch := make([]models.BookDepth, 0, r.batchSize)

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		n, err := r.w.InsertDepth(ctx, batch)
		res.Written += n
		batch = batch[:0]
		if err != nil {
			res.Err = err
			return false
		}
		return true
	}

	for lv := range levels {
		if lv.Rank <= 0 || (lv.Side != models.SideBid && lv.Side != models.SideAsk) {
			res.Dropped++
			continue
		}
		ranks, ok := seen[lv.Side]
		if !ok {
			ranks = make(map[int]struct{})
			seen[lv.Side] = ranks
		}
		if _, dup := ranks[lv.Rank]; dup {
			res.Dropped++
			continue
		}
		ranks[lv.Rank] = struct{}{}

		batch = append(batch, models.BookDepth{
			SnapshotID: snapshotID,
			Source:     src,
			Side:       lv.Side,
			Price:      lv.Price,
			Quantity:   lv.Quantity,
			OrderRank:  lv.Rank,
			Timestamp:  ts,
		})
		if len(batch) >= r.batchSize && !flush() {
			break
		}
	}
	if res.Err == nil {
		flush()
	}

	metrics.DepthRowsTotal.WithLabelValues(src.String()).Add(float64(res.Written))
	if res.Err != nil {
		r.log.Warn("depth recording incomplete",
			zap.Uint64("snapshot_id", snapshotID),
			zap.String("source", src.String()),
			zap.Int("written", res.Written),
			zap.Error(res.Err))
	}
	return res
}

// BuffLevels yields the Buff order pages as levels: sell listings on the ask
// side, purchase requests on the bid side, ranked in page order. Unparseable
// prices are skipped without consuming a rank.
func BuffLevels(book *source.BuffOrderBook) iter.Seq[Level] {
	return func(yield func(Level) bool) {
		if book == nil {
			return
		}
		sides := []struct {
			side   models.Side
			orders []source.BuffOrder
		}{
			{models.SideAsk, book.SellOrders},
			{models.SideBid, book.BuyOrders},
		}
		for _, s := range sides {
			rank := 0
			for _, o := range s.orders {
				p, ok := normalize.ParsePrice(o.Price)
				if !ok {
					continue
				}
				qty := float64(o.Num)
				if qty <= 0 {
					qty = 1
				}
				rank++
				if !yield(Level{Side: s.side, Price: p.InexactFloat64(), Quantity: qty, Rank: rank}) {
					return
				}
			}
		}
	}
}
