// Package store persists the catalog, snapshot time series, depth rows, fetch
// logs and trade candidates. Snapshot inserts are upsert-or-ignore on
// (item_id, timestamp): a duplicate is reported as not inserted, never as an error.
package store

import (
	"context"
	"errors"
	"time"

	"csgo-arbitrage/internal/models"
)

var ErrNotFound = errors.New("store: not found")

type Store interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, itemID uint) (*models.Item, error)
	GetItemByName(ctx context.Context, name string) (*models.Item, error)
	GetOrCreateItem(ctx context.Context, item *models.Item) (created bool, err error)
	AttachBuffGoodsID(ctx context.Context, itemID uint, goodsID int64) error

	InsertSteamSnapshot(ctx context.Context, snap *models.SteamSnapshot) (inserted bool, err error)
	InsertBuffSnapshot(ctx context.Context, snap *models.BuffSnapshot) (inserted bool, err error)
	LatestSteamSnapshot(ctx context.Context, itemID uint) (*models.SteamSnapshot, error)
	LatestBuffSnapshot(ctx context.Context, itemID uint) (*models.BuffSnapshot, error)
	SteamHistory(ctx context.Context, itemID uint, since time.Time) ([]models.SteamSnapshot, error)
	BuffHistory(ctx context.Context, itemID uint, since time.Time) ([]models.BuffSnapshot, error)

	InsertDepth(ctx context.Context, rows []models.BookDepth) (int, error)

	InsertFetchLog(ctx context.Context, entry *models.FetchLog) error
	FetchLogSummary(ctx context.Context, since time.Time) ([]FetchLogStat, error)

	InsertCandidate(ctx context.Context, c *models.TradeCandidate) error
	LatestCandidates(ctx context.Context, filter CandidateFilter) ([]models.TradeCandidate, error)
}

// FetchLogStat aggregates fetch_logs per source.
type FetchLogStat struct {
	Source       models.Source `json:"source"`
	Total        int64         `json:"total"`
	Successes    int64         `json:"successes"`
	Failures     int64         `json:"failures"`
	AvgLatencyMs float64       `json:"avg_latency_ms"`
}

// CandidateFilter selects the most recent candidate per item.
type CandidateFilter struct {
	Action models.Action
	Limit  int
}
