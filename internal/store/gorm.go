package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"csgo-arbitrage/internal/models"
)

// GormStore is the SQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	if err := s.db.WithContext(ctx).Order("item_id asc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *GormStore) GetItem(ctx context.Context, itemID uint) (*models.Item, error) {
	var item models.Item
	err := s.db.WithContext(ctx).First(&item, "item_id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", itemID, err)
	}
	return &item, nil
}

func (s *GormStore) GetItemByName(ctx context.Context, name string) (*models.Item, error) {
	var item models.Item
	err := s.db.WithContext(ctx).First(&item, "market_hash_name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %q: %w", name, err)
	}
	return &item, nil
}

func (s *GormStore) GetOrCreateItem(ctx context.Context, item *models.Item) (bool, error) {
	res := s.db.WithContext(ctx).
		Where(models.Item{MarketHashName: item.MarketHashName}).
		Attrs(models.Item{BuffGoodsID: item.BuffGoodsID, AppID: item.AppID}).
		FirstOrCreate(item)
	if res.Error != nil {
		return false, fmt.Errorf("get or create item %q: %w", item.MarketHashName, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) AttachBuffGoodsID(ctx context.Context, itemID uint, goodsID int64) error {
	res := s.db.WithContext(ctx).Model(&models.Item{}).
		Where("item_id = ?", itemID).
		Updates(map[string]any{"buff_goods_id": goodsID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("attach buff goods id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) InsertSteamSnapshot(ctx context.Context, snap *models.SteamSnapshot) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(snap)
	if res.Error != nil {
		return false, fmt.Errorf("insert steam snapshot: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) InsertBuffSnapshot(ctx context.Context, snap *models.BuffSnapshot) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(snap)
	if res.Error != nil {
		return false, fmt.Errorf("insert buff snapshot: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) LatestSteamSnapshot(ctx context.Context, itemID uint) (*models.SteamSnapshot, error) {
	var snaps []models.SteamSnapshot
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("timestamp desc").
		Limit(1).
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("latest steam snapshot: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

func (s *GormStore) LatestBuffSnapshot(ctx context.Context, itemID uint) (*models.BuffSnapshot, error) {
	var snaps []models.BuffSnapshot
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("timestamp desc").
		Limit(1).
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("latest buff snapshot: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

func (s *GormStore) SteamHistory(ctx context.Context, itemID uint, since time.Time) ([]models.SteamSnapshot, error) {
	var snaps []models.SteamSnapshot
	err := s.db.WithContext(ctx).
		Omit("raw_response").
		Where("item_id = ? AND timestamp >= ?", itemID, since).
		Order("timestamp asc").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("steam history: %w", err)
	}
	return snaps, nil
}

func (s *GormStore) BuffHistory(ctx context.Context, itemID uint, since time.Time) ([]models.BuffSnapshot, error) {
	var snaps []models.BuffSnapshot
	err := s.db.WithContext(ctx).
		Omit("raw_response").
		Where("item_id = ? AND timestamp >= ?", itemID, since).
		Order("timestamp asc").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("buff history: %w", err)
	}
	return snaps, nil
}

func (s *GormStore) InsertDepth(ctx context.Context, rows []models.BookDepth) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("insert book depth: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) InsertFetchLog(ctx context.Context, entry *models.FetchLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert fetch log: %w", err)
	}
	return nil
}

func (s *GormStore) FetchLogSummary(ctx context.Context, since time.Time) ([]FetchLogStat, error) {
	var stats []FetchLogStat
	err := s.db.WithContext(ctx).
		Model(&models.FetchLog{}).
		Select("source, COUNT(*) AS total, SUM(CASE WHEN success THEN 1 ELSE 0 END) AS successes, AVG(latency_ms) AS avg_latency_ms").
		Where("timestamp >= ?", since).
		Group("source").
		Order("source").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("fetch log summary: %w", err)
	}
	for i := range stats {
		stats[i].Failures = stats[i].Total - stats[i].Successes
	}
	return stats, nil
}

func (s *GormStore) InsertCandidate(ctx context.Context, c *models.TradeCandidate) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("insert trade candidate: %w", err)
	}
	return nil
}

func (s *GormStore) LatestCandidates(ctx context.Context, filter CandidateFilter) ([]models.TradeCandidate, error) {
	db := s.db.WithContext(ctx)
	latestTS := db.Model(&models.TradeCandidate{}).
		Select("item_id, MAX(timestamp) AS ts").
		Group("item_id")
	// Rows sharing the latest second resolve to the last one inserted.
	latestIDs := db.Table("trade_candidates AS t").
		Select("MAX(t.candidate_id)").
		Joins("JOIN (?) AS l ON l.item_id = t.item_id AND l.ts = t.timestamp", latestTS).
		Group("t.item_id")

	q := db.Model(&models.TradeCandidate{}).Where("candidate_id IN (?)", latestIDs)
	if filter.Action != "" {
		q = q.Where("recommended_action = ?", filter.Action)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var out []models.TradeCandidate
	if err := q.Order("pnl_now desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("latest candidates: %w", err)
	}
	return out, nil
}
