package models

import (
	"time"

	"gorm.io/datatypes"
)

// Source 行情来源
type Source string

const (
	// SourceSteam is the Primary market (Steam Community Market).
	SourceSteam Source = "steam"
	// SourceBuff is the Secondary market (buff.163.com).
	SourceBuff Source = "buff"
)

func (s Source) String() string { return string(s) }

// Action 推荐动作
type Action string

const (
	ActionSkip      Action = "skip"
	ActionMonitor   Action = "monitor"
	ActionCandidate Action = "candidate"
)

// Side 盘口方向
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Item represents a tradable CS2 item in the catalog
type Item struct {
	ItemID         uint      `json:"item_id" gorm:"column:item_id;primaryKey"`
	MarketHashName string    `json:"market_hash_name" gorm:"size:255;uniqueIndex;not null"`
	BuffGoodsID    *int64    `json:"buff_goods_id" gorm:"index"`
	AppID          int       `json:"app_id" gorm:"not null;default:730"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Item) TableName() string { return "items" }

// SteamSnapshot 一次 Steam priceoverview 采样
type SteamSnapshot struct {
	SnapshotID   uint64         `json:"snapshot_id" gorm:"column:snapshot_id;primaryKey"`
	ItemID       uint           `json:"item_id" gorm:"not null;uniqueIndex:idx_steam_item_ts,priority:1"`
	Timestamp    time.Time      `json:"timestamp" gorm:"not null;uniqueIndex:idx_steam_item_ts,priority:2"`
	BestBid      *float64       `json:"best_bid"`
	BestAsk      *float64       `json:"best_ask"`
	Volume24h    *int64         `json:"volume_24h" gorm:"column:volume_24h"`
	Volume7d     *int64         `json:"volume_7d" gorm:"column:volume_7d"`
	MedianPrice  *float64       `json:"median_price"`
	LowestPrice  *float64       `json:"lowest_price"`
	HighestPrice *float64       `json:"highest_price"`
	CurrencyID   int            `json:"currency_id"`
	RawResponse  datatypes.JSON `json:"raw_response,omitempty"`
}

func (SteamSnapshot) TableName() string { return "steam_snapshots" }

// BuffSnapshot 一次 Buff 在售/求购采样
type BuffSnapshot struct {
	SnapshotID     uint64         `json:"snapshot_id" gorm:"column:snapshot_id;primaryKey"`
	ItemID         uint           `json:"item_id" gorm:"not null;uniqueIndex:idx_buff_item_ts,priority:1"`
	Timestamp      time.Time      `json:"timestamp" gorm:"not null;uniqueIndex:idx_buff_item_ts,priority:2"`
	BestBid        *float64       `json:"best_bid"`
	BestAsk        *float64       `json:"best_ask"`
	Volume24h      *int64         `json:"volume_24h" gorm:"column:volume_24h"`
	Volume7d       *int64         `json:"volume_7d" gorm:"column:volume_7d"`
	SellOrderCount *int           `json:"sell_order_count"`
	BuyOrderCount  *int           `json:"buy_order_count"`
	Currency       string         `json:"currency" gorm:"size:8"`
	RawResponse    datatypes.JSON `json:"raw_response,omitempty"`
}

func (BuffSnapshot) TableName() string { return "buff_snapshots" }

// BookDepth is one order-book level. SnapshotID points into steam_snapshots or
// buff_snapshots depending on Source, so it carries no foreign key.
type BookDepth struct {
	DepthID    uint64    `json:"depth_id" gorm:"column:depth_id;primaryKey"`
	SnapshotID uint64    `json:"snapshot_id" gorm:"not null;uniqueIndex:idx_depth_level,priority:1"`
	Source     Source    `json:"source" gorm:"size:16;not null;uniqueIndex:idx_depth_level,priority:2"`
	Side       Side      `json:"side" gorm:"size:8;not null;uniqueIndex:idx_depth_level,priority:3"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	OrderRank  int       `json:"order_rank" gorm:"column:order_rank;not null;uniqueIndex:idx_depth_level,priority:4"`
	Timestamp  time.Time `json:"timestamp" gorm:"index"`
}

func (BookDepth) TableName() string { return "book_depth" }

// FetchLog 外部请求记录
type FetchLog struct {
	LogID        uint64    `json:"log_id" gorm:"column:log_id;primaryKey"`
	Source       Source    `json:"source" gorm:"size:16;index:idx_fetch_source_ts,priority:1"`
	Endpoint     string    `json:"endpoint" gorm:"size:255"`
	Timestamp    time.Time `json:"timestamp" gorm:"index:idx_fetch_source_ts,priority:2"`
	StatusCode   int       `json:"status_code"`
	LatencyMs    int64     `json:"latency_ms"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message" gorm:"type:text"`
	ItemID       *uint     `json:"item_id" gorm:"index"`
}

func (FetchLog) TableName() string { return "fetch_logs" }

// TradeCandidate 一次套利评估结果
type TradeCandidate struct {
	CandidateID           uint64    `json:"candidate_id" gorm:"column:candidate_id;primaryKey"`
	ItemID                uint      `json:"item_id" gorm:"not null;index:idx_candidate_item_ts,priority:1"`
	Timestamp             time.Time `json:"timestamp" gorm:"not null;index:idx_candidate_item_ts,priority:2"`
	BuffAsk               float64   `json:"buff_ask"`
	SteamBid              float64   `json:"steam_bid"`
	AdjSteamBid           float64   `json:"adj_steam_bid"`
	PnLNow                float64   `json:"pnl_now" gorm:"column:pnl_now"`
	SpreadPct             float64   `json:"spread_pct"`
	HoldDays              int       `json:"hold_days"`
	ProbPositiveAfterHold float64   `json:"prob_positive_after_hold"`
	ExpectedPnLAfterHold  float64   `json:"expected_pnl_after_hold" gorm:"column:expected_pnl_after_hold"`
	VaR95                 float64   `json:"var_95" gorm:"column:var_95"`
	RiskScore             float64   `json:"risk_score"`
	ExecutionProb         float64   `json:"execution_prob"`
	RecommendedAction     Action    `json:"recommended_action" gorm:"size:16;index"`
}

func (TradeCandidate) TableName() string { return "trade_candidates" }

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&Item{},
		&SteamSnapshot{},
		&BuffSnapshot{},
		&BookDepth{},
		&FetchLog{},
		&TradeCandidate{},
	}
}
