package quant

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"csgo-arbitrage/internal/metrics"
	"csgo-arbitrage/internal/models"
)

// SnapshotReader 评估所需的只读查询
type SnapshotReader interface {
	LatestSteamSnapshot(ctx context.Context, itemID uint) (*models.SteamSnapshot, error)
	LatestBuffSnapshot(ctx context.Context, itemID uint) (*models.BuffSnapshot, error)
	SteamHistory(ctx context.Context, itemID uint, since time.Time) ([]models.SteamSnapshot, error)
}

type CandidateWriter interface {
	InsertCandidate(ctx context.Context, c *models.TradeCandidate) error
}

// Repository is what the Evaluator needs from the store.
type Repository interface {
	SnapshotReader
	CandidateWriter
}

// Evaluator 套利评估器
type Evaluator struct {
	repo   Repository
	config *StrategyConfig
	model  HoldRiskModel
	now    func() time.Time
	log    *zap.Logger
}

type EvaluatorOption func(*Evaluator)

// WithNow overrides the clock used to stamp candidates.
func WithNow(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator 创建评估器，model 为 nil 时使用 NormalModel
func NewEvaluator(repo Repository, config *StrategyConfig, model HoldRiskModel, log *zap.Logger, opts ...EvaluatorOption) *Evaluator {
	if config == nil {
		config = DefaultStrategyConfig()
	}
	if model == nil {
		model = NormalModel{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Evaluator{
		repo:   repo,
		config: config,
		model:  model,
		now:    time.Now,
		log:    log.Named("evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate 对 item 的最新 Steam/Buff 快照做一次评估并持久化结果。
// 缺少任一侧快照或价格时返回 (nil, nil)。
func (e *Evaluator) Evaluate(ctx context.Context, item models.Item) (*models.TradeCandidate, error) {
	steam, err := e.repo.LatestSteamSnapshot(ctx, item.ItemID)
	if err != nil {
		return nil, fmt.Errorf("latest steam snapshot: %w", err)
	}
	buff, err := e.repo.LatestBuffSnapshot(ctx, item.ItemID)
	if err != nil {
		return nil, fmt.Errorf("latest buff snapshot: %w", err)
	}
	if steam == nil || buff == nil {
		e.skipped(item, "missing counterpart snapshot")
		return nil, nil
	}

	bid, ok := SteamReferencePrice(steam)
	if !ok {
		e.skipped(item, "no usable steam price")
		return nil, nil
	}
	if buff.BestAsk == nil || *buff.BestAsk <= 0 {
		e.skipped(item, "no buff ask")
		return nil, nil
	}

	since := steam.Timestamp.Add(-e.config.VolatilityLookback)
	history, err := e.repo.SteamHistory(ctx, item.ItemID, since)
	if err != nil {
		return nil, fmt.Errorf("steam history: %w", err)
	}

	m := Compute(e.config, e.model, Inputs{
		SteamBid:   bid,
		BuffAsk:    *buff.BestAsk * e.config.BuffFXRate,
		Volatility: historyVolatility(e.config, history),
		SellDepth:  buff.SellOrderCount,
	})

	c := &models.TradeCandidate{
		ItemID:                item.ItemID,
		Timestamp:             e.now().UTC().Truncate(time.Second),
		BuffAsk:               m.BuffAsk,
		SteamBid:              m.SteamBid,
		AdjSteamBid:           m.AdjSteamBid,
		PnLNow:                m.PnLNow,
		SpreadPct:             m.SpreadPct,
		HoldDays:              m.HoldDays,
		ProbPositiveAfterHold: m.Hold.ProbPositive,
		ExpectedPnLAfterHold:  m.Hold.ExpectedPnL,
		VaR95:                 m.Hold.VaR95,
		RiskScore:             m.RiskScore,
		ExecutionProb:         m.ExecutionProb,
		RecommendedAction:     m.Action,
	}
	if err := e.repo.InsertCandidate(ctx, c); err != nil {
		return nil, fmt.Errorf("insert candidate: %w", err)
	}
	metrics.CandidatesTotal.WithLabelValues(string(c.RecommendedAction)).Inc()

	e.log.Info("evaluated",
		zap.Uint("item_id", item.ItemID),
		zap.String("name", item.MarketHashName),
		zap.Float64("steam_bid", m.SteamBid),
		zap.Float64("buff_ask", m.BuffAsk),
		zap.Float64("pnl_now", m.PnLNow),
		zap.Float64("risk_score", m.RiskScore),
		zap.String("action", string(m.Action)))
	return c, nil
}

func (e *Evaluator) skipped(item models.Item, reason string) {
	e.log.Debug("evaluation skipped", zap.Uint("item_id", item.ItemID), zap.String("reason", reason))
}

// Compute 纯计算，不做任何 IO。ask 必须大于0。
func Compute(cfg *StrategyConfig, model HoldRiskModel, in Inputs) Metrics {
	adj := in.SteamBid * (1 - cfg.FeeRate)
	pnl := adj - in.BuffAsk
	spread := 0.0
	if in.BuffAsk > 0 {
		spread = pnl / in.BuffAsk
	}
	exec := ExecutionProb(cfg, in.SellDepth)
	risk := RiskScore(cfg, in.Volatility, cfg.HoldDays, spread, exec)

	return Metrics{
		SteamBid:      in.SteamBid,
		BuffAsk:       in.BuffAsk,
		AdjSteamBid:   adj,
		PnLNow:        pnl,
		SpreadPct:     spread,
		HoldDays:      cfg.HoldDays,
		Volatility:    in.Volatility,
		Hold:          model.Assess(in.SteamBid, in.BuffAsk, cfg.FeeRate, in.Volatility, cfg.HoldDays),
		RiskScore:     risk,
		ExecutionProb: exec,
		Action:        Decide(cfg, pnl, risk),
	}
}
