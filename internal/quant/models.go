package quant

import (
	"time"

	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/models"
)

// StrategyConfig 评估参数
type StrategyConfig struct {
	// 费率与阈值
	FeeRate       float64 // Steam 卖出手续费率，默认0.15
	MinPnL        float64 // 进入 candidate 的最小即时收益，默认0.5
	RiskThreshold float64 // risk_score 低于此值才可能是 candidate，默认0.5
	BuffFXRate    float64 // Buff 价格换算到 Steam 币种的汇率，默认1（不换算）

	// 持有期风险
	HoldDays           int           // 交易冷却期天数，默认3
	DefaultVolatility  float64       // 历史不足时使用的日波动率，默认0.05
	VolatilityLookback time.Duration // 计算波动率的历史窗口，默认7天
	MinHistoryPoints   int           // 计算波动率所需最少价格点，默认3

	// 成交概率
	DefaultExecProb float64 // 无深度数据时的成交概率，默认0.6
	TypicalDepth    float64 // 成交概率达到 63% 所需的在售数量，默认10

	// 风险评分权重与参考值
	VolatilityWeight float64
	SpreadWeight     float64
	DepthWeight      float64
	VolatilityRef    float64 // 持有期波动率达到此值时波动项饱和
	SpreadRef        float64 // 价差达到此值时价差项为0
}

// DefaultStrategyConfig 默认配置
func DefaultStrategyConfig() *StrategyConfig {
	return &StrategyConfig{
		FeeRate:            0.15,
		MinPnL:             0.5,
		RiskThreshold:      0.5,
		BuffFXRate:         1,
		HoldDays:           3,
		DefaultVolatility:  0.05,
		VolatilityLookback: 7 * 24 * time.Hour,
		MinHistoryPoints:   3,
		DefaultExecProb:    0.6,
		TypicalDepth:       10,
		VolatilityWeight:   0.5,
		SpreadWeight:       0.3,
		DepthWeight:        0.2,
		VolatilityRef:      0.10,
		SpreadRef:          0.20,
	}
}

// StrategyConfigFrom overlays the configured evaluator settings on the defaults.
func StrategyConfigFrom(cfg config.EvaluatorConfig) *StrategyConfig {
	sc := DefaultStrategyConfig()
	sc.FeeRate = cfg.FeeRate
	sc.MinPnL = cfg.MinPnL
	if cfg.HoldDays > 0 {
		sc.HoldDays = cfg.HoldDays
	}
	if cfg.DefaultVolatility > 0 {
		sc.DefaultVolatility = cfg.DefaultVolatility
	}
	if cfg.VolatilityLookback > 0 {
		sc.VolatilityLookback = cfg.VolatilityLookback
	}
	if cfg.MinHistoryPoints > 1 {
		sc.MinHistoryPoints = cfg.MinHistoryPoints
	}
	if cfg.DefaultExecProb > 0 {
		sc.DefaultExecProb = cfg.DefaultExecProb
	}
	if cfg.TypicalDepth > 0 {
		sc.TypicalDepth = cfg.TypicalDepth
	}
	if cfg.RiskThreshold > 0 {
		sc.RiskThreshold = cfg.RiskThreshold
	}
	if cfg.BuffFXRate > 0 {
		sc.BuffFXRate = cfg.BuffFXRate
	}
	return sc
}

// HoldRisk 持有期结束时 pnl 的分布摘要
type HoldRisk struct {
	ProbPositive float64
	ExpectedPnL  float64
	VaR95        float64 // 5th percentile pnl, negative means loss
}

// Inputs are the market observations one evaluation needs.
type Inputs struct {
	SteamBid   float64
	BuffAsk    float64
	Volatility float64 // daily
	// SellDepth is the number of Buff listings on the ask side; nil when unknown.
	SellDepth *int
}

// Metrics 一次评估的全部结果
type Metrics struct {
	SteamBid      float64
	BuffAsk       float64
	AdjSteamBid   float64
	PnLNow        float64
	SpreadPct     float64
	HoldDays      int
	Volatility    float64
	Hold          HoldRisk
	RiskScore     float64
	ExecutionProb float64
	Action        models.Action
}
