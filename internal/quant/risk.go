package quant

import (
	"fmt"
	"math"
	"strings"

	"csgo-arbitrage/internal/models"
)

// z95 is the standard normal 95% quantile.
const z95 = 1.6448536269514722

// HoldRiskModel 持有期风险模型
//
// Assess describes pnl at the end of the hold period for buying at ask and
// selling at bid after fees, given a daily volatility of the Steam price.
type HoldRiskModel interface {
	Name() string
	Assess(bid, ask, feeRate, dailyVol float64, holdDays int) HoldRisk
}

// NormalModel 正态模型: 终值价格 ~ N(bid, (bid*σ√h)²)
type NormalModel struct{}

func (NormalModel) Name() string { return "normal" }

func (NormalModel) Assess(bid, ask, feeRate, dailyVol float64, holdDays int) HoldRisk {
	adj := bid * (1 - feeRate)
	mean := adj - ask
	sd := adj * holdVolatility(dailyVol, holdDays)
	if sd <= 0 {
		return degenerate(mean)
	}
	return HoldRisk{
		ProbPositive: normCDF(mean / sd),
		ExpectedPnL:  mean,
		VaR95:        mean - z95*sd,
	}
}

// LognormalModel 零漂移对数正态模型: 终值价格 = bid*exp(-s²/2 + sZ)
type LognormalModel struct{}

func (LognormalModel) Name() string { return "lognormal" }

func (LognormalModel) Assess(bid, ask, feeRate, dailyVol float64, holdDays int) HoldRisk {
	adj := bid * (1 - feeRate)
	mean := adj - ask
	s := holdVolatility(dailyVol, holdDays)
	if s <= 0 || adj <= 0 || ask <= 0 {
		return degenerate(mean)
	}
	return HoldRisk{
		ProbPositive: normCDF((math.Log(adj/ask) - 0.5*s*s) / s),
		ExpectedPnL:  mean,
		VaR95:        adj*math.Exp(-0.5*s*s-z95*s) - ask,
	}
}

// ModelByName 根据配置名选择模型，空值为 normal
func ModelByName(name string) (HoldRiskModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "normal":
		return NormalModel{}, nil
	case "lognormal":
		return LognormalModel{}, nil
	default:
		return nil, fmt.Errorf("unknown hold risk model %q", name)
	}
}

// ExecutionProb 成交概率: 1 - exp(-depth/typical)
func ExecutionProb(cfg *StrategyConfig, sellDepth *int) float64 {
	if sellDepth == nil || cfg.TypicalDepth <= 0 {
		return cfg.DefaultExecProb
	}
	d := float64(*sellDepth)
	if d <= 0 {
		return 0
	}
	return 1 - math.Exp(-d/cfg.TypicalDepth)
}

// RiskScore 综合风险评分 [0,1]，波动越大、价差越薄、深度越浅越高
func RiskScore(cfg *StrategyConfig, dailyVol float64, holdDays int, spreadPct, execProb float64) float64 {
	volTerm := 1.0
	if cfg.VolatilityRef > 0 {
		volTerm = clamp01(holdVolatility(dailyVol, holdDays) / cfg.VolatilityRef)
	}
	thinTerm := 1.0
	if cfg.SpreadRef > 0 {
		thinTerm = clamp01(1 - spreadPct/cfg.SpreadRef)
	}
	shallowTerm := clamp01(1 - execProb)

	score := cfg.VolatilityWeight*volTerm + cfg.SpreadWeight*thinTerm + cfg.DepthWeight*shallowTerm
	return clamp01(score)
}

// Decide 推荐动作
func Decide(cfg *StrategyConfig, pnlNow, riskScore float64) models.Action {
	switch {
	case pnlNow <= 0:
		return models.ActionSkip
	case pnlNow >= cfg.MinPnL && riskScore < cfg.RiskThreshold:
		return models.ActionCandidate
	default:
		return models.ActionMonitor
	}
}

func holdVolatility(dailyVol float64, holdDays int) float64 {
	if dailyVol <= 0 || holdDays <= 0 {
		return 0
	}
	return dailyVol * math.Sqrt(float64(holdDays))
}

func degenerate(pnl float64) HoldRisk {
	prob := 0.0
	if pnl > 0 {
		prob = 1
	}
	return HoldRisk{ProbPositive: prob, ExpectedPnL: pnl, VaR95: pnl}
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
