package quant

import (
	"math"

	"csgo-arbitrage/internal/models"
)

// SteamReferencePrice Steam 参考卖出价: best_bid -> median_price -> lowest_price
func SteamReferencePrice(s *models.SteamSnapshot) (float64, bool) {
	if s == nil {
		return 0, false
	}
	for _, p := range []*float64{s.BestBid, s.MedianPrice, s.LowestPrice} {
		if p != nil && *p > 0 {
			return *p, true
		}
	}
	return 0, false
}

// LogReturnVolatility 对数收益率的总体标准差
func LogReturnVolatility(prices []float64) (float64, bool) {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) == 0 {
		return 0, false
	}

	mean := calculateMA(returns)
	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-mean, 2)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance), true
}

// historyVolatility 使用历史快照估计日波动率，不足时返回默认值
func historyVolatility(cfg *StrategyConfig, history []models.SteamSnapshot) float64 {
	prices := make([]float64, 0, len(history))
	for i := range history {
		if p, ok := SteamReferencePrice(&history[i]); ok {
			prices = append(prices, p)
		}
	}
	if len(prices) < cfg.MinHistoryPoints {
		return cfg.DefaultVolatility
	}
	vol, ok := LogReturnVolatility(prices)
	if !ok {
		return cfg.DefaultVolatility
	}
	return vol
}

func calculateMA(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
