package quant

import (
	"math"
	"testing"

	"csgo-arbitrage/internal/models"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestNormalModelDegenerateWithoutVolatility(t *testing.T) {
	got := NormalModel{}.Assess(100, 70, 0.15, 0, 3)
	if got.ProbPositive != 1 || !near(got.ExpectedPnL, 15, 1e-9) || !near(got.VaR95, 15, 1e-9) {
		t.Fatalf("got=%+v", got)
	}
	loss := NormalModel{}.Assess(100, 90, 0.15, 0, 3)
	if loss.ProbPositive != 0 {
		t.Fatalf("prob=%v want=0", loss.ProbPositive)
	}
}

func TestNormalModel(t *testing.T) {
	got := NormalModel{}.Assess(100, 70, 0.15, 0.05, 3)
	sd := 85 * 0.05 * math.Sqrt(3)
	if !near(got.ExpectedPnL, 15, 1e-9) {
		t.Fatalf("expected=%v want=15", got.ExpectedPnL)
	}
	if !near(got.VaR95, 15-z95*sd, 1e-9) {
		t.Fatalf("var95=%v want=%v", got.VaR95, 15-z95*sd)
	}
	if got.ProbPositive < 0.97 || got.ProbPositive > 0.99 {
		t.Fatalf("prob=%v", got.ProbPositive)
	}
}

func TestLognormalModel(t *testing.T) {
	win := LognormalModel{}.Assess(100, 70, 0.15, 0.05, 3)
	if win.ProbPositive <= 0.5 || win.VaR95 >= win.ExpectedPnL {
		t.Fatalf("win=%+v", win)
	}
	lose := LognormalModel{}.Assess(100, 90, 0.15, 0.05, 3)
	if lose.ProbPositive >= 0.5 || lose.ExpectedPnL >= 0 {
		t.Fatalf("lose=%+v", lose)
	}
	// Higher volatility widens the left tail.
	wide := LognormalModel{}.Assess(100, 70, 0.15, 0.20, 3)
	if wide.VaR95 >= win.VaR95 {
		t.Fatalf("var95 wide=%v narrow=%v", wide.VaR95, win.VaR95)
	}
}

func TestModelByName(t *testing.T) {
	for name, want := range map[string]string{"": "normal", "Normal": "normal", "lognormal": "lognormal"} {
		m, err := ModelByName(name)
		if err != nil || m.Name() != want {
			t.Fatalf("ModelByName(%q)=%v,%v want=%s", name, m, err, want)
		}
	}
	if _, err := ModelByName("montecarlo"); err == nil {
		t.Fatalf("unknown model should fail")
	}
}

func TestExecutionProb(t *testing.T) {
	cfg := DefaultStrategyConfig()
	if got := ExecutionProb(cfg, nil); got != 0.6 {
		t.Fatalf("got=%v want=0.6", got)
	}
	ten := 10
	if got := ExecutionProb(cfg, &ten); !near(got, 1-math.Exp(-1), 1e-12) {
		t.Fatalf("got=%v", got)
	}
	zero := 0
	if got := ExecutionProb(cfg, &zero); got != 0 {
		t.Fatalf("got=%v want=0", got)
	}
}

func TestRiskScoreBoundedAndMonotone(t *testing.T) {
	cfg := DefaultStrategyConfig()
	prev := -1.0
	for _, vol := range []float64{0, 0.01, 0.03, 0.05, 0.2, 1} {
		s := RiskScore(cfg, vol, 3, 0.1, 0.5)
		if s < 0 || s > 1 {
			t.Fatalf("score=%v out of range", s)
		}
		if s < prev {
			t.Fatalf("score decreased with volatility: %v < %v", s, prev)
		}
		prev = s
	}
	if thin, wide := RiskScore(cfg, 0.02, 3, 0.01, 0.5), RiskScore(cfg, 0.02, 3, 0.15, 0.5); thin <= wide {
		t.Fatalf("thin spread=%v wide spread=%v", thin, wide)
	}
	if shallow, deep := RiskScore(cfg, 0.02, 3, 0.1, 0.1), RiskScore(cfg, 0.02, 3, 0.1, 0.9); shallow <= deep {
		t.Fatalf("shallow=%v deep=%v", shallow, deep)
	}
	if got := RiskScore(cfg, 10, 3, -5, 0); got != 1 {
		t.Fatalf("worst case=%v want=1", got)
	}
}

func TestDecide(t *testing.T) {
	cfg := DefaultStrategyConfig()
	cfg.MinPnL = 5
	cases := []struct {
		pnl, risk float64
		want      models.Action
	}{
		{-1, 0.1, models.ActionSkip},
		{0, 0.1, models.ActionSkip},
		{0.5, 0.1, models.ActionMonitor},
		{10, 0.1, models.ActionCandidate},
		{10, 0.5, models.ActionMonitor},
		{5, 0.49, models.ActionCandidate},
	}
	for _, c := range cases {
		if got := Decide(cfg, c.pnl, c.risk); got != c.want {
			t.Fatalf("Decide(%v,%v)=%s want=%s", c.pnl, c.risk, got, c.want)
		}
	}
}
