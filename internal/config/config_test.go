package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUFF_COOKIE", "session=abc")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.RateLimit.SteamMaxCalls != 10 || cfg.RateLimit.BuffMaxCalls != 20 {
		t.Fatalf("limits steam=%d buff=%d want=10/20", cfg.RateLimit.SteamMaxCalls, cfg.RateLimit.BuffMaxCalls)
	}
	if cfg.Evaluator.FeeRate != 0.15 || cfg.Evaluator.HoldDays != 3 || cfg.Evaluator.DefaultExecProb != 0.6 {
		t.Fatalf("evaluator defaults=%+v", cfg.Evaluator)
	}
	if cfg.Scheduler.Interval != 300*time.Second {
		t.Fatalf("interval=%v want=5m", cfg.Scheduler.Interval)
	}
	if cfg.Buff.Cookie != "session=abc" {
		t.Fatalf("cookie=%q", cfg.Buff.Cookie)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate err=%v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ARB_EVALUATOR_MIN_PNL", "5")
	t.Setenv("ARB_SCHEDULER_INTERVAL", "90s")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Evaluator.MinPnL != 5 {
		t.Fatalf("min_pnl=%v want=5", cfg.Evaluator.MinPnL)
	}
	if cfg.Scheduler.Interval != 90*time.Second {
		t.Fatalf("interval=%v want=90s", cfg.Scheduler.Interval)
	}
}

func TestLoadTrackedItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("scheduler:\n  items:\n    - \"AK-47 | Redline (Field-Tested)\"\n    - \"AWP | Asiimov (Field-Tested)\"\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if len(cfg.Scheduler.Items) != 2 || cfg.Scheduler.Items[1] != "AWP | Asiimov (Field-Tested)" {
		t.Fatalf("items=%q", cfg.Scheduler.Items)
	}

	def, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if len(def.Scheduler.Items) != 0 {
		t.Fatalf("default items=%q want empty", def.Scheduler.Items)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("evaluator:\n  hold_days: 7\n  model: lognormal\nbuff:\n  cookie: from-file\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Evaluator.HoldDays != 7 || cfg.Evaluator.Model != "lognormal" {
		t.Fatalf("evaluator=%+v", cfg.Evaluator)
	}
	if cfg.Buff.Cookie != "from-file" {
		t.Fatalf("cookie=%q want=from-file", cfg.Buff.Cookie)
	}
}

func TestValidateMissingCookie(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingBuffCookie) {
		t.Fatalf("err=%v want=%v", err, ErrMissingBuffCookie)
	}
}
