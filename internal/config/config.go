package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingBuffCookie is returned by Validate when the Buff session cookie is not configured.
var ErrMissingBuffCookie = errors.New("BUFF_COOKIE is not set")

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Steam     SteamConfig     `mapstructure:"steam"`
	Buff      BuffConfig      `mapstructure:"buff"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | postgres
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SteamConfig Primary 市场 (Steam Community Market)
type SteamConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AppID      int           `mapstructure:"app_id"`
	CurrencyID int           `mapstructure:"currency_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// BuffConfig Secondary 市场 (buff.163.com)
type BuffConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Game      string        `mapstructure:"game"`
	Currency  string        `mapstructure:"currency"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	Cookie    string        `mapstructure:"cookie"`
}

type RateLimitConfig struct {
	SteamMaxCalls      int           `mapstructure:"steam_max_calls"`
	SteamWindow        time.Duration `mapstructure:"steam_window"`
	BuffMaxCalls       int           `mapstructure:"buff_max_calls"`
	BuffWindow         time.Duration `mapstructure:"buff_window"`
	CooldownMultiplier float64       `mapstructure:"cooldown_multiplier"`
	MaxWait            time.Duration `mapstructure:"max_wait"`
	Backend            string        `mapstructure:"backend"` // memory | redis
}

type EvaluatorConfig struct {
	FeeRate            float64       `mapstructure:"fee_rate"`
	MinPnL             float64       `mapstructure:"min_pnl"`
	HoldDays           int           `mapstructure:"hold_days"`
	DefaultVolatility  float64       `mapstructure:"default_volatility"`
	VolatilityLookback time.Duration `mapstructure:"volatility_lookback"`
	MinHistoryPoints   int           `mapstructure:"min_history_points"`
	DefaultExecProb    float64       `mapstructure:"default_exec_prob"`
	TypicalDepth       float64       `mapstructure:"typical_depth"`
	RiskThreshold      float64       `mapstructure:"risk_threshold"`
	Model              string        `mapstructure:"model"` // normal | lognormal
	BuffFXRate         float64       `mapstructure:"buff_fx_rate"`
}

type SchedulerConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	Cron             string        `mapstructure:"cron"`
	Workers          int           `mapstructure:"workers"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
	DiscoverGoodsIDs bool          `mapstructure:"discover_goods_ids"`
	RecordDepth      bool          `mapstructure:"record_depth"`
	// Items limits polling to these market hash names; empty polls the whole catalog.
	Items []string `mapstructure:"items"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// EventsChannel, when set, relays live feed events between the daemon
	// and a separately running API server.
	EventsChannel string `mapstructure:"events_channel"`
}

// Load 读取配置: .env -> 配置文件(可选) -> ARB_* 环境变量
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// The cookie is exported unprefixed by the operator.
	if cfg.Buff.Cookie == "" {
		cfg.Buff.Cookie = getEnv("BUFF_COOKIE", "")
	}
	return &cfg, nil
}

// Validate checks the settings the daemon cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Buff.Cookie) == "" {
		return ErrMissingBuffCookie
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("server.http_addr", ":"+getEnv("PORT", "8080"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.dsn", getEnv("DATABASE_URL", "root:root@tcp(127.0.0.1:3306)/csgo_arbitrage?charset=utf8mb4&parseTime=True&loc=UTC"))
	v.SetDefault("db.max_open_conns", 100)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", time.Hour)

	v.SetDefault("steam.base_url", "https://steamcommunity.com")
	v.SetDefault("steam.app_id", 730)
	v.SetDefault("steam.currency_id", 3)
	v.SetDefault("steam.timeout", 10*time.Second)
	v.SetDefault("steam.user_agent", defaultUserAgent)

	v.SetDefault("buff.base_url", "https://buff.163.com")
	v.SetDefault("buff.game", "csgo")
	v.SetDefault("buff.currency", "CNY")
	v.SetDefault("buff.timeout", 10*time.Second)
	v.SetDefault("buff.user_agent", defaultUserAgent)
	v.SetDefault("buff.cookie", "")

	v.SetDefault("ratelimit.steam_max_calls", 10)
	v.SetDefault("ratelimit.steam_window", time.Minute)
	v.SetDefault("ratelimit.buff_max_calls", 20)
	v.SetDefault("ratelimit.buff_window", time.Minute)
	v.SetDefault("ratelimit.cooldown_multiplier", 2.0)
	v.SetDefault("ratelimit.max_wait", 2*time.Minute)
	v.SetDefault("ratelimit.backend", "memory")

	v.SetDefault("evaluator.fee_rate", 0.15)
	v.SetDefault("evaluator.min_pnl", 0.5)
	v.SetDefault("evaluator.hold_days", 3)
	v.SetDefault("evaluator.default_volatility", 0.05)
	v.SetDefault("evaluator.volatility_lookback", 7*24*time.Hour)
	v.SetDefault("evaluator.min_history_points", 3)
	v.SetDefault("evaluator.default_exec_prob", 0.6)
	v.SetDefault("evaluator.typical_depth", 10.0)
	v.SetDefault("evaluator.risk_threshold", 0.5)
	v.SetDefault("evaluator.model", "normal")
	v.SetDefault("evaluator.buff_fx_rate", 1.0)

	v.SetDefault("scheduler.interval", 300*time.Second)
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.workers", 1)
	v.SetDefault("scheduler.retry_attempts", 3)
	v.SetDefault("scheduler.retry_base_delay", time.Second)
	v.SetDefault("scheduler.retry_max_delay", 10*time.Second)
	v.SetDefault("scheduler.discover_goods_ids", true)
	v.SetDefault("scheduler.record_depth", true)
	v.SetDefault("scheduler.items", []string{})

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.events_channel", "")
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
