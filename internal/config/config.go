package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	State     StateConfig     `yaml:"state"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type FeedConfig struct {
	WSURL          string        `yaml:"ws_url"`
	Subscribe      string        `yaml:"subscribe"`
	RESTURL        string        `yaml:"rest_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StateConfig struct {
	Backend      string        `yaml:"backend"`
	SQLitePath   string        `yaml:"sqlite_path"`
	BadgerDir    string        `yaml:"badger_dir"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

// StrategyConfig is the full parameter set of one engine instance.
type StrategyConfig struct {
	TickInterval    time.Duration   `yaml:"tick_interval"`
	StartingBalance float64         `yaml:"starting_balance"`
	EvictAfterTicks int             `yaml:"evict_after_ticks"`
	FillPolicy      string          `yaml:"fill_policy"`
	PendingTicks    int             `yaml:"pending_ticks"`
	Jitter          float64         `yaml:"jitter"`
	JitterSeed      int64           `yaml:"jitter_seed"`
	Indicators      IndicatorConfig `yaml:"indicators"`
	Signal          SignalConfig    `yaml:"signal"`
	Exit            ExitConfig      `yaml:"exit"`
	Ladder          LadderConfig    `yaml:"ladder"`
	Portfolio       PortfolioConfig `yaml:"portfolio"`
	Symbols         []string        `yaml:"symbols"`
	SymbolBlacklist []string        `yaml:"symbol_blacklist"`
}

type IndicatorConfig struct {
	Window         int     `yaml:"window"`
	RSIPeriod      int     `yaml:"rsi_period"`
	ShortWindow    int     `yaml:"short_window"`
	LogPrice       bool    `yaml:"log_price"`
	DeviationModel string  `yaml:"deviation_model"`
	HeteroRecent   float64 `yaml:"hetero_recent_fraction"`
	FlatEpsilon    float64 `yaml:"flat_epsilon"`
}

// SignalConfig holds the entry gates. Optional gates are off at zero, except
// MaxVolRatio and MaxHetero which default on and are disabled by a negative value.
type SignalConfig struct {
	EntryDeviation float64 `yaml:"entry_deviation"`
	RSICeiling     float64 `yaml:"rsi_ceiling"`
	MinRelativeVol float64 `yaml:"min_relative_vol"`
	MaxVolRatio    float64 `yaml:"max_vol_ratio"`
	MaxHetero      float64 `yaml:"max_hetero"`
	SlopeGuard     bool    `yaml:"slope_guard"`
	MinSlope       float64 `yaml:"min_slope"`
	MinR2          float64 `yaml:"min_r2"`
	RequireStable  bool    `yaml:"require_stable_tick"`
	MinLiquidity   float64 `yaml:"min_liquidity"`
	MinVolume24h   float64 `yaml:"min_volume_24h"`
	ChangeGuard    bool    `yaml:"change_guard"`
	MinChange24h   float64 `yaml:"min_change_24h"`
}

type ExitConfig struct {
	TakeProfit        float64 `yaml:"take_profit"`
	ProfitFloor       float64 `yaml:"profit_floor"`
	ProfitOnly        bool    `yaml:"profit_only"`
	MeanReversion     bool    `yaml:"mean_reversion"`
	ExitDeviation     float64 `yaml:"exit_deviation"`
	HardStopDeviation float64 `yaml:"hard_stop_deviation"`
	StopLoss          float64 `yaml:"stop_loss"`
	TrailArm          float64 `yaml:"trail_arm"`
	TrailGiveback     float64 `yaml:"trail_giveback"`
	MaxHoldTicks      int     `yaml:"max_hold_ticks"`
	MaxStaleTicks     int     `yaml:"max_stale_ticks"`
}

type LadderConfig struct {
	MaxLevels    int     `yaml:"max_levels"`
	Step         float64 `yaml:"step"`
	StepScale    float64 `yaml:"step_scale"`
	Multiplier   float64 `yaml:"multiplier"`
	MomentumGate bool    `yaml:"momentum_gate"`
	RSICeiling   float64 `yaml:"rsi_ceiling"`
	MaxVolRatio  float64 `yaml:"max_vol_ratio"`
	AgePolicy    string  `yaml:"age_policy"`
}

type PortfolioConfig struct {
	MaxPositions  int     `yaml:"max_positions"`
	CooldownTicks *int    `yaml:"cooldown_ticks"`
	SlotBudget    float64 `yaml:"slot_budget"`
	RiskFraction  float64 `yaml:"risk_fraction"`
	MinOrder      float64 `yaml:"min_order"`
}

// Cooldown is the number of ticks a closed symbol sits out; 0 disables it.
func (p PortfolioConfig) Cooldown() int {
	if p.CooldownTicks == nil {
		return 0
	}
	return *p.CooldownTicks
}

type RiskConfig struct {
	MaxFeedAge        time.Duration `yaml:"max_feed_age"`
	MaxExposure       float64       `yaml:"max_exposure"`
	MaxConsecutiveErr int           `yaml:"max_consecutive_errors"`
}

type ExecutionConfig struct {
	Mode           string        `yaml:"mode"`
	SlippageBps    float64       `yaml:"slippage_bps"`
	FeeBps         float64       `yaml:"fee_bps"`
	AmountDecimals int32         `yaml:"amount_decimals"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

const (
	DeviationZScore     = "zscore"
	DeviationRobust     = "robust"
	DeviationRegression = "regression"

	FillOptimistic = "optimistic"
	FillConfirmed  = "confirmed"

	AgePreserve = "preserve"
	AgeReset    = "reset"

	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"

	ModePaper = "paper"
)

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if cfg.Strategy.Jitter > 0 {
		ApplyJitter(&cfg.Strategy, cfg.Strategy.JitterSeed, cfg.Strategy.Jitter)
	}
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 14
		}
	}
	if cfg.Feed.Timeout == 0 {
		cfg.Feed.Timeout = 10 * time.Second
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 30 * time.Second
	}
	if cfg.Feed.RESTURL != "" && cfg.Feed.PollInterval == 0 {
		cfg.Feed.PollInterval = 5 * time.Second
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = BackendSQLite
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/dip-ladder-bot.db"
	}
	if cfg.State.BadgerDir == "" {
		cfg.State.BadgerDir = "data/badger"
	}
	if cfg.State.SaveInterval == 0 {
		cfg.State.SaveInterval = time.Minute
	}
	applyStrategyDefaults(&cfg.Strategy)
	if cfg.Risk.MaxFeedAge == 0 {
		cfg.Risk.MaxFeedAge = 3 * cfg.Strategy.TickInterval
	}
	if cfg.Execution.Mode == "" {
		cfg.Execution.Mode = ModePaper
	}
	if cfg.Execution.AmountDecimals == 0 {
		cfg.Execution.AmountDecimals = 8
	}
	if cfg.Execution.RetryAttempts == 0 {
		cfg.Execution.RetryAttempts = 5
	}
	if cfg.Execution.RetryBackoff == 0 {
		cfg.Execution.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9101"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

func applyStrategyDefaults(s *StrategyConfig) {
	if s.TickInterval == 0 {
		s.TickInterval = 5 * time.Second
	}
	if s.StartingBalance == 0 {
		s.StartingBalance = 1000
	}
	if s.EvictAfterTicks == 0 {
		s.EvictAfterTicks = 60
	}
	if s.FillPolicy == "" {
		s.FillPolicy = FillOptimistic
	}
	if s.PendingTicks == 0 {
		s.PendingTicks = 10
	}
	ind := &s.Indicators
	if ind.Window == 0 {
		ind.Window = 20
	}
	if ind.RSIPeriod == 0 {
		ind.RSIPeriod = 14
	}
	if ind.ShortWindow == 0 {
		ind.ShortWindow = ind.Window / 4
		if ind.ShortWindow < 2 {
			ind.ShortWindow = 2
		}
	}
	if ind.DeviationModel == "" {
		ind.DeviationModel = DeviationZScore
	}
	if ind.HeteroRecent == 0 {
		ind.HeteroRecent = 0.25
	}
	if ind.FlatEpsilon == 0 {
		ind.FlatEpsilon = 1e-12
	}
	if s.Signal.EntryDeviation == 0 {
		s.Signal.EntryDeviation = 2
	}
	if s.Signal.RSICeiling == 0 {
		s.Signal.RSICeiling = 30
	}
	if s.Signal.MaxVolRatio == 0 {
		s.Signal.MaxVolRatio = 2
	}
	if s.Signal.MaxHetero == 0 {
		s.Signal.MaxHetero = 3
	}
	if s.Exit.TakeProfit == 0 {
		s.Exit.TakeProfit = 0.02
	}
	if s.Exit.ExitDeviation == 0 {
		s.Exit.ExitDeviation = 0.5
	}
	if s.Ladder.Step == 0 {
		s.Ladder.Step = 0.03
	}
	if s.Ladder.StepScale == 0 {
		s.Ladder.StepScale = 1
	}
	if s.Ladder.Multiplier == 0 {
		s.Ladder.Multiplier = 1.5
	}
	if s.Ladder.AgePolicy == "" {
		s.Ladder.AgePolicy = AgePreserve
	}
	if s.Portfolio.MaxPositions == 0 {
		s.Portfolio.MaxPositions = 3
	}
	if s.Portfolio.CooldownTicks == nil {
		cooldown := 10
		s.Portfolio.CooldownTicks = &cooldown
	}
	if s.Portfolio.SlotBudget == 0 && s.Portfolio.RiskFraction == 0 {
		s.Portfolio.RiskFraction = 0.2
	}
}

func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv("DLB_TELEGRAM_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("DLB_TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if dsn := strings.TrimSpace(os.Getenv("DLB_TIMESCALE_DSN")); dsn != "" {
		cfg.Timescale.DSN = dsn
	}
}

func validate(cfg *Config) error {
	if cfg.Feed.WSURL == "" && cfg.Feed.RESTURL == "" {
		return errors.New("feed.ws_url or feed.rest_url is required")
	}
	if err := ValidateStrategy(cfg.Strategy); err != nil {
		return err
	}
	switch cfg.State.Backend {
	case BackendSQLite, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("state.backend %q is not supported", cfg.State.Backend)
	}
	if cfg.Execution.Mode != ModePaper {
		return fmt.Errorf("execution.mode %q is not supported", cfg.Execution.Mode)
	}
	if cfg.Execution.SlippageBps < 0 || cfg.Execution.FeeBps < 0 {
		return errors.New("execution.slippage_bps and execution.fee_bps must be >= 0")
	}
	if cfg.Risk.MaxFeedAge < 0 || cfg.Risk.MaxExposure < 0 || cfg.Risk.MaxConsecutiveErr < 0 {
		return errors.New("risk settings must be >= 0")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// ValidateStrategy checks the parameters an engine instance is built from.
func ValidateStrategy(s StrategyConfig) error {
	ind := s.Indicators
	if ind.Window < 3 {
		return errors.New("strategy.indicators.window must be >= 3")
	}
	if ind.RSIPeriod < 1 || ind.RSIPeriod+1 > ind.Window {
		return errors.New("strategy.indicators.rsi_period must be in [1, window-1]")
	}
	if ind.ShortWindow < 2 || ind.ShortWindow >= ind.Window {
		return errors.New("strategy.indicators.short_window must be in [2, window)")
	}
	switch ind.DeviationModel {
	case DeviationZScore, DeviationRobust, DeviationRegression:
	default:
		return fmt.Errorf("strategy.indicators.deviation_model %q is not supported", ind.DeviationModel)
	}
	if ind.HeteroRecent <= 0 || ind.HeteroRecent >= 1 {
		return errors.New("strategy.indicators.hetero_recent_fraction must be in (0, 1)")
	}
	switch s.FillPolicy {
	case FillOptimistic, FillConfirmed:
	default:
		return fmt.Errorf("strategy.fill_policy %q is not supported", s.FillPolicy)
	}
	switch s.Ladder.AgePolicy {
	case AgePreserve, AgeReset:
	default:
		return fmt.Errorf("strategy.ladder.age_policy %q is not supported", s.Ladder.AgePolicy)
	}
	if s.StartingBalance < 0 {
		return errors.New("strategy.starting_balance must be >= 0")
	}
	if s.Signal.EntryDeviation <= 0 {
		return errors.New("strategy.signal.entry_deviation must be > 0")
	}
	if s.Signal.RSICeiling <= 0 || s.Signal.RSICeiling > 100 {
		return errors.New("strategy.signal.rsi_ceiling must be in (0, 100]")
	}
	if s.Exit.TakeProfit <= 0 {
		return errors.New("strategy.exit.take_profit must be > 0")
	}
	if s.Exit.ProfitOnly && s.Exit.ProfitFloor < 0 {
		return errors.New("strategy.exit.profit_floor must be >= 0 with profit_only")
	}
	if s.Exit.TrailGiveback < 0 || s.Exit.TrailGiveback > 1 {
		return errors.New("strategy.exit.trail_giveback must be in [0, 1]")
	}
	if s.Exit.StopLoss < 0 || s.Exit.HardStopDeviation < 0 || s.Exit.MaxHoldTicks < 0 || s.Exit.MaxStaleTicks < 0 {
		return errors.New("strategy.exit stop settings must be >= 0")
	}
	if s.Ladder.MaxLevels < 0 {
		return errors.New("strategy.ladder.max_levels must be >= 0")
	}
	if s.Ladder.Step <= 0 || s.Ladder.StepScale <= 0 || s.Ladder.Multiplier <= 0 {
		return errors.New("strategy.ladder step, step_scale and multiplier must be > 0")
	}
	p := s.Portfolio
	if p.MaxPositions < 1 {
		return errors.New("strategy.portfolio.max_positions must be >= 1")
	}
	if p.Cooldown() < 0 || p.SlotBudget < 0 || p.MinOrder < 0 {
		return errors.New("strategy.portfolio settings must be >= 0")
	}
	if p.RiskFraction < 0 || p.RiskFraction > 1 {
		return errors.New("strategy.portfolio.risk_fraction must be in [0, 1]")
	}
	if p.SlotBudget == 0 && p.RiskFraction == 0 {
		return errors.New("strategy.portfolio needs slot_budget or risk_fraction")
	}
	if s.EvictAfterTicks < 0 || s.PendingTicks < 0 {
		return errors.New("strategy tick counters must be >= 0")
	}
	return nil
}

// Default returns a strategy configuration with every default applied.
func Default() StrategyConfig {
	var s StrategyConfig
	applyStrategyDefaults(&s)
	return s
}
