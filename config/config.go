// Package config defines the engine's static configuration surface and
// its startup validation. There is no dynamic reload: a bad config is a
// ConfigError raised once at process start.
package config

import (
	"fmt"
	"strings"

	"bybitengine/bterr"
	"bybitengine/bybit"
)

// Mode selects which execution gateway backend the engine runs against.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
)

// Environment selects Bybit's testnet or mainnet base URLs.
type Environment string

const (
	EnvTestnet Environment = "testnet"
	EnvMainnet Environment = "mainnet"
)

// RiskConfig mirrors the risk.* configuration table.
type RiskConfig struct {
	PerTradePct      float64
	MaxLeverage      float64
	MaxTotalExposure float64
}

// NoTradeZoneConfig mirrors the no_trade_zones.* table.
type NoTradeZoneConfig struct {
	MaxSpreadPct          float64
	MaxATRPct             float64
	AllowAnomalyOnTestnet bool
	DepthImbalanceLimit   float64
}

// SignalActionsConfig mirrors the signal_actions.* table.
type SignalActionsConfig struct {
	OnSameDirection               string // "ignore" | "add"
	OnOppositeDirection           string // "ignore" | "flip"
	MaxPyramidLevels              int
	RequireHigherConfidenceOnFlip bool
}

// ScaledEntryConfig mirrors the scaled_entry.* table.
type ScaledEntryConfig struct {
	Enabled             bool
	LevelTimeoutMinutes int
}

// MTFConfig mirrors the mtf.* table.
type MTFConfig struct {
	Enabled       bool
	ATRCeiling15m float64
}

// StrategyScale is one entry of confidence_scaler.per_strategy[s].
type StrategyScale struct {
	A float64
	B float64
}

// Config is the full recognized configuration surface.
type Config struct {
	Environment Environment
	Mode        Mode
	Symbols     []string

	APIKey    string
	APISecret string

	DBPath string

	Risk              RiskConfig
	NoTradeZones      NoTradeZoneConfig
	SignalActions     SignalActionsConfig
	ScaledEntry       ScaledEntryConfig
	MTF               MTFConfig
	ConfidenceScalers map[string]StrategyScale

	TickIntervalSeconds int // per-symbol loop sleep between iterations
	ErrorBudgetCeiling  int // consecutive recoverable errors before the loop escalates
	MaxWorkers          int // orchestrator concurrency cap
	StopOnError         bool
}

// Default returns a Config with the design defaults; callers overlay
// environment/file overrides on top before calling Validate.
func Default() Config {
	return Config{
		Environment: EnvTestnet,
		Mode:        ModePaper,
		DBPath:      "bybitengine.db",
		Risk: RiskConfig{
			PerTradePct:      1.0,
			MaxLeverage:      5.0,
			MaxTotalExposure: 20.0,
		},
		NoTradeZones: NoTradeZoneConfig{
			MaxSpreadPct:          0.5,
			MaxATRPct:             10.0,
			AllowAnomalyOnTestnet: false,
		},
		SignalActions: SignalActionsConfig{
			OnSameDirection:     "ignore",
			OnOppositeDirection: "ignore",
			MaxPyramidLevels:    3,
		},
		ScaledEntry: ScaledEntryConfig{
			Enabled:             true,
			LevelTimeoutMinutes: 60,
		},
		MTF: MTFConfig{
			Enabled:       true,
			ATRCeiling15m: 7.0,
		},
		TickIntervalSeconds: 30,
		ErrorBudgetCeiling:  5,
		MaxWorkers:          4,
	}
}

// Validate rejects a config that cannot safely start the engine. Like
// the config loader it replaces, it collects every violation before
// returning rather than stopping at the first one, so an operator fixes
// a bad config in one pass instead of one failure at a time.
func (c Config) Validate() error {
	var errs []string

	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols list is empty")
	}
	if c.Environment != EnvTestnet && c.Environment != EnvMainnet {
		errs = append(errs, fmt.Sprintf("invalid environment %q", c.Environment))
	}
	if c.Mode != ModeBacktest && c.Mode != ModePaper && c.Mode != ModeLive {
		errs = append(errs, fmt.Sprintf("invalid mode %q", c.Mode))
	}
	if c.Mode == ModeLive {
		if c.APIKey == "" {
			errs = append(errs, "api key required for live mode")
		}
		if c.APISecret == "" {
			errs = append(errs, "api secret required for live mode")
		}
	}
	if c.Risk.PerTradePct <= 0 || c.Risk.PerTradePct > 100 {
		errs = append(errs, fmt.Sprintf("nonsensical risk.per_trade_pct %v", c.Risk.PerTradePct))
	}
	if c.Risk.MaxLeverage <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical risk.max_leverage %v", c.Risk.MaxLeverage))
	}
	if c.Risk.MaxTotalExposure <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical risk.max_total_exposure %v", c.Risk.MaxTotalExposure))
	}
	if c.NoTradeZones.MaxSpreadPct <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical no_trade_zones.max_spread_pct %v", c.NoTradeZones.MaxSpreadPct))
	}
	if c.NoTradeZones.MaxATRPct <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical no_trade_zones.max_atr_pct %v", c.NoTradeZones.MaxATRPct))
	}
	if c.SignalActions.OnSameDirection != "ignore" && c.SignalActions.OnSameDirection != "add" {
		errs = append(errs, fmt.Sprintf("invalid signal_actions.on_same_direction %q", c.SignalActions.OnSameDirection))
	}
	if c.SignalActions.OnOppositeDirection != "ignore" && c.SignalActions.OnOppositeDirection != "flip" {
		errs = append(errs, fmt.Sprintf("invalid signal_actions.on_opposite_direction %q", c.SignalActions.OnOppositeDirection))
	}
	if c.ScaledEntry.Enabled && c.ScaledEntry.LevelTimeoutMinutes <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical scaled_entry.level_timeout_minutes %v", c.ScaledEntry.LevelTimeoutMinutes))
	}
	if c.MTF.Enabled && c.MTF.ATRCeiling15m <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical mtf.atr_ceiling_15m %v", c.MTF.ATRCeiling15m))
	}
	if c.TickIntervalSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical tick_interval_seconds %v", c.TickIntervalSeconds))
	}
	if c.ErrorBudgetCeiling <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical error_budget_ceiling %v", c.ErrorBudgetCeiling))
	}
	if c.MaxWorkers <= 0 {
		errs = append(errs, fmt.Sprintf("nonsensical max_workers %v", c.MaxWorkers))
	}
	for name, scale := range c.ConfidenceScalers {
		if scale.A == 0 {
			errs = append(errs, fmt.Sprintf("confidence_scaler.per_strategy[%s].a must be nonzero", name))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return bterr.New(bterr.KindConfig, "config.Validate", "", strings.Join(errs, "; "), nil)
}

// BybitEnvironment resolves this config's environment to the bybit
// client's Environment enum.
func (c Config) BybitEnvironment() bybit.Environment {
	return bybit.ParseEnvironment(string(c.Environment))
}

// RESTURL resolves the Bybit REST base URL for this config's environment.
func (c Config) RESTURL() string { return c.BybitEnvironment().RESTBaseURL() }

// PublicWSURL resolves the Bybit public linear-perpetual WS URL for this
// config's environment.
func (c Config) PublicWSURL() string { return c.BybitEnvironment().PublicWSURL() }

// PrivateWSURL resolves the Bybit private WS URL for this config's
// environment; only meaningful in live mode.
func (c Config) PrivateWSURL() string { return c.BybitEnvironment().PrivateWSURL() }
