// Package loop runs one symbol's trading state machine: fetch market
// data, build features, route a signal, size and submit an order, and
// persist the result, once per tick, on its own ticker and goroutine.
// An orchestrator owns many of these, one per symbol, and never reaches
// into a Loop's internals beyond Run/Stop and State/LastError.
package loop

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bybitengine/bterr"
	"bybitengine/execution"
	"bybitengine/indicators"
	"bybitengine/instrument"
	"bybitengine/journal"
	"bybitengine/killswitch"
	"bybitengine/marketdata"
	"bybitengine/meta"
	"bybitengine/metrics"
	"bybitengine/notradezone"
	"bybitengine/orders"
	"bybitengine/persistence"
	"bybitengine/recovery"
	"bybitengine/regime"
	"bybitengine/retry"
	"bybitengine/risk"
	"bybitengine/strategy"
)

// State is the loop's coarse lifecycle state.
type State string

const (
	StateInitializing    State = "initializing"
	StateRunning         State = "running"
	StateBackoffSleeping State = "backoff_sleeping"
	StateStopping        State = "stopping"
	StateStopped         State = "stopped"
)

// MarketDataSource is the subset of venue market-data access one tick
// needs. *bybit.Client satisfies this directly; tests supply a fake.
type MarketDataSource interface {
	GetKline(symbol, interval string, limit int) (*marketdata.Frame, error)
	GetOrderbook(symbol string, depth int) (*marketdata.Orderbook, error)
	GetDerivativesSnapshot(symbol string) (*marketdata.Derivatives, error)
}

// Config is the per-symbol tuning a loop runs with.
type Config struct {
	Symbol              string
	PrimaryInterval     string   // e.g. "5", fed to the router
	ConfluenceIntervals []string // pushed into the timeframe cache every tick, e.g. {"1","5","15"}
	TickInterval        time.Duration
	ErrorBudgetCeiling  int
	KlineLimit          int
	OrderbookDepth      int
	IsTestnet           bool

	NoTradeZone NoTradeZoneThresholds
}

// NoTradeZoneThresholds mirrors config.NoTradeZoneConfig, resolved to
// the shape notradezone.Input wants.
type NoTradeZoneThresholds struct {
	MaxSpreadPercent      float64
	DepthImbalanceLimit   float64
	AllowAnomalyOnTestnet bool
	MaxATRPercentExtreme  float64
}

// Deps bundles every collaborator a tick calls into. All fields are
// required except Journal (nil disables event recording).
type Deps struct {
	Market     MarketDataSource
	Router     *meta.Router
	TFCache    *meta.TimeframeCache
	Sizer      *risk.Sizer
	Normalizer *instrument.Normalizer
	Registry   *instrument.Registry
	Positions  *orders.PositionManager
	Orders     *orders.Manager
	Actions    *orders.Handler
	Gateway    execution.Gateway
	Kill       *killswitch.Switch
	Store      *persistence.Store
	Journal    *journal.Journal
	Log        zerolog.Logger
}

// Loop is one symbol's trading state machine.
type Loop struct {
	cfg  Config
	deps Deps

	mu    sync.Mutex
	state State

	stopCh chan struct{}
	wg     sync.WaitGroup

	errorBudgetUsed int
	lastErr         error

	prevBBWidth    float64
	havePrevBBWidth bool
	prevATRPercent  float64
	haveATRPercent  bool
}

// New builds a Loop in StateInitializing.
func New(cfg Config, deps Deps) *Loop {
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 200
	}
	if cfg.OrderbookDepth <= 0 {
		cfg.OrderbookDepth = 50
	}
	if len(cfg.ConfluenceIntervals) == 0 {
		cfg.ConfluenceIntervals = []string{cfg.PrimaryInterval}
	}
	return &Loop{cfg: cfg, deps: deps, state: StateInitializing}
}

// State reports the loop's current coarse state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// LastError reports the error that caused the most recent tick failure,
// or nil. Cleared on the next successful tick.
func (l *Loop) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Run reconciles local state against the venue, then runs the tick loop
// until Stop is called or an unrecoverable/error-budget-exhausting
// failure occurs, in which case Run returns that error. It always runs
// one tick immediately before waiting on the first ticker fire.
func (l *Loop) Run() error {
	l.setState(StateInitializing)
	l.mu.Lock()
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	if _, err := recovery.Reconcile(l.cfg.Symbol, l.deps.Gateway, l.deps.Store, l.deps.Journal); err != nil {
		l.deps.Log.Warn().Err(err).Str("symbol", l.cfg.Symbol).Msg("startup reconciliation failed, continuing")
	}

	l.wg.Add(1)
	defer l.wg.Done()

	l.setState(StateRunning)

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	if err := l.tickAndHandle(); err != nil {
		return err
	}

	for {
		select {
		case <-ticker.C:
			if err := l.tickAndHandle(); err != nil {
				return err
			}
		case <-l.stopCh:
			l.setState(StateStopped)
			return nil
		}
	}
}

// Stop signals Run's goroutine to exit and waits for it to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state == StateStopped || l.state == StateStopping {
		l.mu.Unlock()
		return
	}
	l.state = StateStopping
	ch := l.stopCh
	l.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	l.wg.Wait()
}

// tickAndHandle runs one tick and applies the error-budget/backoff
// policy on failure. It returns a non-nil error only once the budget is
// exhausted or the failure is not recoverable — that error is this
// loop's escalation to whatever owns it.
func (l *Loop) tickAndHandle() error {
	err := l.tick(time.Now())
	if err == nil {
		l.mu.Lock()
		l.errorBudgetUsed = 0
		l.lastErr = nil
		l.mu.Unlock()
		if l.State() == StateBackoffSleeping {
			l.setState(StateRunning)
		}
		return nil
	}

	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()

	kind := bterr.Of(err)
	metrics.ErrorsTotal.WithLabelValues(string(kind), "loop.tick").Inc()
	if !bterr.Recoverable(kind) {
		l.deps.Log.Error().Err(err).Str("symbol", l.cfg.Symbol).Msg("unrecoverable tick error, escalating")
		return err
	}

	l.mu.Lock()
	l.errorBudgetUsed++
	attempt := l.errorBudgetUsed
	l.mu.Unlock()

	if attempt > l.cfg.ErrorBudgetCeiling {
		l.deps.Log.Error().Err(err).Str("symbol", l.cfg.Symbol).Int("attempts", attempt).Msg("error budget exhausted, escalating")
		return err
	}

	l.setState(StateBackoffSleeping)
	delay := retry.Backoff(attempt - 1)
	l.deps.Log.Warn().Err(err).Str("symbol", l.cfg.Symbol).Dur("backoff", delay).Int("attempt", attempt).Msg("recoverable tick error, backing off")

	select {
	case <-time.After(delay):
	case <-l.stopCh:
	}
	return nil
}

// tick runs the full per-symbol iteration: fetch, feature build,
// timeframe-cache push, route, act.
func (l *Loop) tick(now time.Time) error {
	const op = "loop.tick"
	symbol := l.cfg.Symbol

	frames := make(map[string]*marketdata.Frame, len(l.cfg.ConfluenceIntervals))
	for _, interval := range l.cfg.ConfluenceIntervals {
		frame, err := l.deps.Market.GetKline(symbol, interval, l.cfg.KlineLimit)
		if err != nil {
			return err
		}
		if err := frame.Validate(); err != nil {
			return bterr.New(bterr.KindDataQuality, op, symbol, "invalid kline frame", err)
		}
		frames[interval] = frame
	}

	book, err := l.deps.Market.GetOrderbook(symbol, l.cfg.OrderbookDepth)
	if err != nil {
		return err
	}

	deriv, err := l.deps.Market.GetDerivativesSnapshot(symbol)
	if err != nil {
		return err
	}

	primaryFrame := frames[l.cfg.PrimaryInterval]
	primaryFeatures := indicators.BuildFeatures(primaryFrame, book, deriv, intervalMinutes(l.cfg.PrimaryInterval), l.cfg.IsTestnet)

	for _, interval := range l.cfg.ConfluenceIntervals {
		features := primaryFeatures
		if interval != l.cfg.PrimaryInterval {
			features = indicators.BuildFeatures(frames[interval], nil, nil, intervalMinutes(interval), l.cfg.IsTestnet)
		}
		if row, ok := features.LastClosed(); ok {
			l.deps.TFCache.Update(symbol, interval, row)
		}
	}

	lastRow, ok := primaryFeatures.LastClosed()
	if !ok {
		return bterr.New(bterr.KindDataQuality, op, symbol, "no closed bar available", nil)
	}

	bbWidthPctChange, atrSlope := l.rowDerivatives(lastRow)

	ntInput := notradezone.Input{
		Row:                   lastRow,
		Orderflow:             primaryFeatures.Orderflow,
		OrderbookInvalid:      !bookLooksValid(book),
		ErrorBudgetCount:      l.errorBudgetUsed,
		AllowAnomalyOnTestnet: l.cfg.NoTradeZone.AllowAnomalyOnTestnet,
		IsTestnet:             l.cfg.IsTestnet,
		MaxSpreadPercent:      l.cfg.NoTradeZone.MaxSpreadPercent,
		DepthImbalanceLimit:   l.cfg.NoTradeZone.DepthImbalanceLimit,
		ErrorBudgetCeiling:    l.cfg.ErrorBudgetCeiling,
		MaxATRPercentExtreme:  l.cfg.NoTradeZone.MaxATRPercentExtreme,
	}

	sig, rej := l.deps.Router.Evaluate(symbol, primaryFrame, primaryFeatures, ntInput, bbWidthPctChange, atrSlope)
	if rej != nil {
		metrics.SignalsRejected.WithLabelValues(symbol, rej.Reason).Inc()
		l.writeJournal(journal.Event{
			Kind:    journal.SignalRejected,
			Symbol:  symbol,
			Reasons: []string{rej.Reason},
			Values:  rej.Details,
		})
		return nil
	}

	metrics.SignalsGenerated.WithLabelValues(symbol, sig.Strategy, sig.Direction.String()).Inc()
	metrics.SetRegimeLabel(symbol, string(sig.Regime), regimeLabelStrings)

	l.writeJournal(journal.Event{
		Kind:       journal.SignalGenerated,
		Symbol:     symbol,
		Strategy:   sig.Strategy,
		Direction:  sig.Direction.String(),
		Confidence: sig.ScaledConfidence,
	})

	return l.actOnSignal(sig, lastRow.ATRPercent, now)
}

// regimeLabelStrings is regime.AllLabels converted once at init for
// metrics.SetRegimeLabel, which takes plain strings.
var regimeLabelStrings = func() []string {
	out := make([]string, len(regime.AllLabels))
	for i, l := range regime.AllLabels {
		out[i] = string(l)
	}
	return out
}()

// rowDerivatives computes the short-window bb-width %-change and ATR%
// slope the regime scorer wants, tracked across ticks since a single
// feature row has no memory of the previous one.
func (l *Loop) rowDerivatives(row marketdata.FeatureRow) (bbWidthPctChange, atrSlope float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.havePrevBBWidth && l.prevBBWidth != 0 && !marketdata.IsNA(row.BBWidth) {
		bbWidthPctChange = (row.BBWidth - l.prevBBWidth) / l.prevBBWidth * 100
	}
	if l.haveATRPercent && !marketdata.IsNA(row.ATRPercent) {
		atrSlope = row.ATRPercent - l.prevATRPercent
	}
	if !marketdata.IsNA(row.BBWidth) {
		l.prevBBWidth = row.BBWidth
		l.havePrevBBWidth = true
	}
	if !marketdata.IsNA(row.ATRPercent) {
		l.prevATRPercent = row.ATRPercent
		l.haveATRPercent = true
	}
	return bbWidthPctChange, atrSlope
}

// actOnSignal runs the signal-action decision, sizes, normalizes, and
// submits the resulting order (if any).
func (l *Loop) actOnSignal(sig *strategy.Signal, atrPercent float64, now time.Time) error {
	const op = "loop.actOnSignal"
	symbol := sig.Symbol

	if err := l.deps.Kill.GuardPlaceOrder(symbol); err != nil {
		metrics.SignalsRejected.WithLabelValues(symbol, "kill_switch_halted").Inc()
		l.writeJournal(journal.Event{Kind: journal.SignalRejected, Symbol: symbol, Reasons: []string{"kill_switch_halted"}})
		return nil
	}

	var current *orders.TrackedPosition
	if pos, ok := l.deps.Positions.GetPosition(symbol); ok {
		current = &pos
	}

	result := l.deps.Actions.Evaluate(current, sig, sig.EntryPrice)
	if !result.Success {
		metrics.SignalsRejected.WithLabelValues(symbol, string(result.Action)).Inc()
		l.writeJournal(journal.Event{
			Kind:      journal.SignalRejected,
			Symbol:    symbol,
			Strategy:  sig.Strategy,
			Direction: sig.Direction.String(),
			Reasons:   []string{result.Message},
		})
		return nil
	}
	// result.Success is true here, so ActionIgnore no longer means "signal
	// conflicts, drop it" (that already returned above) — it means "no
	// open position to conflict with," i.e. proceed as a fresh entry.
	// ActionAdd and ActionFlip fall through the same way.

	l.writeJournal(journal.Event{
		Kind:       journal.SignalAccepted,
		Symbol:     symbol,
		Strategy:   sig.Strategy,
		Direction:  sig.Direction.String(),
		Confidence: sig.ScaledConfidence,
	})

	if result.Action == orders.ActionFlip {
		if _, err := l.deps.Gateway.PlaceOrder(execution.OrderRequest{
			Category:   "linear",
			Symbol:     symbol,
			Side:       result.CloseSide,
			Type:       execution.Market,
			Qty:        result.CloseQty,
			ReduceOnly: true,
		}); err != nil {
			return l.recordOrderFailure(op, symbol, err)
		}
		metrics.OrdersSubmitted.WithLabelValues(symbol, string(result.CloseSide), "market").Inc()
		l.deps.Positions.ClosePosition(symbol)
		metrics.PositionQty.WithLabelValues(symbol).Set(0)
		metrics.PositionUnrealizedPnL.WithLabelValues(symbol).Set(0)
	}

	inst, ok := l.deps.Registry.Get(symbol)
	if !ok {
		return bterr.New(bterr.KindIntegrity, op, symbol, "no instrument descriptor", nil)
	}

	var qty decimal.Decimal
	if result.Action == orders.ActionAdd {
		qty = result.NewQty.Sub(result.OldQty)
	} else {
		equity := decimal.Zero
		if bal, err := l.deps.Gateway.GetAccountBalance(execution.AccountUnified); err == nil {
			equity = bal.AvailableBalance
			metrics.EquityTotal.Set(mustFloat(bal.TotalEquity))
		}
		openNotional, err := l.openNotionalExcluding(symbol)
		if err != nil {
			return err
		}

		riskSide := risk.Long
		if sig.Direction == strategy.Short {
			riskSide = risk.Short
		}

		sized, err := l.deps.Sizer.Size(risk.Request{
			Equity:                      equity,
			EntryPrice:                  sig.EntryPrice,
			StopLoss:                    sig.StopLoss,
			Side:                        riskSide,
			Symbol:                      symbol,
			Instrument:                  inst,
			ATRPercent:                  atrPercent,
			OpenNotionalExcludingSymbol: openNotional,
		})
		if err != nil {
			l.writeJournal(journal.Event{Kind: journal.OrderExecFailed, Symbol: symbol, Reasons: []string{err.Error()}})
			return nil // a sizing rejection is not a tick failure
		}
		qty = sized
	}

	normPrice, normQty, err := l.deps.Normalizer.NormalizeOrder(symbol, sig.EntryPrice, qty)
	if err != nil {
		l.writeJournal(journal.Event{Kind: journal.OrderExecFailed, Symbol: symbol, Reasons: []string{err.Error()}})
		return nil
	}

	side := execution.Buy
	if sig.Direction == strategy.Short {
		side = execution.Sell
	}

	l.writeJournal(journal.Event{Kind: journal.OrderExecStart, Symbol: symbol, Direction: sig.Direction.String()})

	clientLinkID := fmt.Sprintf("%s-%s", symbol, uuid.New().String())
	placeStart := time.Now()
	orderResult, err := l.deps.Gateway.PlaceOrder(execution.OrderRequest{
		Category:     "linear",
		Symbol:       symbol,
		Side:         side,
		Type:         execution.Limit,
		Qty:          normQty,
		Price:        normPrice,
		TIF:          execution.GTC,
		ClientLinkID: clientLinkID,
	})
	metrics.OrderLatencySeconds.WithLabelValues(symbol).Observe(time.Since(placeStart).Seconds())
	if err != nil || !orderResult.Success {
		return l.recordOrderFailure(op, symbol, err)
	}
	metrics.OrdersSubmitted.WithLabelValues(symbol, string(side), "limit").Inc()

	l.deps.Orders.Track(symbol, side, normQty, orderResult.OrderID, clientLinkID, now)

	switch result.Action {
	case orders.ActionAdd:
		l.deps.Positions.AddToPosition(symbol, normQty, normPrice, orderResult.OrderID, now)
	default:
		l.deps.Positions.RegisterPosition(symbol, side, normPrice, normQty, orderResult.OrderID, sig.Strategy, now)
	}

	if pos, ok, err := l.deps.Gateway.GetPosition(symbol); err == nil && ok {
		metrics.PositionQty.WithLabelValues(symbol).Set(mustFloat(pos.Qty))
		metrics.PositionUnrealizedPnL.WithLabelValues(symbol).Set(mustFloat(pos.UnrealizedPnL))
	}

	if err := l.deps.Store.UpsertPosition(persistence.PositionRecord{
		Symbol: symbol, Side: string(side), Qty: normQty, EntryPrice: normPrice,
		StrategyID: sig.Strategy, OrderID: orderResult.OrderID, OpenedAt: now, UpdatedAt: now,
	}); err != nil {
		l.deps.Log.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist position")
	}

	l.writeJournal(journal.Event{Kind: journal.OrderExecSuccess, Symbol: symbol, Direction: sig.Direction.String()})
	l.writeJournal(journal.Event{Kind: journal.PositionUpdate, Symbol: symbol, Values: map[string]float64{"qty": mustFloat(normQty)}})

	return nil
}

func (l *Loop) recordOrderFailure(op, symbol string, cause error) error {
	kind := bterr.Of(cause)
	reason := string(kind)
	if reason == "" {
		reason = "venue_rejected"
	}
	metrics.OrdersRejected.WithLabelValues(symbol, reason).Inc()
	l.writeJournal(journal.Event{Kind: journal.OrderExecFailed, Symbol: symbol, Reasons: []string{fmt.Sprint(cause)}})
	if cause == nil {
		return nil
	}
	metrics.ErrorsTotal.WithLabelValues(string(kind), op).Inc()
	if kind != "" {
		return cause
	}
	return bterr.New(bterr.KindVenue, op, symbol, "order submission failed", cause)
}

func (l *Loop) openNotionalExcluding(symbol string) (decimal.Decimal, error) {
	positions, err := l.deps.Store.Positions()
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range positions {
		if p.Symbol == symbol {
			continue
		}
		total = total.Add(p.Qty.Mul(p.EntryPrice))
	}
	return total, nil
}

func (l *Loop) writeJournal(ev journal.Event) {
	if l.deps.Journal == nil {
		return
	}
	if ev.Symbol == "" {
		ev.Symbol = l.cfg.Symbol
	}
	l.deps.Journal.Write(ev)
}

func bookLooksValid(book *marketdata.Orderbook) bool {
	_, bidOk := book.BestBid()
	_, askOk := book.BestAsk()
	return bidOk && askOk
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// intervalMinutes parses Bybit's kline interval convention to minutes.
// Unrecognized values fall back to 1, matching the shortest-timeframe
// (most conservative) anomaly thresholds.
func intervalMinutes(interval string) int {
	switch interval {
	case "1":
		return 1
	case "3":
		return 3
	case "5":
		return 5
	case "15":
		return 15
	case "30":
		return 30
	case "60":
		return 60
	case "120":
		return 120
	case "240":
		return 240
	case "360":
		return 360
	case "720":
		return 720
	case "D":
		return 1440
	case "W":
		return 10080
	default:
		return 1
	}
}
