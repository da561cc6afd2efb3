// Package orchestrator owns one loop.Loop per symbol, launches each on
// its own goroutine under a concurrency cap, watches them for crashes,
// and exposes the aggregate health an operator (or httpapi) cares
// about. It never reaches into a Loop beyond Run/State/Stop.
package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bybitengine/execution"
	"bybitengine/killswitch"
	"bybitengine/loop"
	"bybitengine/metrics"
)

// LoopFactory builds the Loop and Gateway for one symbol. The
// orchestrator calls it once per symbol at Start, so every symbol gets
// its own strategy instances, sizer, position manager, and gateway
// rather than sharing mutable state across symbols.
type LoopFactory func(symbol string) (*loop.Loop, execution.Gateway, error)

// Config is the orchestrator's own tuning, distinct from any one
// loop's Config.
type Config struct {
	Symbols             []string
	MaxWorkers          int // concurrent running loops; 0 means unlimited
	StopOnError         bool
	HealthCheckInterval time.Duration // default 30s
}

// workerState tracks one symbol's current loop and gateway so the
// health check and Stop can reach it without a second lookup.
type workerState struct {
	loop    *loop.Loop
	gateway execution.Gateway
	crashed bool
	err     error
}

// Orchestrator runs Config.Symbols concurrently, one loop.Loop each.
type Orchestrator struct {
	cfg     Config
	factory LoopFactory
	kill    *killswitch.Switch
	log     zerolog.Logger

	mu      sync.Mutex
	workers map[string]*workerState

	stopCh   chan struct{}
	wg       sync.WaitGroup
	sem      chan struct{} // nil when MaxWorkers <= 0
	stopOnce sync.Once
}

// New builds an Orchestrator. kill is shared across every symbol's
// loop; a crash cascading under StopOnError activates it for every
// configured symbol.
func New(cfg Config, factory LoopFactory, kill *killswitch.Switch, log zerolog.Logger) *Orchestrator {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	var sem chan struct{}
	if cfg.MaxWorkers > 0 {
		sem = make(chan struct{}, cfg.MaxWorkers)
	}
	return &Orchestrator{
		cfg:     cfg,
		factory: factory,
		kill:    kill,
		log:     log,
		workers: make(map[string]*workerState, len(cfg.Symbols)),
		sem:     sem,
	}
}

// Run builds every symbol's loop, launches each under the concurrency
// cap, runs the health-check loop, and blocks until Stop is called or
// every worker has exited on its own. It returns the first worker
// crash it observed, if any.
func (o *Orchestrator) Run() error {
	o.stopCh = make(chan struct{})

	for _, symbol := range o.cfg.Symbols {
		l, gw, err := o.factory(symbol)
		if err != nil {
			return fmt.Errorf("orchestrator: build loop for %s: %w", symbol, err)
		}
		o.mu.Lock()
		o.workers[symbol] = &workerState{loop: l, gateway: gw}
		o.mu.Unlock()
	}

	var crashMu sync.Mutex
	var firstCrash error

	var workersWG sync.WaitGroup
	for _, symbol := range o.cfg.Symbols {
		symbol := symbol
		o.acquire()
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			defer o.release()

			metrics.LoopRunning.WithLabelValues(symbol).Set(1)
			defer metrics.LoopRunning.WithLabelValues(symbol).Set(0)

			w := o.workerFor(symbol)
			err := w.loop.Run()
			if err == nil {
				return
			}

			metrics.LoopCrashesTotal.WithLabelValues(symbol).Inc()
			o.log.Error().Err(err).Str("symbol", symbol).Msg("loop crashed")

			o.mu.Lock()
			w.crashed = true
			w.err = err
			o.mu.Unlock()

			crashMu.Lock()
			if firstCrash == nil {
				firstCrash = fmt.Errorf("orchestrator: %s: %w", symbol, err)
			}
			crashMu.Unlock()

			if o.cfg.StopOnError {
				o.haltAll(fmt.Sprintf("loop crash: %s: %v", symbol, err))
				o.Stop()
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.healthCheckLoop()
	}()

	// Every worker has either run to a clean Stop or crashed. Either way
	// there is nothing left to monitor, so end the health-check loop
	// even if nobody called Stop explicitly.
	workersWG.Wait()
	o.stopOnce.Do(func() {
		if o.stopCh != nil {
			close(o.stopCh)
		}
	})
	o.wg.Wait()

	crashMu.Lock()
	defer crashMu.Unlock()
	return firstCrash
}

func (o *Orchestrator) workerFor(symbol string) *workerState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.workers[symbol]
}

func (o *Orchestrator) acquire() {
	if o.sem != nil {
		o.sem <- struct{}{}
	}
}

func (o *Orchestrator) release() {
	if o.sem != nil {
		<-o.sem
	}
}

// haltAll activates the kill switch against every configured symbol,
// cancelling orders and closing positions for all of them through the
// first worker gateway that implements killswitch.Closer; the other
// workers' gateways are not called. If no gateway implements Closer it
// halts without cancelling or closing anything.
func (o *Orchestrator) haltAll(reason string) {
	o.mu.Lock()
	var closer killswitch.Closer
	for _, w := range o.workers {
		if c, ok := w.gateway.(killswitch.Closer); ok {
			closer = c
			break
		}
	}
	o.mu.Unlock()

	if closer == nil {
		o.log.Warn().Str("reason", reason).Msg("kill switch cascade: no gateway implements Closer, halting without cancel/close")
		o.kill.Activate(reason, o.cfg.Symbols, nil, false, false)
		return
	}
	activation := o.kill.Activate(reason, o.cfg.Symbols, closer, true, true)
	o.log.Warn().Str("reason", reason).Int("orders_cancelled", activation.OrdersCancelled).
		Int("positions_closed", activation.PositionsClosed).Msg("kill switch activated by orchestrator cascade")
}

// healthCheckLoop periodically logs each worker's state, giving an
// operator a liveness signal between /healthz polls.
func (o *Orchestrator) healthCheckLoop() {
	ticker := time.NewTicker(o.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ok, detail := o.Healthy()
			ev := o.log.Info()
			if !ok {
				ev = o.log.Warn()
			}
			for symbol, state := range detail {
				ev = ev.Str(symbol, state)
			}
			ev.Bool("healthy", ok).Msg("orchestrator health check")
		case <-o.stopCh:
			return
		}
	}
}

// Healthy satisfies httpapi.HealthChecker: healthy as long as no
// worker has crashed. detail maps each symbol to its current loop
// state, or "crashed: <error>" once it has exited abnormally.
func (o *Orchestrator) Healthy() (bool, map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	healthy := true
	detail := make(map[string]string, len(o.workers))
	for symbol, w := range o.workers {
		if w.crashed {
			healthy = false
			detail[symbol] = fmt.Sprintf("crashed: %v", w.err)
			continue
		}
		detail[symbol] = string(w.loop.State())
	}
	return healthy, detail
}

// Stop signals every worker's loop to stop and waits for Run to
// return. Safe to call multiple times and safe to call from within a
// worker goroutine (as the StopOnError cascade does).
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		if o.stopCh != nil {
			close(o.stopCh)
		}
	})

	o.mu.Lock()
	workers := make([]*workerState, 0, len(o.workers))
	for _, w := range o.workers {
		workers = append(workers, w)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop.Stop()
		}()
	}
	wg.Wait()
}
