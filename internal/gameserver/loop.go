package gameserver

import (
	"sync"
	"time"

	"github.com/kcenon/common-game-server-sub000/pkg/logger"
)

// TickMetrics snapshots the most recently completed tick: how long the
// callback took to run and how much of the tick budget that consumed.
type TickMetrics struct {
	TickNumber        uint64
	UpdateTime        time.Duration
	BudgetUtilization float64
}

// TickCallback is invoked once per tick with the elapsed time in seconds
// since the previous tick.
type TickCallback func(deltaTime float64)

// DefaultTickRateHz is the simulation's default tick frequency.
const DefaultTickRateHz = 20

// GameLoop drives the simulation at a fixed tick rate on its own
// goroutine, or can be stepped manually one tick at a time for tests and
// offline tools. It mirrors the ticker+stop-channel pattern used
// elsewhere in this codebase for background polling loops.
type GameLoop struct {
	tickDuration time.Duration
	log          *logger.Logger

	mu       sync.Mutex
	callback TickCallback
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	metricsMu sync.Mutex
	metrics   TickMetrics
}

// NewGameLoop constructs a loop at tickRateHz, falling back to
// DefaultTickRateHz for a non-positive rate. log may be nil, in which
// case the loop operates silently.
func NewGameLoop(tickRateHz int, log *logger.Logger) *GameLoop {
	if tickRateHz <= 0 {
		tickRateHz = DefaultTickRateHz
	}
	return &GameLoop{tickDuration: time.Second / time.Duration(tickRateHz), log: log}
}

// SetTickCallback installs the function invoked on every tick, replacing
// any previous callback.
func (l *GameLoop) SetTickCallback(cb TickCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callback = cb
}

// IsRunning reports whether Start has succeeded and Stop hasn't run since.
func (l *GameLoop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start spawns the background ticking goroutine. Returns false if the
// loop is already running.
func (l *GameLoop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return false
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	go l.run(l.stopCh, l.doneCh)
	return true
}

// Stop signals the ticking goroutine to exit and waits for it to finish.
// A no-op if the loop isn't running.
func (l *GameLoop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	stopCh := l.stopCh
	doneCh := l.doneCh
	l.running = false
	l.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (l *GameLoop) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(l.tickDuration)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			l.runTick(dt)
		}
	}
}

// Tick steps the loop once synchronously, using the loop's fixed tick
// duration as deltaTime. Intended for tests and tools that drive the
// simulation manually rather than via Start's background goroutine.
func (l *GameLoop) Tick() {
	l.runTick(l.tickDuration.Seconds())
}

func (l *GameLoop) runTick(deltaTime float64) {
	l.mu.Lock()
	cb := l.callback
	l.mu.Unlock()

	start := time.Now()
	if cb != nil {
		cb(deltaTime)
	}
	updateTime := time.Since(start)

	budgetUtilization := updateTime.Seconds() / l.tickDuration.Seconds()

	l.metricsMu.Lock()
	l.metrics.TickNumber++
	l.metrics.UpdateTime = updateTime
	l.metrics.BudgetUtilization = budgetUtilization
	tickNumber := l.metrics.TickNumber
	l.metricsMu.Unlock()

	if budgetUtilization > 1.0 && l.log != nil {
		l.log.WithFields(map[string]interface{}{
			"tick_number":        tickNumber,
			"update_time_ms":     updateTime.Milliseconds(),
			"budget_utilization": budgetUtilization,
		}).Warn("tick exceeded its time budget")
	}
}

// LastMetrics returns a snapshot of the most recently completed tick.
func (l *GameLoop) LastMetrics() TickMetrics {
	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()
	return l.metrics
}
