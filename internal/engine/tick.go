// Package engine provides the fixed-step simulation loop and the Simulation
// that ties the field, the registry and the crew together.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultReportEvery is how many ticks pass between simulation reports.
const DefaultReportEvery = 600

// Engine drives the simulation forward in fixed sim-time steps.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Delta    float64       // Sim-seconds advanced per tick
	Interval time.Duration // Wall time per tick at speed 1.0

	// Callbacks populated during setup.
	OnTick      func(tick uint64, dt float64) // Every tick
	OnReport    func(tick uint64)             // Every ReportEvery ticks
	ReportEvery uint64

	mu      sync.Mutex
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running atomic.Bool
	stop    chan struct{}
}

// NewEngine creates an engine stepping delta sim-seconds per tick.
func NewEngine(delta float64, interval time.Duration) *Engine {
	return &Engine{
		Delta:       delta,
		Interval:    interval,
		ReportEvery: DefaultReportEvery,
		speed:       1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. 0 pauses the real-time loop.
func (e *Engine) SetSpeed(speed float64) error {
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("speed must be a finite value >= 0, got %g", speed)
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
	slog.Info("engine speed changed", "speed", speed)
	return nil
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the real-time loop. Blocks until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "delta", e.Delta)

	for {
		speed := e.Speed()
		wait := 100 * time.Millisecond
		if speed > 0 {
			start := time.Now()
			e.Step()
			wait = time.Duration(float64(e.Interval)/speed) - time.Since(start)
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				slog.Info("simulation engine stopped", "tick", e.Tick, "reason", ctx.Err())
				return
			case <-stop:
				timer.Stop()
				slog.Info("simulation engine stopped", "tick", e.Tick)
				return
			case <-timer.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.Tick, "reason", ctx.Err())
			return
		case <-stop:
			slog.Info("simulation engine stopped", "tick", e.Tick)
			return
		default:
		}
	}
}

// Stop halts the real-time loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// Step advances the simulation by one tick of Delta.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick, e.Delta)
	}

	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
}

// RunFor steps n ticks as fast as possible, ignoring speed. Used by batch
// runs and tests.
func (e *Engine) RunFor(n uint64) {
	for i := uint64(0); i < n; i++ {
		e.Step()
	}
}

// SimTime renders the sim-time elapsed after tick steps of delta seconds.
func SimTime(tick uint64, delta float64) string {
	total := time.Duration(float64(tick) * delta * float64(time.Second))
	h := int(total.Hours())
	m := int(total.Minutes()) % 60
	s := int(total.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
