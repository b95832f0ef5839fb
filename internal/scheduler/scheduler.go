// Package scheduler drives one logical tick at a time: advance the
// clock, offer the Generator a chance to synthesize a process, wake due
// sleepers, execute every occupied core, then dispatch free cores from
// Ready. Grounded on PlanificarCortoPlazo/PlanificarLargoPlazo's
// for{}-with-recover loop shape in the teacher kernel, collapsed into a
// single loop since there is no longer an STS/LTS split once the
// scheduler, not an HTTP-connected CPU, runs the interpreter directly.
package scheduler

import (
	"time"

	"github.com/sisoputnfrba/csopesysim/internal/config"
	"github.com/sisoputnfrba/csopesysim/internal/interpreter"
	"github.com/sisoputnfrba/csopesysim/internal/obs"
	"github.com/sisoputnfrba/csopesysim/internal/pcb"
	"github.com/sisoputnfrba/csopesysim/internal/queueset"
	"github.com/sisoputnfrba/csopesysim/internal/stats"
)

// Generator is the subset of internal/generator the loop drives once
// per tick.
type Generator interface {
	Tick(now config.Tick)
}

// Memory is the interpreter's memory collaborator, threaded through so
// the loop need not depend on internal/memmgr directly.
type Memory = interpreter.Memory

// PrintSink receives PRINT output from every process the loop executes.
type PrintSink = interpreter.PrintSink

// TickInterval is the fixed real-time pacing between simulated ticks,
// matching the teacher's tiempoEsperaReintentos-style constant for a
// retry/poll cadence, repurposed here as the tick's wall-clock period.
const TickInterval = 100 * time.Millisecond

// Loop owns every collaborator needed to advance the simulation by one
// tick and to run continuously in its own goroutine post-initialize.
type Loop struct {
	cfg   *config.Config
	clock *config.Clock
	queue *queueset.Set
	mem   Memory
	stats *stats.Sink
	gen   Generator
	sink  PrintSink
	log   obs.Loggers

	stop chan struct{}
	done chan struct{}
}

// New builds a Loop. sink may be nil to discard PRINT output.
func New(cfg *config.Config, clock *config.Clock, queue *queueset.Set, mem Memory, sink PrintSink, statsSink *stats.Sink, gen Generator, log obs.Loggers) *Loop {
	return &Loop{
		cfg:   cfg,
		clock: clock,
		queue: queue,
		mem:   mem,
		stats: statsSink,
		gen:   gen,
		sink:  sink,
		log:   log,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Step advances the simulation by exactly one tick: Generate → Wake →
// Execute → Dispatch, then updates the active/idle tick counters. It is
// exported directly so tests can drive deterministic single steps
// without the real-time pacing goroutine.
func (l *Loop) Step() config.Tick {
	now := l.clock.Advance()

	l.gen.Tick(now)
	l.queue.WakePhase(now)
	l.queue.ExecutePhase(func(p *pcb.PCB) {
		interpreter.Execute(p, now, l.cfg, l.mem, l.sink)
	})
	l.queue.DispatchPhase(nil)

	active := int64(l.queue.ActiveCores())
	idle := int64(l.queue.NumCores()) - active
	l.stats.AddActive(active)
	l.stats.AddIdle(idle)

	return now
}

// Run drives Step continuously, paced by TickInterval, until Stop is
// called. It is meant to run in its own goroutine, started once by the
// shell's `initialize` command.
func (l *Loop) Run() {
	defer close(l.done)
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	l.log.Info.Info("scheduler loop started")
	for {
		select {
		case <-l.stop:
			l.log.Info.Info("scheduler loop stopped")
			return
		case <-ticker.C:
			l.Step()
		}
	}
}

// Stop terminates the loop at the next tick boundary and blocks until
// it has exited, per spec.md §5's cooperative-cancellation note.
func (l *Loop) Stop() {
	close(l.stop)
	<-l.done
}
