// Package queueset holds the emulator's Ready/Sleeping/Finished queues
// and the fixed array of core slots behind a single mutex, the way
// planificador.go in the teacher kernel holds colaReady/colaBlocked and
// colaExec behind readyMutex/execMutex, collapsed here into the one
// queue_mutex spec.md §5 calls for since there is no cross-process
// HTTP boundary left to justify separate locks.
package queueset

import (
	"sync"

	"github.com/sisoputnfrba/csopesysim/internal/config"
	"github.com/sisoputnfrba/csopesysim/internal/pcb"
)

// Set owns every PCB queue and the per-core dispatch slots.
type Set struct {
	cfg *config.Config

	mu sync.Mutex

	ready    []*pcb.PCB
	sleeping []*pcb.PCB
	finished []*pcb.PCB

	cores []*pcb.PCB // nil slot == idle core
}

// New builds a Set with cfg.NumCPU idle core slots.
func New(cfg *config.Config) *Set {
	return &Set{cfg: cfg, cores: make([]*pcb.PCB, cfg.NumCPU)}
}

// Admit places a freshly created PCB on the Ready queue.
func (s *Set) Admit(p *pcb.PCB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.SetState(pcb.Ready)
	s.ready = append(s.ready, p)
}

// WakePhase moves every sleeping PCB whose wake tick has arrived back to
// Ready, per spec.md §4.5's wake phase. Iteration preserves arrival
// order among the PCBs that remain sleeping.
func (s *Set) WakePhase(now config.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stillSleeping []*pcb.PCB
	for _, p := range s.sleeping {
		if now >= p.SleepUntilTick {
			p.SetState(pcb.Ready)
			s.ready = append(s.ready, p)
		} else {
			stillSleeping = append(stillSleeping, p)
		}
	}
	s.sleeping = stillSleeping
}

// ExecutePhase runs execFn against every occupied core slot, in index
// order, then routes the PCB by its resulting state exactly as spec.md
// §4.5 describes: Finished/MemoryViolated to Finished, Sleeping to
// Sleeping, and a still-Running RR process charged one quantum tick
// unless it is fault-stalled, requeued to Ready once the quantum is
// spent. The whole phase runs under one critical section.
func (s *Set) ExecutePhase(execFn func(p *pcb.PCB)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for core := range s.cores {
		p := s.cores[core]
		if p == nil {
			continue
		}
		execFn(p)

		switch p.State {
		case pcb.Finished, pcb.MemoryViolated:
			s.finished = append(s.finished, p)
			s.cores[core] = nil
		case pcb.Sleeping:
			s.sleeping = append(s.sleeping, p)
			s.cores[core] = nil
		case pcb.Running:
			if s.cfg.Scheduler == config.RR && !p.IsWaiting {
				p.QuantumTicksLeft--
				if p.QuantumTicksLeft <= 0 {
					p.SetState(pcb.Ready)
					s.ready = append(s.ready, p)
					s.cores[core] = nil
				}
			}
		}
	}
}

// DispatchPhase fills every idle core from Ready, in FIFO order,
// installing a fresh RR quantum when the configured scheduler is RR.
func (s *Set) DispatchPhase(onDispatch func(core int, p *pcb.PCB)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for core := range s.cores {
		if s.cores[core] != nil {
			continue
		}
		if len(s.ready) == 0 {
			return
		}
		p := s.ready[0]
		s.ready = s.ready[1:]
		p.SetState(pcb.Running)
		if s.cfg.Scheduler == config.RR {
			p.QuantumTicksLeft = s.cfg.QuantumCycles
		}
		s.cores[core] = p
		if onDispatch != nil {
			onDispatch(core, p)
		}
	}
}

// CoreAt returns the PCB occupying a core slot, or nil if idle.
func (s *Set) CoreAt(core int) *pcb.PCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cores[core]
}

// NumCores reports how many core slots the Set manages.
func (s *Set) NumCores() int {
	return len(s.cores)
}

// Snapshot is a point-in-time copy of every queue and core slot, used by
// process-smi/vmstat/screen -ls.
type Snapshot struct {
	Ready    []*pcb.PCB
	Sleeping []*pcb.PCB
	Finished []*pcb.PCB
	Cores    []*pcb.PCB
}

func (s *Set) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cores := make([]*pcb.PCB, len(s.cores))
	copy(cores, s.cores)
	return Snapshot{
		Ready:    append([]*pcb.PCB(nil), s.ready...),
		Sleeping: append([]*pcb.PCB(nil), s.sleeping...),
		Finished: append([]*pcb.PCB(nil), s.finished...),
		Cores:    cores,
	}
}

// ActiveCores counts cores currently occupied by a non-waiting process,
// matching the active_ticks definition in spec.md §4.8.
func (s *Set) ActiveCores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.cores {
		if p != nil && !p.IsWaiting {
			n++
		}
	}
	return n
}

// FindByID scans every queue, Finished included, and every core slot for
// the PCB with the given id. The shell's `screen -r` looks processes up
// by name instead.
func (s *Set) FindByID(id int) *pcb.PCB {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.cores {
		if p != nil && p.ID == id {
			return p
		}
	}
	for _, group := range [][]*pcb.PCB{s.ready, s.sleeping, s.finished} {
		for _, p := range group {
			if p.ID == id {
				return p
			}
		}
	}
	return nil
}
