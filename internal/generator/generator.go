// Package generator synthesizes PCBs with randomized instruction
// streams at the configured cadence, mirroring spec.md §4.4. The
// seeded *rand.Rand field follows the same pattern the certamen
// scheduler example uses for reproducible synthetic workloads.
package generator

import (
	"fmt"
	"math/rand"

	"github.com/sisoputnfrba/csopesysim/internal/config"
	"github.com/sisoputnfrba/csopesysim/internal/pcb"
)

// minForBody is the smallest body a synthesized FOR may have. A FOR is
// emitted only when at least this many slots remain after the FOR
// instruction itself, i.e. when more than minForBody slots remain.
const minForBody = 2

var variablePool = []string{"x", "y", "z", "counter"}

var leafOps = []pcb.Op{pcb.PRINT, pcb.DECLARE, pcb.ADD, pcb.SUBTRACT, pcb.SLEEP, pcb.READ, pcb.WRITE}

// Generator owns the id allocator and RNG used to synthesize processes.
type Generator struct {
	cfg   *config.Config
	ids   *pcb.IDAllocator
	rng   *rand.Rand
	mem   MemoryAllocator
	sink  Admitter

	enabled          bool
	lastGenerateTick config.Tick
}

// MemoryAllocator is the subset of the memory manager the generator
// needs to install a fresh page table for a synthesized process.
type MemoryAllocator interface {
	Allocate(pid int, size int)
}

// Admitter is the subset of the queue set the generator needs to place
// a freshly synthesized PCB on Ready.
type Admitter interface {
	Admit(p *pcb.PCB)
}

// New builds a Generator. seed lets tests reproduce a specific
// instruction stream; the shell's `initialize` command passes a seed
// derived from the wall clock once, at startup.
func New(cfg *config.Config, ids *pcb.IDAllocator, mem MemoryAllocator, sink Admitter, seed int64) *Generator {
	return &Generator{
		cfg:  cfg,
		ids:  ids,
		rng:  rand.New(rand.NewSource(seed)),
		mem:  mem,
		sink: sink,
		// One full cadence "ago", so the first Tick after Start spawns
		// immediately, whatever tick generation is enabled at.
		lastGenerateTick: -config.Tick(cfg.BatchProcessFreq),
	}
}

// Start enables periodic generation, called by the `scheduler-start`
// shell command.
func (g *Generator) Start() { g.enabled = true }

// Stop disables periodic generation without disturbing PCBs already in
// flight, called by `scheduler-stop`.
func (g *Generator) Stop() { g.enabled = false }

// Enabled reports whether periodic generation is currently on.
func (g *Generator) Enabled() bool { return g.enabled }

// Tick is called once per scheduler iteration. It synthesizes and
// admits one PCB when generation is enabled and the configured cadence
// has elapsed.
func (g *Generator) Tick(now config.Tick) {
	if !g.enabled {
		return
	}
	if now-g.lastGenerateTick < config.Tick(g.cfg.BatchProcessFreq) {
		return
	}
	g.lastGenerateTick = now
	g.Spawn()
}

// Spawn synthesizes and admits one PCB unconditionally; Tick calls it
// once the cadence has elapsed. The shell's `screen -s` command builds
// its own PCB and does not go through Spawn.
func (g *Generator) Spawn() *pcb.PCB {
	id := g.ids.Next()
	memSize := g.randomMemSize()
	p := pcb.New(id, pcb.Name(id), memSize)
	p.Instructions = g.synthesizeProgram()
	g.mem.Allocate(id, memSize)
	g.sink.Admit(p)
	return p
}

// randomMemSize picks a power-of-two size in [min_mem_per_proc,
// max_mem_per_proc], the only two distinct magnitudes the config
// validator guarantees are themselves powers of two.
func (g *Generator) randomMemSize() int {
	if g.cfg.MinMemPerProc >= g.cfg.MaxMemPerProc {
		return g.cfg.MinMemPerProc
	}
	var sizes []int
	for s := g.cfg.MinMemPerProc; s <= g.cfg.MaxMemPerProc; s *= 2 {
		sizes = append(sizes, s)
	}
	return sizes[g.rng.Intn(len(sizes))]
}

func (g *Generator) synthesizeProgram() []pcb.Instruction {
	n := g.cfg.MinIns
	if g.cfg.MaxIns > g.cfg.MinIns {
		n += g.rng.Intn(g.cfg.MaxIns - g.cfg.MinIns + 1)
	}
	return g.synthesizeBlock(n)
}

// synthesizeBlock generates count instructions, occasionally emitting a
// FOR whose body is carved out of the remaining slot budget.
func (g *Generator) synthesizeBlock(count int) []pcb.Instruction {
	var out []pcb.Instruction
	remaining := count
	for remaining > 0 {
		// A FOR itself occupies one slot, so its body must be carved out
		// of what is left after that: at least minForBody slots must
		// remain once the FOR instruction itself is accounted for.
		if remaining > minForBody && g.rng.Intn(10) == 0 {
			bodyMax := 5
			if remaining-1 < bodyMax {
				bodyMax = remaining - 1
			}
			body := 2
			if bodyMax > 2 {
				body = 2 + g.rng.Intn(bodyMax-1)
			}
			iters := 2 + g.rng.Intn(4) // [2,5]
			out = append(out, pcb.Instruction{
				Op:   pcb.FOR,
				Args: []string{fmt.Sprintf("%d", iters), fmt.Sprintf("%d", body)},
			})
			out = append(out, g.synthesizeBlock(body)...)
			remaining -= 1 + body
			continue
		}
		out = append(out, g.synthesizeLeaf())
		remaining--
	}
	return out
}

func (g *Generator) randVar() string {
	return variablePool[g.rng.Intn(len(variablePool))]
}

func (g *Generator) synthesizeLeaf() pcb.Instruction {
	op := leafOps[g.rng.Intn(len(leafOps))]
	switch op {
	case pcb.PRINT:
		return pcb.Instruction{Op: pcb.PRINT, Args: []string{"+" + g.randVar()}}
	case pcb.DECLARE:
		return pcb.Instruction{Op: pcb.DECLARE, Args: []string{g.randVar(), fmt.Sprintf("%d", g.rng.Intn(100))}}
	case pcb.ADD:
		return pcb.Instruction{Op: pcb.ADD, Args: []string{g.randVar(), g.randVar(), fmt.Sprintf("%d", g.rng.Intn(50))}}
	case pcb.SUBTRACT:
		return pcb.Instruction{Op: pcb.SUBTRACT, Args: []string{g.randVar(), g.randVar(), fmt.Sprintf("%d", g.rng.Intn(50))}}
	case pcb.SLEEP:
		return pcb.Instruction{Op: pcb.SLEEP, Args: []string{fmt.Sprintf("%d", 1+g.rng.Intn(10))}}
	case pcb.READ:
		return pcb.Instruction{Op: pcb.READ, Args: []string{g.randVar(), fmt.Sprintf("0x%X", g.rng.Intn(4096))}}
	default: // WRITE
		return pcb.Instruction{Op: pcb.WRITE, Args: []string{fmt.Sprintf("0x%X", g.rng.Intn(4096)), fmt.Sprintf("%d", g.rng.Intn(100))}}
	}
}
