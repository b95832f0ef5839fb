package interpreter

import (
	"testing"

	"github.com/sisoputnfrba/csopesysim/internal/config"
	"github.com/sisoputnfrba/csopesysim/internal/pcb"
)

type fakeMem struct {
	resident map[int]bool
	requests int
}

func newFakeMem() *fakeMem { return &fakeMem{resident: map[int]bool{}} }

func (m *fakeMem) IsResident(pid, addr int) bool { return m.resident[addr] }
func (m *fakeMem) RequestPage(pid, addr int) {
	m.requests++
	m.resident[addr] = true // instantly satisfied for these unit tests
}
func (m *fakeMem) MarkDirty(pid, addr int) {}

type fakeSink struct{ lines []string }

func (s *fakeSink) Print(line string) { s.lines = append(s.lines, line) }

func ins(op pcb.Op, args ...string) pcb.Instruction { return pcb.Instruction{Op: op, Args: args} }

// S1: DECLARE x 5; ADD x x 3; PRINT +x -> "[name] 8", Finished, pc=3.
func TestS1FCFSCompletion(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 64)
	p.Instructions = []pcb.Instruction{
		ins(pcb.DECLARE, "x", "5"),
		ins(pcb.ADD, "x", "x", "3"),
		ins(pcb.PRINT, "+x"),
	}
	sink := &fakeSink{}
	mem := newFakeMem()

	for i := 0; i < 4; i++ {
		Execute(p, config.Tick(i), cfg, mem, sink)
	}

	if len(sink.lines) != 1 || sink.lines[0] != "[p00] 8" {
		t.Fatalf("expected print '[p00] 8', got %v", sink.lines)
	}
	if p.State != pcb.Finished {
		t.Fatalf("expected Finished, got %v", p.State)
	}
	if p.CurrentInstruction != 3 {
		t.Fatalf("expected pc=3, got %d", p.CurrentInstruction)
	}
}

// S3: PRINT hi; SLEEP 3; PRINT bye.
func TestS3SleepWake(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 64)
	p.Instructions = []pcb.Instruction{
		ins(pcb.PRINT, "hi"),
		ins(pcb.SLEEP, "3"),
		ins(pcb.PRINT, "bye"),
	}
	sink := &fakeSink{}
	mem := newFakeMem()

	Execute(p, 1, cfg, mem, sink) // t1: prints hi
	if len(sink.lines) != 1 || sink.lines[0] != "[p00] hi" {
		t.Fatalf("expected hi printed at t1, got %v", sink.lines)
	}

	Execute(p, 2, cfg, mem, sink) // t2: SLEEP 3 -> wake at tick 5
	if p.State != pcb.Sleeping || p.SleepUntilTick != 5 {
		t.Fatalf("expected Sleeping until tick 5, got state=%v wake=%d", p.State, p.SleepUntilTick)
	}

	// The scheduler, not the interpreter, moves a sleeping PCB off the
	// core; simulate the wake by restoring Running once now >= wake tick.
	p.SetState(pcb.Running)
	Execute(p, 6, cfg, mem, sink)
	if len(sink.lines) != 2 || sink.lines[1] != "[p00] bye" {
		t.Fatalf("expected bye printed after wake, got %v", sink.lines)
	}
}

// S5: memsize=128, WRITE 0x200 42 -> 0x200=512 >= 128 -> MemoryViolated.
func TestS5MemoryViolation(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 128)
	p.Instructions = []pcb.Instruction{ins(pcb.WRITE, "0x200", "42")}
	mem := newFakeMem()

	Execute(p, 1, cfg, mem, &fakeSink{})

	if p.State != pcb.MemoryViolated {
		t.Fatalf("expected MemoryViolated, got %v", p.State)
	}
	msg, ok := p.LastFault()
	if !ok || msg != "FAULT: invalid WRITE address" {
		t.Fatalf("expected fault log entry, got %q ok=%v", msg, ok)
	}
}

func TestReadWriteFaultStallsInPlace(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 4096)
	p.Instructions = []pcb.Instruction{ins(pcb.WRITE, "0x10", "7")}
	mem := newFakeMem() // page not resident yet

	Execute(p, 1, cfg, mem, &fakeSink{})
	if !p.IsWaiting {
		t.Fatalf("expected is_waiting=true on fault")
	}
	if p.CurrentInstruction != 0 {
		t.Fatalf("expected pc unchanged on fault, got %d", p.CurrentInstruction)
	}
	if mem.requests != 1 {
		t.Fatalf("expected exactly one page request, got %d", mem.requests)
	}

	// Retry: fakeMem now reports resident, so the write completes.
	Execute(p, 2, cfg, mem, &fakeSink{})
	if p.IsWaiting {
		t.Fatalf("expected is_waiting cleared on hit")
	}
	if p.CurrentInstruction != 1 {
		t.Fatalf("expected pc advanced after hit, got %d", p.CurrentInstruction)
	}
	if p.DataMemory[0x10] != 7 {
		t.Fatalf("expected write to land, got %d", p.DataMemory[0x10])
	}
}

func TestSymbolTableOverflowReadsZero(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 64)
	var program []pcb.Instruction
	for i := 0; i < 33; i++ {
		program = append(program, ins(pcb.DECLARE, variableName(i), "1"))
	}
	p.Instructions = program
	mem := newFakeMem()

	for i := 0; i < len(program)+1; i++ {
		Execute(p, config.Tick(i), cfg, mem, &fakeSink{})
	}

	if p.Symbols.Len() != 32 {
		t.Fatalf("expected exactly 32 admitted variables, got %d", p.Symbols.Len())
	}
	if v := p.Symbols.Read(variableName(32)); v != 0 {
		t.Fatalf("expected dropped 33rd declare to read back 0, got %d", v)
	}
}

func variableName(i int) string {
	return string(rune('a'+(i%26))) + string(rune('0'+i/26))
}

func TestForNestedDepthThreeSucceedsFourFails(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 64)
	// Three nested FORs whose bodies all end at index 5, then a fourth
	// FOR attempted at depth 3, which must be skipped.
	p.Instructions = []pcb.Instruction{
		ins(pcb.FOR, "1", "5"), // 0: depth 1, body [1,5]
		ins(pcb.FOR, "1", "4"), // 1: depth 2, body [2,5]
		ins(pcb.FOR, "1", "3"), // 2: depth 3, body [3,5]
		ins(pcb.FOR, "1", "2"), // 3: depth-4 attempt, skipped
		ins(pcb.PRINT, "a"),    // 4
		ins(pcb.PRINT, "b"),    // 5
	}
	mem := newFakeMem()
	sink := &fakeSink{}
	maxDepth := 0
	for i := 0; i < 10; i++ {
		if p.State == pcb.Finished {
			break
		}
		Execute(p, config.Tick(i), cfg, mem, sink)
		if len(p.LoopStack) > maxDepth {
			maxDepth = len(p.LoopStack)
		}
	}
	if maxDepth != 3 {
		t.Fatalf("expected nesting to reach exactly depth 3, got %d", maxDepth)
	}
	if len(sink.lines) == 0 {
		t.Fatalf("expected at least one print from nested FOR execution")
	}
}

func TestForDepthFourRejected(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 64)
	// Already at depth 3, inside three enclosing loops whose bodies cover
	// the whole program, so the skipped FOR's advance pops none of them.
	p.LoopStack = []pcb.LoopFrame{
		{BodyStart: 0, BodyEnd: 2},
		{BodyStart: 0, BodyEnd: 2},
		{BodyStart: 0, BodyEnd: 2},
	}
	p.Instructions = []pcb.Instruction{
		ins(pcb.FOR, "2", "2"),
		ins(pcb.PRINT, "x"),
		ins(pcb.PRINT, "y"),
	}
	mem := newFakeMem()
	Execute(p, 1, cfg, mem, &fakeSink{})
	if len(p.LoopStack) != 3 {
		t.Fatalf("depth-4 FOR must be rejected, loop stack grew to %d", len(p.LoopStack))
	}
}

// A SLEEP as the final instruction of a FOR body must not escape the
// loop frame: the wake tick has to collapse the completed iteration
// before fetching, not index past the program.
func TestSleepAtEndOfForBodyCollapsesInsteadOfPanicking(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 64)
	p.Instructions = []pcb.Instruction{
		ins(pcb.FOR, "2", "2"), // 0: depth 1, body [1,2], 2 iterations
		ins(pcb.PRINT, "a"),    // 1
		ins(pcb.SLEEP, "1"),    // 2
	}
	mem := newFakeMem()
	sink := &fakeSink{}

	for tick := 1; tick < 30 && p.State != pcb.Finished; tick++ {
		if p.State == pcb.Sleeping && config.Tick(tick) >= p.SleepUntilTick {
			p.SetState(pcb.Running)
		}
		if p.State != pcb.Sleeping {
			Execute(p, config.Tick(tick), cfg, mem, sink)
		}
	}

	if p.State != pcb.Finished {
		t.Fatalf("expected process to finish, got state=%v pc=%d", p.State, p.CurrentInstruction)
	}
	if len(sink.lines) != 2 {
		t.Fatalf("expected PRINT to run once per iteration (2), got %v", sink.lines)
	}
}

func TestForZeroIterationsSkipsBodyEntirely(t *testing.T) {
	cfg := config.Defaults()
	p := pcb.New(0, "p00", 64)
	p.Instructions = []pcb.Instruction{
		ins(pcb.FOR, "0", "1"),
		ins(pcb.PRINT, "never"),
		ins(pcb.PRINT, "after"),
	}
	mem := newFakeMem()
	sink := &fakeSink{}

	Execute(p, 1, cfg, mem, sink) // FOR 0 1: skipped outright
	if len(p.LoopStack) != 0 {
		t.Fatalf("expected no loop frame pushed for a zero-iteration FOR, got %v", p.LoopStack)
	}
	if p.CurrentInstruction != 1 {
		t.Fatalf("expected pc to advance past the skipped FOR, got %d", p.CurrentInstruction)
	}

	Execute(p, 2, cfg, mem, sink) // PRINT never
	Execute(p, 3, cfg, mem, sink) // PRINT after
	if len(sink.lines) != 2 || sink.lines[0] != "[p00] never" || sink.lines[1] != "[p00] after" {
		t.Fatalf("expected the body instructions to run once each, unaffected by the loop, got %v", sink.lines)
	}
}

func TestDelaysPerExecPacesExecution(t *testing.T) {
	cfg := config.Defaults()
	cfg.DelaysPerExec = 2
	p := pcb.New(0, "p00", 64)
	p.Instructions = []pcb.Instruction{ins(pcb.PRINT, "a"), ins(pcb.PRINT, "b")}
	mem := newFakeMem()
	sink := &fakeSink{}

	Execute(p, 1, cfg, mem, sink) // executes PRINT a, sets delay=2
	Execute(p, 2, cfg, mem, sink) // delay tick, no instruction consumed
	Execute(p, 3, cfg, mem, sink) // delay tick
	if len(sink.lines) != 1 {
		t.Fatalf("expected only the first PRINT to have run so far, got %v", sink.lines)
	}
	Execute(p, 4, cfg, mem, sink) // executes PRINT b
	if len(sink.lines) != 2 {
		t.Fatalf("expected second PRINT after delay elapsed, got %v", sink.lines)
	}
}
