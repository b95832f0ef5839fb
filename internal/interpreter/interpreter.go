// Package interpreter implements the per-tick instruction execution
// contract described in spec.md §4.3: at most one instruction per call,
// possibly causing a PCB state transition.
package interpreter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sisoputnfrba/csopesysim/internal/config"
	"github.com/sisoputnfrba/csopesysim/internal/pcb"
)

// Memory is the subset of the Memory Manager the interpreter consults
// for READ/WRITE residency and fault handling.
type Memory interface {
	IsResident(pid int, addr int) bool
	RequestPage(pid int, addr int)
	MarkDirty(pid int, addr int)
}

// PrintSink receives PRINT output, one line per call.
type PrintSink interface {
	Print(line string)
}

var (
	literalRe = regexp.MustCompile(`^-?[0-9]+$`)
	varTokRe  = regexp.MustCompile(`\+([A-Za-z0-9_]+)`)
	hexAddrRe = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)
)

// Execute runs at most one instruction against p, mutating it in place.
// It never returns an error: every process-level failure is represented
// as a PCB state transition or a log entry, per spec.md §7's propagation
// policy that no process error may abort the scheduler.
func Execute(p *pcb.PCB, tick config.Tick, cfg *config.Config, mem Memory, sink PrintSink) {
	if p.DelayTicksLeft > 0 {
		p.DelayTicksLeft--
		return
	}

	// SLEEP (and any other instruction that returns early without going
	// through advance) can leave the PC having walked past the body of a
	// pending loop frame; collapse before the finish check and the fetch
	// below so a wake tick never indexes past the program.
	collapseLoops(p)

	if p.CurrentInstruction >= len(p.Instructions) {
		p.SetState(pcb.Finished)
		return
	}

	ins := p.Instructions[p.CurrentInstruction]
	p.AppendLog(fmt.Sprintf("EXEC %s %s", ins.Op, strings.Join(ins.Args, " ")))

	switch ins.Op {
	case pcb.PRINT:
		execPrint(p, ins, sink)
	case pcb.DECLARE:
		execDeclare(p, ins)
	case pcb.ADD:
		execArith(p, ins, true)
	case pcb.SUBTRACT:
		execArith(p, ins, false)
	case pcb.SLEEP:
		execSleep(p, ins, tick)
		return // SLEEP manages its own progression and returns directly.
	case pcb.READ:
		if !execReadWrite(p, ins, mem, true) {
			return // fault or violation: no progression this tick.
		}
	case pcb.WRITE:
		if !execReadWrite(p, ins, mem, false) {
			return
		}
	case pcb.FOR:
		if !execFor(p, ins) {
			advance(p, cfg) // soft FOR errors are skipped like any other instruction.
			return
		}
		return // a pushed FOR performs its own jump and returns directly.
	default:
		p.AppendLog(fmt.Sprintf("ERROR: unknown opcode %s", ins.Op))
	}

	advance(p, cfg)
}

// advance implements step 5 of spec.md §4.3: move to the next
// instruction, collapse any completed loop frames, and reset the
// per-instruction delay.
func advance(p *pcb.PCB, cfg *config.Config) {
	p.CurrentInstruction++
	collapseLoops(p)
	p.DelayTicksLeft = cfg.DelaysPerExec
}

func collapseLoops(p *pcb.PCB) {
	for len(p.LoopStack) > 0 {
		top := &p.LoopStack[len(p.LoopStack)-1]
		if p.CurrentInstruction <= top.BodyEnd {
			break
		}
		if top.IterationsRemaining > 0 {
			top.IterationsRemaining--
			p.CurrentInstruction = top.BodyStart
			continue
		}
		p.LoopStack = p.LoopStack[:len(p.LoopStack)-1]
	}
}

func execPrint(p *pcb.PCB, ins pcb.Instruction, sink PrintSink) {
	msg := fmt.Sprintf("Hello world from %s!", p.Name)
	if len(ins.Args) > 0 {
		msg = strings.Join(ins.Args, " ")
	}
	expanded := varTokRe.ReplaceAllStringFunc(msg, func(tok string) string {
		name := tok[1:]
		return strconv.Itoa(int(p.Symbols.Read(name)))
	})
	if sink != nil {
		sink.Print(fmt.Sprintf("[%s] %s", p.Name, expanded))
	}
}

func execDeclare(p *pcb.PCB, ins pcb.Instruction) {
	if len(ins.Args) < 2 {
		p.AppendLog("ERROR: DECLARE requires 2 arguments")
		return
	}
	name := ins.Args[0]
	n, err := strconv.Atoi(ins.Args[1])
	if err != nil {
		n = 0
	}
	p.Symbols.Set(name, pcb.Clamp16(n))
}

func resolveOperand(sym *pcb.SymbolTable, token string) int {
	if literalRe.MatchString(token) {
		n, _ := strconv.Atoi(token)
		return n
	}
	return int(sym.Read(token))
}

func execArith(p *pcb.PCB, ins pcb.Instruction, isAdd bool) {
	if len(ins.Args) < 3 {
		p.AppendLog(fmt.Sprintf("ERROR: %s requires 3 arguments", ins.Op))
		return
	}
	dst, a, b := ins.Args[0], ins.Args[1], ins.Args[2]
	av := resolveOperand(p.Symbols, a)
	bv := resolveOperand(p.Symbols, b)
	var result int
	if isAdd {
		result = av + bv
	} else {
		result = av - bv
	}
	p.Symbols.Set(dst, pcb.Clamp16(result))
}

func execSleep(p *pcb.PCB, ins pcb.Instruction, tick config.Tick) {
	ticks := 0
	if len(ins.Args) >= 1 {
		if n, err := strconv.Atoi(ins.Args[0]); err == nil {
			ticks = n
		}
	}
	p.SleepUntilTick = tick + config.Tick(ticks)
	p.CurrentInstruction++
	p.SetState(pcb.Sleeping)
}

func parseHexAddr(s string) (int, bool) {
	if !hexAddrRe.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseInt(s[2:], 16, 64)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// execReadWrite handles the shared fault/residency discipline of READ
// and WRITE (spec.md §4.3, §4.7). It returns false when the caller must
// not advance the PC this tick (a fault stall or a memory violation).
// A malformed instruction is logged and skipped like any other op's
// arity error.
func execReadWrite(p *pcb.PCB, ins pcb.Instruction, mem Memory, isRead bool) bool {
	if len(ins.Args) < 2 {
		p.AppendLog(fmt.Sprintf("ERROR: %s requires 2 arguments", ins.Op))
		return true
	}

	var addrToken, other string
	if isRead {
		other, addrToken = ins.Args[0], ins.Args[1]
	} else {
		addrToken, other = ins.Args[0], ins.Args[1]
	}

	addr, ok := parseHexAddr(addrToken)
	if !ok || addr >= p.MemorySize {
		p.AppendLog(fmt.Sprintf("FAULT: invalid %s address", ins.Op))
		p.SetState(pcb.MemoryViolated)
		return false
	}

	if !mem.IsResident(p.ID, addr) {
		mem.RequestPage(p.ID, addr)
		p.IsWaiting = true
		return false
	}
	p.IsWaiting = false

	if isRead {
		val := p.DataMemory[addr]
		p.Symbols.Set(other, val)
	} else {
		val := pcb.Clamp16(resolveOperand(p.Symbols, other))
		p.DataMemory[addr] = val
		mem.MarkDirty(p.ID, addr)
	}
	return true
}

// execFor pushes a loop frame and jumps into its body. It returns false
// (leaving p untouched beyond the log entry) when the FOR must be
// skipped per spec.md §4.3's soft ForDepthExceeded/ForBodyOutOfRange
// error kinds.
func execFor(p *pcb.PCB, ins pcb.Instruction) bool {
	if len(p.LoopStack) >= pcb.MaxLoopDepth {
		p.AppendLog("ERROR: FOR depth exceeded")
		return false
	}
	if len(ins.Args) < 2 {
		p.AppendLog("ERROR: FOR requires 2 arguments")
		return false
	}
	iters, err1 := strconv.Atoi(ins.Args[0])
	blockSize, err2 := strconv.Atoi(ins.Args[1])
	if err1 != nil || err2 != nil {
		p.AppendLog("ERROR: FOR has malformed arguments")
		return false
	}
	if iters <= 0 {
		// A zero-or-fewer iteration count immediately pops: the body
		// never runs, so the FOR is just skipped like any other
		// instruction.
		return false
	}
	// body_end = current_instruction + block_size must stay a valid
	// instruction index, or fetch would run past the program on the
	// loop's last body instruction.
	if p.CurrentInstruction+blockSize >= len(p.Instructions) {
		p.AppendLog("ERROR: FOR body out of range")
		return false
	}

	bodyStart := p.CurrentInstruction + 1
	bodyEnd := p.CurrentInstruction + blockSize
	p.LoopStack = append(p.LoopStack, pcb.LoopFrame{
		BodyStart:           bodyStart,
		BodyEnd:             bodyEnd,
		IterationsRemaining: iters - 1,
	})
	p.CurrentInstruction = bodyStart
	p.DelayTicksLeft = 0
	return true
}
