// Package shell implements the interactive command REPL and the
// attached per-process console, mirroring handleCommand and the
// screen -r mini-REPL in original_source/main.cpp: an initialization
// guard, a flat string-command dispatcher, and a nested loop for the
// attached process view.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sisoputnfrba/csopesysim/internal/config"
	"github.com/sisoputnfrba/csopesysim/internal/generator"
	"github.com/sisoputnfrba/csopesysim/internal/memmgr"
	"github.com/sisoputnfrba/csopesysim/internal/obs"
	"github.com/sisoputnfrba/csopesysim/internal/pcb"
	"github.com/sisoputnfrba/csopesysim/internal/queueset"
	"github.com/sisoputnfrba/csopesysim/internal/report"
	"github.com/sisoputnfrba/csopesysim/internal/scheduler"
	"github.com/sisoputnfrba/csopesysim/internal/stats"
)

const banner = `=====================================
          csopesysim OS Emulator
=====================================
Type 'initialize' to start, or 'help' for commands.
`

const helpText = `
Available commands:
  initialize                                   - load config.txt and start the scheduler
  screen -s <name> <memsize>                   - create a new process manually
  screen -c <name> <memsize> "<instructions>"  - create a process from a ';'-separated program
  screen -r <name>                             - attach to a process console
  screen -ls                                   - list all processes and their states
  scheduler-start                              - begin periodic process generation
  scheduler-stop                               - stop periodic process generation
  report-util                                  - write the CPU utilization report
  process-smi                                  - show CPU utilization and resident processes
  vmstat                                       - show memory and paging statistics
  help                                         - show this help message
  exit                                         - exit the emulator

Inside a process console:
  process-smi   - show this process's state and last fault
  exit          - return to the main menu
`

const (
	backingStorePath = "csopesy-backing-store.txt"
	reportPath       = "csopesy-log.txt"
)

// InitFunc loads and validates the Config; handleInitialize then builds
// every collaborator from it. The real one lives in cmd/csopesysim and
// opens config.txt from disk.
type InitFunc func() (*config.Config, error)

// Session owns every command-handler dependency and the initialization
// guard from spec.md §6/Open Question 4: every command but initialize,
// help, and exit is rejected until initialize has succeeded.
type Session struct {
	loadConfig InitFunc
	log        obs.Loggers

	out io.Writer
	in  *bufio.Scanner

	initialized bool
	cfg         *config.Config
	clock       *config.Clock
	ids         *pcb.IDAllocator
	mem         *memmgr.Manager
	queue       *queueset.Set
	statsSink   *stats.Sink
	gen         *generator.Generator
	loop        *scheduler.Loop
	printSink   *linePrinter
}

type linePrinter struct{ out io.Writer }

func (l *linePrinter) Print(line string) { fmt.Fprintln(l.out, line) }

// New builds a Session that reads commands from in and writes all
// output to out.
func New(in io.Reader, out io.Writer, loadConfig InitFunc, log obs.Loggers) *Session {
	return &Session{
		loadConfig: loadConfig,
		log:        log,
		out:        out,
		in:         bufio.NewScanner(in),
	}
}

// Run prints the banner and processes commands until `exit` or EOF.
func (s *Session) Run() {
	fmt.Fprint(s.out, banner)
	for {
		fmt.Fprint(s.out, "> ")
		if !s.in.Scan() {
			return
		}
		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}
		if !s.dispatch(line) {
			return
		}
	}
}

// dispatch handles one top-level command line. It returns false when
// the session should terminate.
func (s *Session) dispatch(line string) bool {
	command, rest := splitFirst(line)

	if !s.initialized && command != "initialize" && command != "help" && command != "exit" {
		fmt.Fprintln(s.out, "Error: emulator not initialized. Run 'initialize' first.")
		return true
	}

	switch command {
	case "exit":
		if s.loop != nil {
			s.loop.Stop()
		}
		fmt.Fprintln(s.out, "Exiting csopesysim...")
		return false
	case "help":
		fmt.Fprint(s.out, helpText)
	case "initialize":
		s.handleInitialize()
	case "screen":
		s.handleScreen(rest)
	case "scheduler-start":
		s.handleSchedulerStart()
	case "scheduler-stop":
		s.handleSchedulerStop()
	case "report-util":
		s.handleReportUtil()
	case "process-smi":
		s.handleProcessSMI()
	case "vmstat":
		s.handleVMStat()
	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", command)
	}
	return true
}

func (s *Session) handleInitialize() {
	if s.initialized {
		fmt.Fprintln(s.out, "Emulator is already initialized.")
		return
	}
	cfg, err := s.loadConfig()
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}

	s.cfg = cfg
	s.clock = config.NewClock()
	s.ids = pcb.NewIDAllocator()
	s.statsSink = stats.New()

	mem, err := memmgr.New(cfg, s.clock, s.statsSink, backingStorePath)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.mem = mem
	s.queue = queueset.New(cfg)
	s.gen = generator.New(cfg, s.ids, s.mem, s.queue, time.Now().UnixNano())
	s.printSink = &linePrinter{out: s.out}
	s.loop = scheduler.New(cfg, s.clock, s.queue, s.mem, s.printSink, s.statsSink, s.gen, s.log)

	go s.loop.Run()
	s.initialized = true
	fmt.Fprintln(s.out, "Configuration loaded successfully.")
}

func (s *Session) handleSchedulerStart() {
	s.gen.Start()
	fmt.Fprintln(s.out, "Process generation started.")
}

func (s *Session) handleSchedulerStop() {
	s.gen.Stop()
	fmt.Fprintln(s.out, "Process generation stopped.")
}

func (s *Session) handleReportUtil() {
	snap := s.queue.Snapshot()
	statSnap := s.statsSink.Snapshot()
	if err := report.WriteUtilReport(reportPath, snap, statSnap); err != nil {
		fmt.Fprintf(s.out, "Error writing report: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Report written to %s\n", reportPath)
}

func (s *Session) handleProcessSMI() {
	snap := s.queue.Snapshot()
	statSnap := s.statsSink.Snapshot()
	fmt.Fprintln(s.out, report.Utilization(snap, statSnap))
	fmt.Fprintln(s.out)
	fmt.Fprint(s.out, report.ProcessListing(snap))
}

func (s *Session) handleVMStat() {
	fmt.Fprintln(s.out, report.VMStat(
		s.mem.TotalMemory(), s.mem.UsedMemory(), s.mem.FreeMemory(),
		s.mem.ResidentFrameCount(), s.statsSink.Snapshot(),
	))
}

func (s *Session) handleScreen(rest string) {
	flag, rest := splitFirst(rest)
	switch flag {
	case "-s":
		s.screenCreate(rest, nil)
	case "-c":
		head, body, ok := parseScreenC(rest)
		if !ok {
			fmt.Fprintln(s.out, "Usage: screen -c <name> <memsize> \"<instructions>\"")
			return
		}
		instrs, err := parseProgram(body)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		s.screenCreate(head, instrs)
	case "-r":
		s.screenAttach(strings.TrimSpace(rest))
	case "-ls":
		s.screenList()
	default:
		fmt.Fprintln(s.out, "Usage: screen -s|-c|-r|-ls ...")
	}
}

func (s *Session) screenCreate(rest string, instrs []pcb.Instruction) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		fmt.Fprintln(s.out, "Usage: screen -s <name> <memsize>")
		return
	}
	name := fields[0]
	memSize, err := strconv.Atoi(fields[1])
	if err != nil || memSize < s.cfg.MinMemPerProc || memSize > s.cfg.MaxMemPerProc {
		fmt.Fprintf(s.out, "Error: memsize must be in [%d,%d]\n", s.cfg.MinMemPerProc, s.cfg.MaxMemPerProc)
		return
	}
	if memSize < 64 || memSize > 65536 || !isPowerOfTwo(memSize) {
		fmt.Fprintln(s.out, "Error: memsize must be a power of two in [64,65536]")
		return
	}

	id := s.ids.Next()
	p := pcb.New(id, name, memSize)
	if instrs != nil {
		p.Instructions = instrs
	} else {
		p.Instructions = []pcb.Instruction{{Op: pcb.PRINT}}
	}
	s.mem.Allocate(id, memSize)
	s.queue.Admit(p)
	fmt.Fprintf(s.out, "New process %s created.\n", name)
}

func (s *Session) screenAttach(name string) {
	p := s.findByName(name)
	if p == nil {
		fmt.Fprintf(s.out, "Error: process %s not found.\n", name)
		return
	}
	fmt.Fprintf(s.out, "Attached to %s\n", name)
	for {
		fmt.Fprintf(s.out, "%s> ", name)
		if !s.in.Scan() {
			return
		}
		cmd := strings.TrimSpace(s.in.Text())
		switch cmd {
		case "process-smi":
			fmt.Fprint(s.out, report.ProcessSMI(p))
		case "exit":
			fmt.Fprintln(s.out, "Returning to main menu...")
			return
		default:
			fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
		}
	}
}

func (s *Session) screenList() {
	snap := s.queue.Snapshot()
	fmt.Fprintln(s.out, "Processes:")
	for _, p := range snap.Ready {
		fmt.Fprintf(s.out, "%s [READY]\n", p.Name)
	}
	for _, p := range snap.Cores {
		if p != nil {
			fmt.Fprintf(s.out, "%s [RUNNING]\n", p.Name)
		}
	}
	for _, p := range snap.Sleeping {
		fmt.Fprintf(s.out, "%s [SLEEPING]\n", p.Name)
	}
	for _, p := range snap.Finished {
		fmt.Fprintf(s.out, "%s [%s]\n", p.Name, p.State)
	}
}

// findByName searches Ready, Sleeping, and the core slots only, per
// original_source/main.cpp's screen -r: a finished process cannot be
// reattached.
func (s *Session) findByName(name string) *pcb.PCB {
	snap := s.queue.Snapshot()
	for _, p := range snap.Cores {
		if p != nil && p.Name == name {
			return p
		}
	}
	for _, group := range [][]*pcb.PCB{snap.Ready, snap.Sleeping} {
		for _, p := range group {
			if p.Name == name {
				return p
			}
		}
	}
	return nil
}

// isPowerOfTwo reports whether n is a positive power of two, per
// spec.md §3's address-space sizing rule.
func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// parseScreenC splits `<name> <memsize> "<instructions>"`.
func parseScreenC(rest string) (name string, body string, ok bool) {
	rest = strings.TrimSpace(rest)
	open := strings.IndexByte(rest, '"')
	shut := strings.LastIndexByte(rest, '"')
	if open < 0 || shut <= open {
		return "", "", false
	}
	head := strings.Fields(rest[:open])
	if len(head) < 2 {
		return "", "", false
	}
	return strings.Join(head, " "), rest[open+1 : shut], true
}

// maxUserInstructions caps manually authored programs per spec.md §6.
const maxUserInstructions = 50

// parseProgram tokenizes a `;`-separated instruction string and
// validates each opcode's operand count, per spec.md §6.
func parseProgram(body string) ([]pcb.Instruction, error) {
	stmts := strings.Split(body, ";")
	var out []pcb.Instruction
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		fields := strings.Fields(stmt)
		op := pcb.Op(strings.ToUpper(fields[0]))
		args := fields[1:]
		if err := validateArity(op, args); err != nil {
			return nil, err
		}
		out = append(out, pcb.Instruction{Op: op, Args: args})
	}
	if len(out) > maxUserInstructions {
		return nil, fmt.Errorf("program exceeds %d instructions", maxUserInstructions)
	}
	return out, nil
}

func validateArity(op pcb.Op, args []string) error {
	want := -1 // -1 means "any", used by PRINT
	switch op {
	case pcb.DECLARE:
		want = 2
	case pcb.ADD, pcb.SUBTRACT:
		want = 3
	case pcb.SLEEP:
		want = 1
	case pcb.FOR, pcb.READ, pcb.WRITE:
		want = 2
	case pcb.PRINT:
		want = -1
	default:
		return fmt.Errorf("unknown opcode %q", op)
	}
	if want >= 0 && len(args) != want {
		return fmt.Errorf("%s requires %d arguments, got %d", op, want, len(args))
	}
	return nil
}
