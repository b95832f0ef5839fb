// Package memmgr implements per-process page tables, the fixed frame
// pool, FIFO/LRU victim selection, and the append-only backing-store log
// described in spec.md §4.6–§4.7.
package memmgr

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/sisoputnfrba/csopesysim/internal/config"
	"github.com/sisoputnfrba/csopesysim/internal/stats"
)

// NotResident is the page-table sentinel for a page with no frame.
const NotResident = -1

type frame struct {
	id               int
	ownerPID         int // -1 when free
	pageNum          int
	dirty            bool
	allocatedTick    config.Tick
	lastAccessedTick config.Tick
}

const noOwner = -1

// Manager owns the frame pool and every process's page table behind a
// single mutex, matching spec.md §5's mem_mutex.
type Manager struct {
	cfg   *config.Config
	clock *config.Clock
	stats *stats.Sink

	mu         sync.Mutex
	frames     []frame
	pageTables map[int]map[int]int // pid -> page -> frame id | NotResident

	logPath string
	logFile *os.File
	logW    *bufio.Writer
}

// New builds a Manager with cfg.TotalFrames free frames and truncates
// (or creates) the backing-store log at logPath, mirroring
// MemoryManager::initialize() in original_source/MO2.
func New(cfg *config.Config, clock *config.Clock, sink *stats.Sink, logPath string) (*Manager, error) {
	m := &Manager{
		cfg:        cfg,
		clock:      clock,
		stats:      sink,
		frames:     make([]frame, cfg.TotalFrames),
		pageTables: make(map[int]map[int]int),
		logPath:    logPath,
	}
	for i := range m.frames {
		m.frames[i] = frame{id: i, ownerPID: noOwner}
	}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("memmgr: open backing store %s: %w", logPath, err)
		}
		m.logFile = f
		m.logW = bufio.NewWriter(f)
	}
	return m, nil
}

// Close flushes and closes the backing-store log.
func (m *Manager) Close() error {
	if m.logW == nil {
		return nil
	}
	if err := m.logW.Flush(); err != nil {
		return err
	}
	return m.logFile.Close()
}

func (m *Manager) pageOf(addr int) int {
	return addr / m.cfg.MemPerFrame
}

// Allocate installs NotResident page-table entries for every page of a
// mem-size-byte address space. It always succeeds: demand paging never
// assigns a frame at allocation time.
func (m *Manager) Allocate(pid int, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pages := (size + m.cfg.MemPerFrame - 1) / m.cfg.MemPerFrame
	table := make(map[int]int, pages)
	for p := 0; p < pages; p++ {
		table[p] = NotResident
	}
	m.pageTables[pid] = table
}

// Deallocate frees every frame owned by pid and erases its page table.
// Nothing calls it when a PCB reaches Finished, and the shell's `exit`
// does not call it either: a finished process keeps its frames until
// they are evicted.
func (m *Manager) Deallocate(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.frames {
		if m.frames[i].ownerPID == pid {
			m.frames[i] = frame{id: i, ownerPID: noOwner}
		}
	}
	delete(m.pageTables, pid)
}

// IsResident reports whether addr's page currently has a frame. A hit
// refreshes the frame's last-accessed tick, which LRU victim selection
// depends on.
func (m *Manager) IsResident(pid int, addr int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.pageTables[pid]
	if !ok {
		return false
	}
	page := m.pageOf(addr)
	frameID, ok := table[page]
	if !ok || frameID == NotResident {
		return false
	}
	m.frames[frameID].lastAccessedTick = m.clock.Now()
	return true
}

// RequestPage brings addr's page into a frame if it is not already
// resident, evicting a victim by the configured replacement policy when
// the pool is full. It is a no-op if the page is already resident.
func (m *Manager) RequestPage(pid int, addr int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.pageTables[pid]
	if !ok {
		return
	}
	page := m.pageOf(addr)
	if frameID, ok := table[page]; ok && frameID != NotResident {
		return
	}

	frameID := m.findFreeFrame()
	if frameID == -1 {
		frameID = m.selectVictim()
		m.swapOut(frameID)
	}
	m.swapIn(pid, page, frameID)
	table[page] = frameID
}

func (m *Manager) findFreeFrame() int {
	for i := range m.frames {
		if m.frames[i].ownerPID == noOwner {
			return i
		}
	}
	return -1
}

// selectVictim picks the frame to evict under the configured policy.
// FIFO keys off allocatedTick (set at swap-in, resolving the Open
// Question in spec.md §9 in favor of the memory-manager-aware variant);
// LRU keys off lastAccessedTick.
func (m *Manager) selectVictim() int {
	best := -1
	for i := range m.frames {
		if m.frames[i].ownerPID == noOwner {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		switch m.cfg.ReplacementPolicy {
		case config.LRU:
			if m.frames[i].lastAccessedTick < m.frames[best].lastAccessedTick {
				best = i
			}
		default: // FIFO
			if m.frames[i].allocatedTick < m.frames[best].allocatedTick {
				best = i
			}
		}
	}
	return best
}

func (m *Manager) swapOut(frameID int) {
	f := &m.frames[frameID]
	if f.ownerPID == noOwner {
		return
	}
	if ownerTable, ok := m.pageTables[f.ownerPID]; ok {
		ownerTable[f.pageNum] = NotResident
	}
	m.writeLog(fmt.Sprintf("SwapOut: PID %d Page %d from Frame %d", f.ownerPID, f.pageNum, f.id))
	m.stats.IncPagedOut()
	*f = frame{id: frameID, ownerPID: noOwner}
}

func (m *Manager) swapIn(pid int, page int, frameID int) {
	now := m.clock.Now()
	m.frames[frameID] = frame{
		id:               frameID,
		ownerPID:         pid,
		pageNum:          page,
		allocatedTick:    now,
		lastAccessedTick: now,
	}
	m.writeLog(fmt.Sprintf("SwapIn: PID %d Page %d into Frame %d", pid, page, frameID))
	m.stats.IncPagedIn()
}

func (m *Manager) writeLog(line string) {
	if m.logW == nil {
		return
	}
	fmt.Fprintln(m.logW, line)
	m.logW.Flush()
}

// MarkDirty flags the frame backing addr's page as dirty, called after a
// successful WRITE hit.
func (m *Manager) MarkDirty(pid int, addr int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.pageTables[pid]
	if !ok {
		return
	}
	page := m.pageOf(addr)
	frameID, ok := table[page]
	if !ok || frameID == NotResident {
		return
	}
	m.frames[frameID].dirty = true
}

// FreeMemory, UsedMemory and TotalMemory back the supplemented vmstat
// command (spec.md supplement from original_source/MO2).
func (m *Manager) FreeMemory() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	free := 0
	for i := range m.frames {
		if m.frames[i].ownerPID == noOwner {
			free++
		}
	}
	return free * m.cfg.MemPerFrame
}

func (m *Manager) TotalMemory() int {
	return len(m.frames) * m.cfg.MemPerFrame
}

func (m *Manager) UsedMemory() int {
	return m.TotalMemory() - m.FreeMemory()
}

// ResidentFrameCount returns how many of the pool's frames are currently
// occupied, for the supplemented vmstat command's "frames in use" line.
func (m *Manager) ResidentFrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.frames {
		if m.frames[i].ownerPID != noOwner {
			n++
		}
	}
	return n
}

// ProcessResidentFrames returns how many frames pid currently owns.
func (m *Manager) ProcessResidentFrames(pid int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.frames {
		if m.frames[i].ownerPID == pid {
			n++
		}
	}
	return n
}
