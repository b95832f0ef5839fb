package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sisoputnfrba/csopesysim/internal/pcb"
	"github.com/sisoputnfrba/csopesysim/internal/queueset"
	"github.com/sisoputnfrba/csopesysim/internal/stats"
)

func TestUtilizationReportsUsedCores(t *testing.T) {
	p := pcb.New(0, "p00", 64)
	snap := queueset.Snapshot{Cores: []*pcb.PCB{p, nil}}
	out := Utilization(snap, stats.Snapshot{})
	if !strings.Contains(out, "50.00%") {
		t.Fatalf("expected 50%% utilization, got %q", out)
	}
}

func TestProcessListingSeparatesRunningAndFinished(t *testing.T) {
	running := pcb.New(0, "p00", 64)
	finished := pcb.New(1, "p01", 64)
	finished.SetState(pcb.Finished)
	snap := queueset.Snapshot{
		Cores:    []*pcb.PCB{running},
		Finished: []*pcb.PCB{finished},
	}
	out := ProcessListing(snap)
	if !strings.Contains(out, "p00") || !strings.Contains(out, "p01") {
		t.Fatalf("expected both processes listed, got %q", out)
	}
	if strings.Index(out, "p00") > strings.Index(out, "Finished processes") {
		t.Fatalf("expected running process listed before the Finished section")
	}
}

func TestWriteUtilReportRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csopesy-log.txt")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	snap := queueset.Snapshot{}
	if err := WriteUtilReport(path, snap, stats.Snapshot{}); err != nil {
		t.Fatalf("WriteUtilReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "stale") {
		t.Fatalf("expected file rewritten, not appended")
	}
}

func TestProcessSMIIncludesLastFault(t *testing.T) {
	p := pcb.New(0, "p00", 64)
	p.AppendLog("FAULT: invalid WRITE address")
	out := ProcessSMI(p)
	if !strings.Contains(out, "FAULT: invalid WRITE address") {
		t.Fatalf("expected last fault in output, got %q", out)
	}
}
