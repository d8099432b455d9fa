package store

import (
	"errors"
	"testing"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/types"
)

func TestRunRegistry_TerminalStatesAreWriteOnce(t *testing.T) {
	r := NewRunRegistry()
	if _, err := r.Create("ws", "sc", "run-1", 2025, 3); err != nil {
		t.Fatalf("create: %v", err)
	}

	running := types.RunRunning
	if _, err := r.Update("run-1", RunUpdate{Status: &running}); err != nil {
		t.Fatalf("to running: %v", err)
	}
	completed := types.RunCompleted
	if _, err := r.Update("run-1", RunUpdate{Status: &completed}); err != nil {
		t.Fatalf("to completed: %v", err)
	}

	failed := types.RunFailed
	if _, err := r.Update("run-1", RunUpdate{Status: &failed}); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict leaving terminal state, got %v", err)
	}

	run := r.Get("run-1")
	if run.Status != types.RunCompleted {
		t.Errorf("terminal status must stick, got %s", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("expected completed_at stamped on terminal transition")
	}
}

func TestRunRegistry_ProgressIsMonotonic(t *testing.T) {
	r := NewRunRegistry()
	if _, err := r.Create("ws", "sc", "run-1", 2025, 3); err != nil {
		t.Fatal(err)
	}

	for _, p := range []int{10, 44, 44, 30, 80} {
		progress := p
		if _, err := r.Update("run-1", RunUpdate{Progress: &progress}); err != nil {
			t.Fatalf("update progress %d: %v", p, err)
		}
	}

	if got := r.Get("run-1").Progress; got != 80 {
		t.Errorf("expected progress 80 (never regressing), got %d", got)
	}
}

func TestRunRegistry_DuplicateCreateConflicts(t *testing.T) {
	r := NewRunRegistry()
	if _, err := r.Create("ws", "sc", "run-1", 2025, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("ws", "sc", "run-1", 2025, 1); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict on duplicate run id, got %v", err)
	}
}

func TestRunRegistry_ActiveForWorkspace(t *testing.T) {
	r := NewRunRegistry()
	if _, err := r.Create("ws-a", "sc", "run-1", 2025, 1); err != nil {
		t.Fatal(err)
	}

	if !r.ActiveForWorkspace("ws-a") {
		t.Error("pending run should count as active")
	}
	if r.ActiveForWorkspace("ws-b") {
		t.Error("other workspaces must not be affected")
	}

	cancelled := types.RunCancelled
	if _, err := r.Update("run-1", RunUpdate{Status: &cancelled}); err != nil {
		t.Fatal(err)
	}
	if r.ActiveForWorkspace("ws-a") {
		t.Error("terminal run should not count as active")
	}
}
