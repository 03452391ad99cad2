package state

import (
	"os"
	"testing"
	"time"
)

func TestCheckForInterrupted(t *testing.T) {
	db := setupTestDB(t)
	rm := NewRecoveryManager(db)

	got, err := rm.CheckForInterrupted()
	if err != nil || got != nil {
		t.Fatalf("empty db: got %v, %v", got, err)
	}

	// A run owned by a live process is not interrupted.
	live := &Run{ID: "live", Task: "t", ProjectDir: "/p", PID: os.Getpid(), StartedAt: time.Now()}
	if err := db.CreateRun(live); err != nil {
		t.Fatal(err)
	}
	done := createTestRun(t, db, "done", time.Now().Add(-time.Hour))
	if err := db.FinishRun(done.ID, RunCompleted, "", 1); err != nil {
		t.Fatal(err)
	}

	got, err = rm.CheckForInterrupted()
	if err != nil || got != nil {
		t.Fatalf("live/done runs: got %v, %v", got, err)
	}

	dead := createTestRun(t, db, "dead", time.Now().Add(-time.Minute))
	if err := db.UpsertEntries(dead.ID, map[string]string{"PLAN_FILE": "specs/p.md"}, 1); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendPhase(&Phase{RunID: dead.ID, Phase: "phase-2", Status: "started"}); err != nil {
		t.Fatal(err)
	}

	got, err = rm.CheckForInterrupted()
	if err != nil {
		t.Fatalf("CheckForInterrupted failed: %v", err)
	}
	if got == nil || got.Run.ID != "dead" {
		t.Fatalf("interrupted = %+v, want run dead", got)
	}
	if got.Entries["PLAN_FILE"] != "specs/p.md" {
		t.Errorf("entries = %v", got.Entries)
	}
	if p := got.LastPhase(); p == nil || p.Phase != "phase-2" {
		t.Errorf("LastPhase = %+v", p)
	}

	if err := rm.Abandon(dead.ID); err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}
	r, _ := db.GetRun(dead.ID)
	if r.Status != RunStopped {
		t.Errorf("status after Abandon = %s", r.Status)
	}
}

func TestAbandonStale(t *testing.T) {
	db := setupTestDB(t)
	rm := NewRecoveryManager(db)

	createTestRun(t, db, "old", time.Now().Add(-3*time.Hour))
	createTestRun(t, db, "new", time.Now())

	n, err := rm.AbandonStale(time.Hour)
	if err != nil {
		t.Fatalf("AbandonStale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("abandoned %d, want 1", n)
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Error("non-positive pids are never alive")
	}
}
