package runstore

import (
	"os"
	"testing"
	"time"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	rec := &RunRecord{
		RunID:     "run-1",
		Mode:      ModeBatch,
		State:     RunStateSuccess,
		OutputDir: "/proj/docs/images/screenshots",
		CreatedAt: now,
		StartedAt: &now,
		Jobs: []JobEntry{
			{Index: 0, PatternID: "glider.cells", Rows: 10, Cols: 10, Outcome: "success", OutputPath: "/proj/docs/images/screenshots/glider.cells.png"},
		},
		Counts: Counts{Total: 1, Succeeded: 1},
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.RunID != rec.RunID {
		t.Fatalf("run_id mismatch: got=%q want=%q", got.RunID, rec.RunID)
	}
	if got.State != rec.State {
		t.Fatalf("state mismatch: got=%q want=%q", got.State, rec.State)
	}
	if len(got.Jobs) != 1 || got.Jobs[0].PatternID != "glider.cells" {
		t.Fatalf("jobs not persisted: %+v", got.Jobs)
	}
}

func TestStore_WriteValidation(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Write(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
	if err := s.Write(&RunRecord{RunID: "  "}); err == nil {
		t.Fatalf("expected error for empty run id")
	}
	if err := NewStore("").Write(&RunRecord{RunID: "x"}); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	t1 := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 19, 13, 0, 0, 0, time.UTC)

	if err := s.Write(&RunRecord{RunID: "run-1", Mode: ModeBatch, State: RunStateSuccess, CreatedAt: t1, StartedAt: &t1}); err != nil {
		t.Fatalf("Write run-1: %v", err)
	}
	if err := s.Write(&RunRecord{RunID: "run-2", Mode: ModeSingle, State: RunStateFailed, CreatedAt: t2, StartedAt: &t2}); err != nil {
		t.Fatalf("Write run-2: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected run count: %d", len(got))
	}
	if got[0].RunID != "run-2" {
		t.Fatalf("expected newest first, got[0]=%q", got[0].RunID)
	}
}

func TestStore_GetMarksDeadRunUnknown(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now().UTC()

	// PIDs near the max are effectively never in use.
	if err := s.Write(&RunRecord{RunID: "run-dead", State: RunStateRunning, PID: 1 << 22, CreatedAt: now}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Get("run-dead")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != RunStateUnknown {
		t.Fatalf("state = %q, want unknown", got.State)
	}
}

func TestStore_GetKeepsOwnRunRunning(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Write(&RunRecord{RunID: "run-live", State: RunStateRunning, PID: os.Getpid(), CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Get("run-live")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != RunStateRunning {
		t.Fatalf("state = %q, want running", got.State)
	}
}

func TestStore_Prune(t *testing.T) {
	s := NewStore(t.TempDir())
	base := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		if err := s.Write(&RunRecord{RunID: id, State: RunStateSuccess, CreatedAt: ts, StartedAt: &ts}); err != nil {
			t.Fatalf("Write %s: %v", id, err)
		}
	}

	removed, err := s.Prune(1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	runs, _ := s.List()
	if len(runs) != 1 || runs[0].RunID != "c" {
		t.Fatalf("unexpected remaining runs: %+v", runs)
	}
}

func TestStateFor(t *testing.T) {
	tests := []struct {
		counts Counts
		want   RunState
	}{
		{Counts{Total: 3, Succeeded: 3}, RunStateSuccess},
		{Counts{Total: 3, Succeeded: 2, Skipped: 1}, RunStateSuccess},
		{Counts{Total: 3, Succeeded: 1, Failed: 1, TimedOut: 1}, RunStatePartial},
		{Counts{Total: 2, Failed: 1, TimedOut: 1}, RunStateFailed},
		{Counts{Total: 0}, RunStateSuccess},
	}
	for _, tt := range tests {
		if got := StateFor(tt.counts); got != tt.want {
			t.Errorf("StateFor(%+v) = %q, want %q", tt.counts, got, tt.want)
		}
	}
}

func TestStore_Resolve(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now().UTC()
	for _, id := range []string{"abc123-one", "abc456-two", "def789"} {
		if err := s.Write(&RunRecord{RunID: id, Mode: ModeBatch, State: RunStateSuccess, CreatedAt: now}); err != nil {
			t.Fatalf("Write(%s): %v", id, err)
		}
	}

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "def789", want: "def789"},
		{input: "abc1", want: "abc123-one"},
		{input: "def", want: "def789"},
		{input: "abc", wantErr: true},
		{input: "zzz", wantErr: true},
		{input: " ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := s.Resolve(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Resolve(%q) = %q, want error", tt.input, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
		}
	}
}
