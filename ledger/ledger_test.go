package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/banksean/clrm/phase"
)

func TestOpenRecordAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite3")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ctx := context.Background()
	entry := Entry{
		RunName:         "vigilant-falcon",
		StartedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Version:         "1.0.0",
		Command:         "build-image",
		PhasesCompleted: []phase.Phase{phase.Prepare, phase.Install},
		ArtifactsDir:    "/artifacts",
		Success:         true,
	}
	if err := l.Record(ctx, entry); err != nil {
		t.Fatal(err)
	}

	entries, err := l.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.RunName != entry.RunName || got.Version != entry.Version || !got.Success {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if len(got.PhasesCompleted) != 2 || got.PhasesCompleted[1] != phase.Install {
		t.Fatalf("unexpected phases: %v", got.PhasesCompleted)
	}
}

func TestRecordUpsertsOnRunName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite3")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	ctx := context.Background()

	base := Entry{RunName: "r1", StartedAt: time.Now().UTC(), Command: "c1", ArtifactsDir: "/a"}
	if err := l.Record(ctx, base); err != nil {
		t.Fatal(err)
	}
	base.Success = true
	base.Error = ""
	if err := l.Record(ctx, base); err != nil {
		t.Fatal(err)
	}

	entries, err := l.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected upsert to leave exactly 1 row, got %d", len(entries))
	}
	if !entries[0].Success {
		t.Fatal("expected updated row to reflect success=true")
	}
}
