package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/foxy/internal/history"
)

func sampleRun() history.Run {
	return history.Run{
		Command:   "sleep 5",
		ID:        "2f1c0b1e",
		PID:       12345,
		StartedAt: time.Now().Add(-time.Minute).UTC(),
	}
}

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	run := sampleRun()
	if err := sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Run: run}); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}

	run.ExitedAt = time.Now().UTC()
	run.ExitCode = 1
	run.Error = "stderr output"
	if err := sink.Send(ctx, history.Event{Type: history.EventExit, OccurredAt: run.ExitedAt, Run: run}); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_history WHERE lock_id = ?", run.ID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}

	var code int
	var errText string
	if err := sink.db.QueryRowContext(ctx, "SELECT exit_code, error FROM run_history WHERE event = 'exit'").Scan(&code, &errText); err != nil {
		t.Fatalf("select exit row: %v", err)
	}
	if code != 1 || errText != "stderr output" {
		t.Fatalf("unexpected exit row: code=%d err=%q", code, errText)
	}
}

func TestSQLiteSink_ReopenKeepsRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	for i := 0; i < 2; i++ {
		sink, err := New(dbPath)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := sink.Send(context.Background(), history.Event{Type: history.EventSkip, OccurredAt: time.Now(), Run: sampleRun()}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		_ = sink.Close()
	}
	sink, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sink.Close() }()
	var count int
	if err := sink.db.QueryRow("SELECT COUNT(*) FROM run_history").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows across reopen, got %d", count)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	if err := sink.Send(context.Background(), history.Event{Type: history.EventFail, OccurredAt: time.Now().UTC(), Run: history.Run{Command: "nope", ID: "x", Error: "not found"}}); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now(), Run: sampleRun()}); err == nil {
		t.Fatalf("expected error with cancelled context")
	}
}

func TestNew_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
