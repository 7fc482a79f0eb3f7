package history

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEventJSON(t *testing.T) {
	e := Event{
		Type:       EventStart,
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Run:        Run{Command: "sleep 5", ID: "abc", PID: 42, StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, `"type":"start"`) || !strings.Contains(s, `"command":"sleep 5"`) {
		t.Fatalf("unexpected JSON: %s", s)
	}
	if strings.Contains(s, "exited_at") || strings.Contains(s, `"error"`) {
		t.Fatalf("zero exit time and empty error must be omitted: %s", s)
	}
}

func TestRunNullables(t *testing.T) {
	var r Run
	if r.ExitedAtOrNil() != nil || r.ErrorOrNil() != nil {
		t.Fatalf("expected nils for zero run")
	}
	now := time.Now()
	r.ExitedAt = now
	r.Error = "boom"
	if got := r.ExitedAtOrNil(); got == nil || !got.Equal(now) {
		t.Fatalf("unexpected exited_at: %v", got)
	}
	if got := r.ErrorOrNil(); got == nil || *got != "boom" {
		t.Fatalf("unexpected error: %v", got)
	}
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	if err := s.Send(context.Background(), Event{Type: EventSkip}); err != nil {
		t.Fatalf("nop send: %v", err)
	}
}
