package history

import (
	"context"
	"time"
)

// EventType defines the kind of launch event.
type EventType string

const (
	EventSkip  EventType = "skip"  // command already running, nothing spawned
	EventStart EventType = "start" // child spawned
	EventExit  EventType = "exit"  // child exited
	EventFail  EventType = "fail"  // spawn failed
)

// Run describes one launcher invocation of a command.
type Run struct {
	Command   string    `json:"command"`
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	ExitedAt  time.Time `json:"exited_at,omitzero"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
}

// Event represents a launch event exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Run        Run       `json:"run"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }

// ExitedAtOrNil returns the exit time, or nil when the run has not exited.
func (r Run) ExitedAtOrNil() *time.Time {
	if r.ExitedAt.IsZero() {
		return nil
	}
	t := r.ExitedAt.UTC()
	return &t
}

// ErrorOrNil returns the error text, or nil when empty.
func (r Run) ErrorOrNil() *string {
	if r.Error == "" {
		return nil
	}
	s := r.Error
	return &s
}
