// Package launcher runs a command unless a previous invocation of the same
// command line is still alive.
package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/foxy/internal/env"
	"github.com/loykin/foxy/internal/history"
	"github.com/loykin/foxy/internal/lock"
	"github.com/loykin/foxy/internal/logger"
	"github.com/loykin/foxy/internal/metrics"
)

// State is the terminal state of one invocation.
type State string

const (
	StateSkipped   State = "skipped"   // command was already running
	StateCompleted State = "completed" // child spawned and exited
	StateFailed    State = "failed"    // child could not be spawned
)

// Result describes what one invocation did.
type Result struct {
	Command  string
	ID       string
	LockPath string
	State    State
	PID      int
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	Err      error // spawn failure, set only in StateFailed
}

// Config holds what the launcher needs from the configuration.
type Config struct {
	LockDir        string
	Exclusive      bool
	HistoryTimeout time.Duration
	// ReuseCheck treats a live PID that started after its record was
	// written as a recycled PID, i.e. not running.
	ReuseCheck bool
	// Env holds KEY=VALUE overrides applied on top of the launcher's own
	// environment. Empty means the child inherits it unchanged.
	Env []string
}

// Option customizes a Launcher.
type Option func(*Launcher)

// WithHistory exports run events to s.
func WithHistory(s history.Sink) Option { return func(l *Launcher) { l.sink = s } }

// WithMetrics records launches in m.
func WithMetrics(m *metrics.Metrics) Option { return func(l *Launcher) { l.metrics = m } }

// WithDetector overrides the liveness check of lock records.
func WithDetector(d lock.DetectorFunc) Option { return func(l *Launcher) { l.detect = d } }

// Launcher deduplicates invocations of the same command line through lock
// records in a lock directory. It is not safe to share one Launcher between
// goroutines running the same command; separate processes are the intended
// unit of concurrency.
type Launcher struct {
	cfg     Config
	log     *slog.Logger
	sink    history.Sink
	metrics *metrics.Metrics
	detect  lock.DetectorFunc
	now     func() time.Time
}

// New creates the lock directory if needed and returns a Launcher.
func New(cfg Config, log *slog.Logger, opts ...Option) (*Launcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := lock.EnsureDir(cfg.LockDir); err != nil {
		return nil, err
	}
	l := &Launcher{
		cfg:    cfg,
		log:    log,
		sink:   history.Nop{},
		detect: lock.PIDFile,
		now:    time.Now,
	}
	if cfg.ReuseCheck {
		l.detect = lock.PIDFileReuse
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// LockPath returns the lock record path for commandLine.
func (l *Launcher) LockPath(commandLine string) string {
	return filepath.Join(l.cfg.LockDir, lock.ID(commandLine))
}

// Run launches commandLine unless it is already running and blocks until
// the child exits. Failures are logged and reported in the Result; Run
// never panics on a bad command and has no error return by contract.
func (l *Launcher) Run(ctx context.Context, commandLine string) Result {
	res := Result{
		Command:  commandLine,
		ID:       lock.ID(commandLine),
		LockPath: l.LockPath(commandLine),
	}

	g, err := lock.Acquire(res.LockPath, l.detect, l.cfg.Exclusive)
	if err != nil {
		l.fail(ctx, &res, err)
		return res
	}
	defer func() {
		if err := g.Release(); err != nil {
			l.log.Warn("could not remove lock record", "lock", res.LockPath, "error", err)
		}
	}()
	if err := g.CheckErr(); err != nil {
		if errors.Is(err, lock.ErrPIDReused) {
			l.log.Warn("lock record pid belongs to a newer process, treated as stale", "lock", res.LockPath, "error", err)
		} else {
			l.log.Warn("unreadable lock record treated as stale", "lock", res.LockPath, "error", err)
		}
	}

	if g.Running() {
		l.log.Info("process running: "+res.LockPath, "detector", g.Owner())
		res.State = StateSkipped
		l.metrics.Launch(res.ID, metrics.ResultSkipped, l.now())
		l.send(ctx, history.EventSkip, res, time.Time{})
		return res
	}

	l.spawn(ctx, g, &res)
	return res
}

func (l *Launcher) spawn(ctx context.Context, g *lock.Guard, res *Result) {
	argv, err := Tokenize(res.Command)
	if err != nil {
		l.fail(ctx, res, err)
		return
	}

	// #nosec G204 -- running the caller's command is the point
	cmd := exec.Command(argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(l.cfg.Env) > 0 {
		cmd.Env = env.Merge(os.Environ(), l.cfg.Env)
	}

	started := l.now()
	if err := cmd.Start(); err != nil {
		l.fail(ctx, res, err)
		return
	}
	res.PID = cmd.Process.Pid
	if err := g.SetPID(res.PID); err != nil {
		l.log.Error("could not write lock record", "lock", res.LockPath, "pid", res.PID, "error", err)
	}
	l.log.Debug("spawned", "command", res.Command, "pid", res.PID, "lock", res.LockPath)
	l.metrics.Launch(res.ID, metrics.ResultSpawned, started)
	l.send(ctx, history.EventStart, *res, started)

	werr := cmd.Wait()
	exited := l.now()
	res.State = StateCompleted
	res.Duration = exited.Sub(started)
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.ExitCode = -1
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case len(res.Stderr) > 0:
		l.log.Error(fmt.Sprintf("%s failed\n%s", res.Command, strings.TrimRight(string(res.Stderr), "\n")))
	case werr != nil && !errors.As(werr, &exitErr):
		l.log.Error(fmt.Sprintf("%s failed: %v", res.Command, werr))
	case res.ExitCode != 0:
		l.log.Warn(fmt.Sprintf("%s exited with status %d", res.Command, res.ExitCode))
	}
	l.metrics.ChildExited(res.ID, res.Duration, res.ExitCode, len(res.Stderr) > 0)
	l.send(ctx, history.EventExit, *res, started)
}

// fail logs a spawn failure at CRITICAL and records it.
func (l *Launcher) fail(ctx context.Context, res *Result, err error) {
	res.State = StateFailed
	res.Err = err
	l.log.Log(ctx, logger.LevelCritical, fmt.Sprintf("%s raised %v", res.Command, err))
	l.metrics.Launch(res.ID, metrics.ResultFailed, l.now())
	l.send(ctx, history.EventFail, *res, time.Time{})
}

func (l *Launcher) send(ctx context.Context, t history.EventType, res Result, started time.Time) {
	run := history.Run{
		Command:   res.Command,
		ID:        res.ID,
		PID:       res.PID,
		StartedAt: started,
		ExitCode:  res.ExitCode,
	}
	switch t {
	case history.EventExit:
		run.ExitedAt = started.Add(res.Duration)
		run.Error = string(res.Stderr)
	case history.EventFail:
		run.Error = res.Err.Error()
	}
	if l.cfg.HistoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.HistoryTimeout)
		defer cancel()
	}
	if err := l.sink.Send(ctx, history.Event{Type: t, OccurredAt: l.now(), Run: run}); err != nil {
		l.log.Warn("history export failed", "event", string(t), "error", err)
	}
}
