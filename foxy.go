// Package foxy runs commands unless the same command line is already running.
package foxy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/foxy/internal/config"
	"github.com/loykin/foxy/internal/history"
	"github.com/loykin/foxy/internal/history/factory"
	"github.com/loykin/foxy/internal/launcher"
	"github.com/loykin/foxy/internal/lock"
	"github.com/loykin/foxy/internal/metrics"
	iapi "github.com/loykin/foxy/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Result = launcher.Result

type State = launcher.State

type LockEntry = lock.Entry

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Metrics = metrics.Metrics

type Option = launcher.Option

const (
	StateSkipped   = launcher.StateSkipped
	StateCompleted = launcher.StateCompleted
	StateFailed    = launcher.StateFailed
)

// Launcher is a thin facade over internal/launcher.Launcher.
// It provides a stable public API for embedding.
type Launcher struct{ inner *launcher.Launcher }

// New creates the lock directory of c and returns a Launcher logging to log.
func New(c Config, log *slog.Logger, opts ...Option) (*Launcher, error) {
	l, err := launcher.New(launcher.Config{
		LockDir:        c.LockDir,
		Exclusive:      c.Exclusive,
		ReuseCheck:     c.ReuseCheck,
		HistoryTimeout: c.History.Timeout,
	}, log, opts...)
	if err != nil {
		return nil, err
	}
	return &Launcher{inner: l}, nil
}

func WithHistory(s HistorySink) Option { return launcher.WithHistory(s) }
func WithMetrics(m *Metrics) Option    { return launcher.WithMetrics(m) }

func (l *Launcher) LockPath(commandLine string) string { return l.inner.LockPath(commandLine) }

// Run launches commandLine unless it is already running. See launcher.Launcher.Run.
func (l *Launcher) Run(commandLine string) Result {
	return l.inner.Run(context.Background(), commandLine)
}

func DefaultConfig() Config                            { return cfg.Default() }
func LoadConfig(path string) (Config, error)           { return cfg.Load(path, nil) }
func ID(commandLine string) string                     { return lock.ID(commandLine) }
func ListLocks(dir string) ([]LockEntry, error)        { return lock.List(dir, lock.PIDFile) }
func RemoveStaleLocks(dir string) ([]LockEntry, error) { return lock.RemoveStale(dir, lock.PIDFile) }
func NewHistorySink(dsn string) (HistorySink, error)   { return factory.NewSinkFromDSN(dsn) }

// NewMetrics creates launcher metrics registered with r.
func NewMetrics(r prometheus.Registerer) (*Metrics, error) {
	m := metrics.New()
	if err := m.Register(r); err != nil {
		return nil, err
	}
	return m, nil
}

// NewStatusHandler returns the status API for lockDir mounted under basePath.
// A nil gatherer disables /metrics.
func NewStatusHandler(lockDir, basePath string, g prometheus.Gatherer) http.Handler {
	return iapi.NewRouter(lockDir, basePath, g).Handler()
}
