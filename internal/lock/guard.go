package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
)

// Guard is the outcome of Acquire. It owns the conditional cleanup of one
// lock record: Release removes the record unless the command was already
// running when the guard was acquired.
type Guard struct {
	path    string
	running bool
	owner   string // describes the detector that found the owner alive
	checkEr error  // liveness check failure that was treated as stale

	once sync.Once
	err  error
}

// Path returns the record path.
func (g *Guard) Path() string { return g.path }

// Running reports whether the command was found already running.
func (g *Guard) Running() bool { return g.running }

// Owner describes how the running owner was detected; empty when not running.
func (g *Guard) Owner() string { return g.owner }

// CheckErr returns the error of a liveness check that was treated as stale, if any.
func (g *Guard) CheckErr() error { return g.checkEr }

// SetPID records pid as the owner of the record.
func (g *Guard) SetPID(pid int) error {
	if g.running {
		return fmt.Errorf("lock %s is owned by another invocation", g.path)
	}
	return WritePID(g.path, pid)
}

// Release deletes the record when this guard did not find the command
// running. It is safe to call more than once.
func (g *Guard) Release() error {
	g.once.Do(func() {
		if g.running {
			return
		}
		if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			g.err = err
		}
	})
	return g.err
}

// Acquire performs the liveness check for the record at path.
//
// In the default mode the record is only read; SetPID creates it later, so
// two invocations racing between check and write can both proceed.
// With exclusive set the record is claimed by an O_EXCL create holding the
// caller's own PID, which closes that window.
func Acquire(path string, detect DetectorFunc, exclusive bool) (*Guard, error) {
	if detect == nil {
		detect = PIDFile
	}
	if exclusive {
		return acquireExclusive(path, detect)
	}
	g := &Guard{path: path}
	alive, err := check(path, detect)
	if err != nil {
		g.checkEr = err
	}
	if alive {
		g.running = true
		g.owner = detect(path).Describe()
	}
	return g, nil
}

// ErrContended is returned when a stale record was removed but another
// invocation recreated it before the retry, and its owner is not alive either.
var ErrContended = errors.New("lock record contended")

// removeRecord deletes a stale record before the claim is retried.
var removeRecord = os.Remove

func acquireExclusive(path string, detect DetectorFunc) (*Guard, error) {
	g := &Guard{path: path}
	for attempt := 0; ; attempt++ {
		err := createExclusive(path, os.Getpid())
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("claim lock %s: %w", path, err)
		}
		alive, cerr := check(path, detect)
		if cerr != nil {
			g.checkEr = cerr
		}
		if alive {
			g.running = true
			g.owner = detect(path).Describe()
			return g, nil
		}
		if attempt > 0 {
			return nil, fmt.Errorf("claim lock %s: %w", path, ErrContended)
		}
		if err := removeRecord(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock %s: %w", path, err)
		}
	}
}

func createExclusive(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// check reports whether the record's owner is alive. A missing record is not
// alive; an unreadable or malformed record is reported as not alive together
// with the error.
func check(path string, detect DetectorFunc) (bool, error) {
	alive, err := detect(path).Alive()
	if err != nil {
		return false, err
	}
	return alive, nil
}
