package detector

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidPID is returned when a pidfile does not start with a positive decimal PID.
var ErrInvalidPID = errors.New("invalid pid")

// ErrPIDReused is returned together with alive=false when CheckReuse finds
// a process that started after the pidfile was written.
var ErrPIDReused = errors.New("pid reused")

// reuseToleranceSec absorbs clock-tick rounding between the kernel's start
// time and the pidfile's mtime.
const reuseToleranceSec = 2

// ReadPIDFile returns the PID on the first line of path.
// Missing files are reported with an error satisfying os.IsNotExist.
func ReadPIDFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	first, _, _ := strings.Cut(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	s := strings.TrimSpace(first)
	if s == "" {
		return 0, fmt.Errorf("%w: empty pidfile %s", ErrInvalidPID, path)
	}
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w in %s: %q", ErrInvalidPID, path, s)
	}
	return pid, nil
}

// PIDFileDetector detects the owner of a lock record.
//
// With CheckReuse set, a PID whose process started after the record was last
// written is reported as not alive with ErrPIDReused. The comparison trusts
// the clock that stamped the file, so it is off unless asked for.
type PIDFileDetector struct {
	PIDFile    string
	CheckReuse bool
}

func (d PIDFileDetector) Alive() (bool, error) {
	fi, err := os.Stat(d.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	pid, err := ReadPIDFile(d.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !PIDAlive(pid) {
		return false, nil
	}
	if d.CheckReuse {
		if start := getProcStartUnix(pid); start > 0 && start > fi.ModTime().Unix()+reuseToleranceSec {
			return false, fmt.Errorf("%w: pid %d started after %s was written", ErrPIDReused, pid, d.PIDFile)
		}
	}
	return true, nil
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }

// PIDDetector detects by a provided PID number.
type PIDDetector struct{ PID int }

func (d PIDDetector) Alive() (bool, error) { return PIDAlive(d.PID), nil }
func (d PIDDetector) Describe() string     { return fmt.Sprintf("pid:%d", d.PID) }
