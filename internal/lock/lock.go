// Package lock manages lock records: one file per distinct command line,
// named by the command's SHA-256 hex digest and holding the PID of the
// process that currently owns it.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/loykin/foxy/internal/detector"
)

// ErrInvalidRecord is returned for records whose first line is not a PID.
var ErrInvalidRecord = detector.ErrInvalidPID

// ErrNotFound is returned when no record exists for an identifier.
var ErrNotFound = errors.New("lock record not found")

// DetectorFunc builds the liveness detector used for a record path.
type DetectorFunc func(path string) detector.Detector

// ErrPIDReused marks a record whose PID now belongs to a younger process.
var ErrPIDReused = detector.ErrPIDReused

// PIDFile is the default DetectorFunc.
func PIDFile(path string) detector.Detector { return detector.PIDFileDetector{PIDFile: path} }

// PIDFileReuse is PIDFile plus the start-time check against the record's mtime.
func PIDFileReuse(path string) detector.Detector {
	return detector.PIDFileDetector{PIDFile: path, CheckReuse: true}
}

// ID returns the identifier of a command line: hex(SHA-256(command)).
func ID(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])
}

// Path returns the record path of command inside dir.
func Path(dir, command string) string { return filepath.Join(dir, ID(command)) }

// IsID reports whether name looks like an identifier produced by ID.
func IsID(name string) bool {
	if len(name) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// EnsureDir creates the lock directory if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create lock dir %s: %w", dir, err)
	}
	return nil
}

// ReadPID returns the PID stored in the record at path.
func ReadPID(path string) (int, error) { return detector.ReadPIDFile(path) }

// WritePID replaces the contents of the record at path with pid.
// The write goes to a temporary file that is renamed over the record so a
// concurrent reader never observes a partially written PID.
func WritePID(path string, pid int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(strconv.Itoa(pid)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
