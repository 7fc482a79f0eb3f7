package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Entry describes one lock record found in a lock directory.
type Entry struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	PID     int       `json:"pid"`
	Alive   bool      `json:"alive"`
	ModTime time.Time `json:"mod_time"`
	Err     string    `json:"error,omitempty"`
}

// Inspect returns the entry for the record named id inside dir.
func Inspect(dir, id string, detect DetectorFunc) (Entry, error) {
	if detect == nil {
		detect = PIDFile
	}
	if !IsID(id) {
		return Entry{}, ErrNotFound
	}
	path := filepath.Join(dir, id)
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	e := Entry{ID: id, Path: path, ModTime: fi.ModTime()}
	pid, err := ReadPID(path)
	if err != nil {
		e.Err = err.Error()
		return e, nil
	}
	e.PID = pid
	alive, err := detect(path).Alive()
	if err != nil {
		e.Err = err.Error()
	}
	e.Alive = alive
	return e, nil
}

// List returns every lock record in dir, oldest first.
// Files whose names are not identifiers are ignored.
func List(dir string, detect DetectorFunc) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if de.IsDir() || !IsID(de.Name()) {
			continue
		}
		e, err := Inspect(dir, de.Name(), detect)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	return out, nil
}

// RemoveStale deletes every record whose owner is not alive and returns the removed entries.
func RemoveStale(dir string, detect DetectorFunc) ([]Entry, error) {
	entries, err := List(dir, detect)
	if err != nil {
		return nil, err
	}
	var removed []Entry
	for _, e := range entries {
		if e.Alive {
			continue
		}
		if err := removeUnchanged(e); err != nil {
			if errors.Is(err, ErrReplaced) {
				continue
			}
			return removed, err
		}
		removed = append(removed, e)
	}
	return removed, nil
}

// ErrAlive is returned by Remove when the record's owner is still running.
var ErrAlive = errors.New("lock owner is running")

// Remove deletes the record named id if its owner is not alive.
func Remove(dir, id string, detect DetectorFunc) (Entry, error) {
	e, err := Inspect(dir, id, detect)
	if err != nil {
		return Entry{}, err
	}
	if e.Alive {
		return e, ErrAlive
	}
	if err := removeUnchanged(e); err != nil {
		if errors.Is(err, ErrReplaced) {
			return e, ErrAlive
		}
		return e, err
	}
	return e, nil
}

// ErrReplaced is returned when a record judged stale was rewritten with a
// new PID before it could be removed.
var ErrReplaced = errors.New("lock record replaced")

// removeUnchanged deletes the record of e only if it still holds e.PID.
// The record is first renamed aside so a launcher writing a fresh PID in
// the meantime is detected; such a record is linked back into place unless
// an even newer one already exists.
func removeUnchanged(e Entry) error {
	aside := e.Path + ".rm." + strconv.Itoa(os.Getpid())
	if err := os.Rename(e.Path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = os.Remove(aside) }()
	if pid, _ := ReadPID(aside); pid != e.PID {
		if err := os.Link(aside, e.Path); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("restore lock %s: %w", e.Path, err)
		}
		return ErrReplaced
	}
	return nil
}
