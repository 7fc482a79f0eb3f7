package client

import (
	"errors"
	"strconv"
	"time"
)

// LockEntry is one lock record as reported by the status server.
type LockEntry struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	PID     int       `json:"pid"`
	Alive   bool      `json:"alive"`
	ModTime time.Time `json:"mod_time"`
	Err     string    `json:"error,omitempty"`
}

var (
	ErrNotFound     = errors.New("lock record not found")
	ErrAlive        = errors.New("lock owner is running")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is returned for unexpected responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "foxy api: unexpected status " + strconv.Itoa(e.StatusCode)
	}
	return "foxy api: " + e.Message
}

type errorResp struct {
	Error string `json:"error"`
}

type deleteResp struct {
	OK    bool      `json:"ok"`
	Entry LockEntry `json:"entry"`
}
