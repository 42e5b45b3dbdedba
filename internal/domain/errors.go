package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput is returned for caller mistakes such as an empty question
	ErrInvalidInput = errors.New("invalid input")

	// ErrThreadClaimed is returned when a thread id is already registered to another user
	ErrThreadClaimed = errors.New("thread already registered to another user")

	// ErrNotFound is returned by admin lookups that require a record
	ErrNotFound = errors.New("not found")
)

// StorageError reports a failure of the registry backing store
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err as a StorageError, passing nil through
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// RemoteServiceError reports a failed call to the remote conversation API
type RemoteServiceError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *RemoteServiceError) Error() string {
	if e.ThreadID == "" {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s (thread %s): %v", e.Op, e.ThreadID, e.Err)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// RunFailedError reports a run that reached a terminal status other than completed
type RunFailedError struct {
	ThreadID string
	RunID    string
	Status   RunStatus
	Code     string
	Message  string
}

func (e *RunFailedError) Error() string {
	msg := fmt.Sprintf("run %s on thread %s ended with status %s", e.RunID, e.ThreadID, e.Status)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// RunTimeoutError reports a run that did not reach a terminal status in time
type RunTimeoutError struct {
	ThreadID   string
	RunID      string
	LastStatus RunStatus
	Timeout    time.Duration
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("run %s on thread %s still %s after %s", e.RunID, e.ThreadID, e.LastStatus, e.Timeout)
}
