package pipeline

import (
	"errors"
	"fmt"
)

// State is the position of a run in its lifecycle:
//
//	Idle → Connecting → Querying → Fetching ⇄ Writing → Completed
//	                                                 ↘ Failed (from any state)
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateQuerying
	StateFetching
	StateWriting
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateQuerying:   "querying",
	StateFetching:   "fetching",
	StateWriting:    "writing",
	StateCompleted:  "completed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// ErrPartialRun is returned when the run reached the end of the result but
// one or more batches could not be written.
var ErrPartialRun = errors.New("run finished with failed batches")

// StageError reports the stage a run failed in and, when a batch was in
// flight, its sequence number.
type StageError struct {
	Stage    State
	Sequence int
	Err      error
}

func (e *StageError) Error() string {
	if e.Sequence > 0 {
		return fmt.Sprintf("%s (batch %d): %v", e.Stage, e.Sequence, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
