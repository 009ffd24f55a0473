// Package lifecycle holds the task state machine. Every status transition in
// the system goes through Apply, so "transition out of a terminal state" is
// rejected in exactly one place.
package lifecycle

import (
	"fmt"

	"execq/pkg/constants"
	"execq/pkg/errs"
)

// Event is a lifecycle event applied to a task.
type Event string

const (
	EventStart    Event = "start"    // dispatch claimed by a worker
	EventComplete Event = "complete" // executor succeeded
	EventFail     Event = "fail"     // executor failed or validation failed on the worker
	EventTimeout  Event = "timeout"  // executor deadline expired
)

// Apply returns the status that results from applying ev to current, or
// errs.ErrInvalidTransition when the transition is not permitted. Transitions
// are monotonic: QUEUED -> RUNNING -> {COMPLETED|FAILED|TIMEOUT}.
func Apply(current constants.TaskStatus, ev Event) (constants.TaskStatus, error) {
	switch current {
	case constants.TaskStatusQueued:
		switch ev {
		case EventStart:
			return constants.TaskStatusRunning, nil
		case EventComplete, EventFail, EventTimeout:
			// A result can outrun the start acknowledgment; the terminal
			// transition wins.
			return terminalFor(ev), nil
		}
	case constants.TaskStatusRunning:
		switch ev {
		case EventComplete, EventFail, EventTimeout:
			return terminalFor(ev), nil
		case EventStart:
			return "", fmt.Errorf("%w: task already running", errs.ErrInvalidTransition)
		}
	case constants.TaskStatusCompleted, constants.TaskStatusFailed, constants.TaskStatusTimeout:
		return "", fmt.Errorf("%w: task is terminal (%s)", errs.ErrInvalidTransition, current)
	}
	return "", fmt.Errorf("%w: %s on %s", errs.ErrInvalidTransition, ev, current)
}

func terminalFor(ev Event) constants.TaskStatus {
	switch ev {
	case EventComplete:
		return constants.TaskStatusCompleted
	case EventTimeout:
		return constants.TaskStatusTimeout
	default:
		return constants.TaskStatusFailed
	}
}

// EventForResult maps a worker result-message outcome to a lifecycle event.
func EventForResult(status string, timedOut bool) (Event, error) {
	switch status {
	case constants.ResultStatusCompleted:
		return EventComplete, nil
	case constants.ResultStatusFailed:
		if timedOut {
			return EventTimeout, nil
		}
		return EventFail, nil
	}
	return "", fmt.Errorf("unknown result status: %s", status)
}
