package lifecycle

import (
	"testing"

	"execq/pkg/constants"
	"execq/pkg/errs"

	"github.com/stretchr/testify/assert"
)

func TestApply_QueuedToRunning(t *testing.T) {
	next, err := Apply(constants.TaskStatusQueued, EventStart)
	assert.NoError(t, err)
	assert.Equal(t, constants.TaskStatusRunning, next)
}

func TestApply_RunningToTerminal(t *testing.T) {
	cases := []struct {
		ev   Event
		want constants.TaskStatus
	}{
		{EventComplete, constants.TaskStatusCompleted},
		{EventFail, constants.TaskStatusFailed},
		{EventTimeout, constants.TaskStatusTimeout},
	}

	for _, tc := range cases {
		next, err := Apply(constants.TaskStatusRunning, tc.ev)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, next)
		assert.True(t, next.Terminal())
	}
}

func TestApply_ResultOutrunsStartAck(t *testing.T) {
	// A terminal result may arrive before the start acknowledgment was applied
	next, err := Apply(constants.TaskStatusQueued, EventComplete)
	assert.NoError(t, err)
	assert.Equal(t, constants.TaskStatusCompleted, next)
}

func TestApply_TerminalIsFinal(t *testing.T) {
	terminals := []constants.TaskStatus{
		constants.TaskStatusCompleted,
		constants.TaskStatusFailed,
		constants.TaskStatusTimeout,
	}
	events := []Event{EventStart, EventComplete, EventFail, EventTimeout}

	for _, st := range terminals {
		for _, ev := range events {
			_, err := Apply(st, ev)
			assert.ErrorIs(t, err, errs.ErrInvalidTransition, "event %s on %s", ev, st)
		}
	}
}

func TestApply_DoubleStartRejected(t *testing.T) {
	_, err := Apply(constants.TaskStatusRunning, EventStart)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestEventForResult(t *testing.T) {
	ev, err := EventForResult(constants.ResultStatusCompleted, false)
	assert.NoError(t, err)
	assert.Equal(t, EventComplete, ev)

	ev, err = EventForResult(constants.ResultStatusFailed, false)
	assert.NoError(t, err)
	assert.Equal(t, EventFail, ev)

	ev, err = EventForResult(constants.ResultStatusFailed, true)
	assert.NoError(t, err)
	assert.Equal(t, EventTimeout, ev)

	_, err = EventForResult("bogus", false)
	assert.Error(t, err)
}
