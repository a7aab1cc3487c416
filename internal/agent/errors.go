package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProvider is returned when a loop is constructed without a model provider.
	ErrNoProvider = errors.New("no LLM provider configured")

	// ErrRunFinished is returned when Step is called on a loop that already
	// reached Done or Error.
	ErrRunFinished = errors.New("agent run already finished")
)

// errorReply is the user-facing text synthesized when a run ends in Error.
const errorReply = "Sorry, something went wrong while handling your message. Please try again."

// LoopError wraps a failure inside the run loop with the state and step at
// which it occurred.
type LoopError struct {
	State State
	Step  int
	Cause error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent loop failed in state %s at step %d: %v", e.State, e.Step, e.Cause)
}

func (e *LoopError) Unwrap() error {
	return e.Cause
}
