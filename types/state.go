package types

import (
	"fmt"
	"time"
)

// MessageState represents the lifecycle state of an ExecutionMessage.
type MessageState string

const (
	// StateReady is the initial state of a message not yet submitted to a runner.
	StateReady MessageState = "READY"
	// StateRunning indicates the message is being driven through a graph.
	StateRunning MessageState = "RUNNING"
	// StateWaiting indicates the run is paused for external human input.
	StateWaiting MessageState = "WAITING"
	// StateCompleted indicates the run reached the exit node. Terminal.
	StateCompleted MessageState = "COMPLETED"
	// StateFailed indicates the run aborted with an error. Terminal.
	StateFailed MessageState = "FAILED"
)

// IsTerminal reports whether the state admits no further transitions.
func (s MessageState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// legalTransitions is the single authority for state machine legality.
// Transition consults it so the invariant is enforced centrally rather than
// per node.
var legalTransitions = map[MessageState][]MessageState{
	StateReady:   {StateRunning},
	StateRunning: {StateWaiting, StateCompleted, StateFailed},
	StateWaiting: {StateRunning},
}

// CanTransition reports whether from -> to is a legal state transition.
func CanTransition(from, to MessageState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateTransition records one applied state change in a message's history.
type StateTransition struct {
	From      MessageState `json:"from"`
	To        MessageState `json:"to"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Transition returns a copy of the message moved to the target state, with
// the transition appended to its history. Illegal transitions return the
// message unchanged together with an INVALID_STATE_TRANSITION error.
func (m ExecutionMessage) Transition(to MessageState, reason string) (ExecutionMessage, error) {
	if !CanTransition(m.State, to) {
		return m, NewError(ErrInvalidStateTransition,
			fmt.Sprintf("cannot transition from %s to %s", m.State, to))
	}

	history := make([]StateTransition, len(m.History), len(m.History)+1)
	copy(history, m.History)
	m.History = append(history, StateTransition{
		From:      m.State,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	m.State = to
	return m, nil
}
