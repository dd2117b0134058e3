package session

import "errors"

// State is the combined chat session state.
type State int32

const (
	StateUninitialized State = iota // no token
	StateLoading                    // history or first file listing still in flight
	StateEmpty                      // loaded, knowledge base has no documents
	StateIdle                       // loaded, documents present, waiting for input
	StateSending                    // one submission in flight
	StateErrored                    // transient: the last send failed, apology appended
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ApologyText is appended as the assistant reply when a send fails.
const ApologyText = "Sorry, something went wrong while answering your question. Please try again."

var (
	// ErrNotAccepted is returned when the gating rule rejects a submission.
	ErrNotAccepted = errors.New("submission not accepted")

	// ErrClosed is returned once the session has been torn down.
	ErrClosed = errors.New("session closed")

	// ErrUnknownTicket is returned when Complete is called with a ticket
	// that is not the one in flight.
	ErrUnknownTicket = errors.New("unknown submission ticket")
)

// TransitionHook observes every state change, including the transient
// StateErrored. It is called outside the controller lock.
type TransitionHook func(from, to State)

type transition struct{ from, to State }
