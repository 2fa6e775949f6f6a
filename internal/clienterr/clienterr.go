package clienterr

import (
	"errors"
	"fmt"
)

// Kind represents different categories of errors that can occur in the sync
// core. Each kind has its own recovery policy.
type Kind string

const (
	// KindTransport covers socket-level faults: connect timeout, abnormal
	// close, dial failure. Recovered locally via the reconnect policy.
	KindTransport Kind = "transport"
	// KindProtocol covers frames that violate the wire contract: malformed
	// JSON, unknown type tags, server-sent error events. Logged and
	// dropped; never affects connection state.
	KindProtocol Kind = "protocol"
	// KindReconciliation marks duplicate or unmatched messages. Logged and
	// dropped, never shown to the user.
	KindReconciliation Kind = "reconciliation"
	// KindCollaborator is a REST call failure. Surfaced per-call; already
	// applied optimistic state is not rolled back.
	KindCollaborator Kind = "collaborator"
)

// Error pairs an underlying error with its taxonomy kind and the operation
// that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or an empty Kind for untagged errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
