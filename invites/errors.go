package invites

import "github.com/pkg/errors"

// Expected lifecycle failures are typed so the transport layer can map them
// to specific status codes and reason strings. Anything else that escapes the
// engine is an internal error.

// ErrNotFound means the referenced invite id does not exist.
var ErrNotFound = errors.New("invite not found")

// ConflictError marks an action attempted against a terminal state.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// GuardrailError marks a business-rule precondition that blocked the action:
// reminder cap reached, malformed input, invalid or expired credential,
// duplicate account.
type GuardrailError struct {
	Reason string
}

func (e *GuardrailError) Error() string { return e.Reason }

// AsConflict extracts a ConflictError if err carries one.
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// AsGuardrail extracts a GuardrailError if err carries one.
func AsGuardrail(err error) (*GuardrailError, bool) {
	var guardrail *GuardrailError
	if errors.As(err, &guardrail) {
		return guardrail, true
	}
	return nil, false
}
