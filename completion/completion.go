// Package completion talks to the remote generative model that answers chat
// turns. Callers only see Completer and the two failure categories.
package completion

import (
	"context"
	"errors"
	"fmt"
)

// Role is the author of a turn sent to the model
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one piece of conversation sent for completion
type Turn struct {
	Role Role
	Text string
}

// Completer returns generated reply text for the given turns. The last turn
// is the one being answered.
type Completer interface {
	Complete(ctx context.Context, turns []Turn) (string, error)
}

// TransportError is a network failure or a non-success HTTP status
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion transport: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError means the endpoint answered but the body did not
// have the expected completion shape
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed completion response: %s: %v", e.Reason, e.Err)
	}
	return "malformed completion response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a *TransportError
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

// IsMalformed reports whether err is, or wraps, a *MalformedResponseError
func IsMalformed(err error) bool {
	var m *MalformedResponseError
	return errors.As(err, &m)
}

var errNoTurns = errors.New("nothing to complete")
