package rpc

import (
	"context"
	"errors"
)

// ErrUnauthenticated is the distinguished authentication failure. Unlike
// guard failures it is an error, not a Result: the transport surfaces it as a
// protocol-level 401, never as a normal result payload.
var ErrUnauthenticated = errors.New("unauthenticated")

// Caller identifies the authenticated caller of a command.
type Caller struct {
	UID string
}

// Request is the immutable per-invocation context handed to every stage.
// Caller is nil when the request carries no verified identity.
type Request struct {
	Caller *Caller
	Data   Data
}

// HandlerFunc is a command's core logic, or a partially wrapped pipeline.
// It returns a Result for every expected outcome; an error return is reserved
// for ErrUnauthenticated and genuinely unexpected failures, which the
// transport converts to protocol-level errors.
type HandlerFunc func(ctx context.Context, req *Request) (*Result, error)

// Stage wraps a HandlerFunc with a guard. A stage either short-circuits with
// its own failure result or delegates to next and returns its result
// unchanged.
type Stage func(next HandlerFunc) HandlerFunc

// Chain composes stages around handler, outermost declared first:
// Chain(h, a, b) runs a, then b, then h.
func Chain(handler HandlerFunc, stages ...Stage) HandlerFunc {
	for i := len(stages) - 1; i >= 0; i-- {
		handler = stages[i](handler)
	}
	return handler
}
