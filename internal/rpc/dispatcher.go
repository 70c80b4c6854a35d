package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/remap-keys/remap-backend/internal/telemetry"
)

// ErrUnknownCommand is returned by Invoke for unregistered command names.
var ErrUnknownCommand = errors.New("unknown command")

// Dispatcher maps command names to composed handler pipelines. Registration
// happens once at startup; Invoke is safe for concurrent use afterwards.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register composes handler with the given guard stages (outermost first)
// and binds the pipeline to name. Registering a duplicate name panics: it is
// a wiring bug, not a runtime condition.
func (d *Dispatcher) Register(name string, handler HandlerFunc, stages ...Stage) {
	if _, exists := d.handlers[name]; exists {
		panic(fmt.Sprintf("rpc: command %q registered twice", name))
	}
	d.handlers[name] = Chain(handler, stages...)
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named command pipeline. caller is nil for unauthenticated
// requests; the authentication guard, if registered for the command, turns
// that into ErrUnauthenticated.
func (d *Dispatcher) Invoke(ctx context.Context, name string, caller *Caller, data Data) (*Result, error) {
	handler, ok := d.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	result, err := handler(ctx, &Request{Caller: caller, Data: data})
	switch {
	case errors.Is(err, ErrUnauthenticated):
		telemetry.CommandInvocationsTotal.WithLabelValues(name, "unauthenticated").Inc()
	case err != nil || !result.Success:
		telemetry.CommandInvocationsTotal.WithLabelValues(name, "failure").Inc()
	default:
		telemetry.CommandInvocationsTotal.WithLabelValues(name, "success").Inc()
	}
	return result, err
}
