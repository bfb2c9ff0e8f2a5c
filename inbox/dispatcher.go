// Package inbox routes incoming activities to the first handler that can
// take them.
//
// Handlers are tried in registration order. A handler whose verb does not
// match, or that cannot resolve the activity's actor or object, leaves the
// activity unhandled and the next one is tried; the last such error is
// what Dispatch reports when nothing matches. Once a handler's domain
// function runs, its outcome is final whether it succeeded or failed.
package inbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/metrics"
)

// Status is the state of a dispatch.
type Status int

const (
	NotHandled Status = iota
	Failed
	Handled
)

func (s Status) String() string {
	switch s {
	case Failed:
		return "failed"
	case Handled:
		return "handled"
	default:
		return "not_handled"
	}
}

// Outcome is what a handler made of an activity.
type Outcome[R any] struct {
	Status Status
	Result R
	Err    error
}

// Handler takes activities of one verb.
type Handler[R any] interface {
	// Name identifies the handler in logs.
	Name() string

	// Verb is the activity type handled, e.g. "Create".
	Verb() string

	// Handle resolves the activity's actor and object and runs the domain
	// function.
	Handle(ctx context.Context, env *activity.Envelope) Outcome[R]
}

// Dispatcher is an ordered list of handlers.
type Dispatcher[R any] struct {
	handlers []Handler[R]
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

// New returns an empty Dispatcher. Both arguments may be nil.
func New[R any](logger *zap.Logger, rec *metrics.Recorder) *Dispatcher[R] {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher[R]{logger: logger, metrics: rec}
}

// With appends h and returns d for chaining.
func (d *Dispatcher[R]) With(h Handler[R]) *Dispatcher[R] {
	d.handlers = append(d.handlers, h)

	return d
}

// Handlers returns the registered handlers in order.
func (d *Dispatcher[R]) Handlers() []Handler[R] {
	return d.handlers
}

// Dispatch offers env to each handler in turn.
func (d *Dispatcher[R]) Dispatch(ctx context.Context, env *activity.Envelope) (R, error) {
	state := Outcome[R]{Status: NotHandled, Err: ErrNoMatch}
	verb := env.Type()
	matched := ""

	for _, h := range d.handlers {
		if state.Status != NotHandled {
			break
		}

		if h.Verb() != verb {
			continue
		}

		out := h.Handle(ctx, env)
		if out.Status == NotHandled && out.Err == nil {
			out.Err = ErrNoMatch
		}

		d.logger.Debug("inbox handler tried",
			zap.String("handler", h.Name()),
			zap.Stringer("status", out.Status),
			zap.Error(out.Err),
		)

		matched = h.Name()
		state = out
	}

	d.record(state, verb, matched)

	var zero R

	switch state.Status {
	case Handled:
		return state.Result, nil
	default:
		return zero, state.Err
	}
}

func (d *Dispatcher[R]) record(state Outcome[R], verb, handler string) {
	label := "handled"

	switch state.Status {
	case Failed:
		label = "failed"
	case NotHandled:
		label = ErrNoMatch.Kind.String()
		if e, ok := state.Err.(*Error); ok {
			label = e.Kind.String()
		}
	}

	d.metrics.Inbox(label)
	d.logger.Debug("inbox dispatch",
		zap.String("verb", verb),
		zap.String("handler", handler),
		zap.String("result", label),
	)
}
