package inbox

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/resolver"
)

// Func is the domain side effect of a route. activityID is the id of the
// incoming activity.
type Func[A, O, R any] func(ctx context.Context, actor A, object O, activityID string) (R, error)

// Route handles one (actor kind, verb, object kind) combination.
type Route[A, O, R any] struct {
	verb    string
	actors  resolver.Kind[A]
	objects resolver.Kind[O]
	fetcher resolver.Fetcher
	fn      Func[A, O, R]
}

// NewRoute builds a Route. fetcher dereferences actors and objects that
// are neither stored nor embedded.
func NewRoute[A, O, R any](verb string, actors resolver.Kind[A], objects resolver.Kind[O], fetcher resolver.Fetcher, fn Func[A, O, R]) *Route[A, O, R] {
	return &Route[A, O, R]{
		verb:    verb,
		actors:  actors,
		objects: objects,
		fetcher: fetcher,
		fn:      fn,
	}
}

func (r *Route[A, O, R]) Name() string {
	return fmt.Sprintf("%s/%s/%s", r.actors.Name(), r.verb, r.objects.Name())
}

func (r *Route[A, O, R]) Verb() string { return r.verb }

func (r *Route[A, O, R]) Handle(ctx context.Context, env *activity.Envelope) Outcome[R] {
	notHandled := func(err *Error) Outcome[R] {
		return Outcome[R]{Status: NotHandled, Err: err}
	}

	id, ok := env.ID()
	if !ok {
		return notHandled(&Error{Kind: InvalidID})
	}

	actorID, ok := env.ActorID()
	if !ok {
		return notHandled(&Error{Kind: InvalidActor})
	}

	if !Authored(env.AttributedTo(), actorID) {
		return notHandled(&Error{Kind: InvalidObject, Err: fmt.Errorf("object is not attributed to %s", actorID)})
	}

	actor, err := resolver.Resolve(ctx, r.actors, r.fetcher, actorID, env.ActorInline())
	if err != nil {
		return notHandled(fromResolve(InvalidActor, err))
	}

	objectID, ok := env.ObjectID()
	if !ok {
		return notHandled(&Error{Kind: InvalidObject})
	}

	object, err := resolver.Resolve(ctx, r.objects, r.fetcher, objectID, env.ObjectInline())
	if err != nil {
		return notHandled(fromResolve(InvalidObject, err))
	}

	res, err := r.fn(ctx, actor, object, id)
	if err != nil {
		return Outcome[R]{Status: Failed, Err: err}
	}

	return Outcome[R]{Status: Handled, Result: res}
}

// Authored reports whether an embedded object's attributedTo value names
// actorID. A missing or null attributedTo passes. Otherwise a string must
// equal actorID, an object must carry it as its id, and an array must
// contain at least one such entry; anything else fails.
func Authored(attributedTo gjson.Result, actorID string) bool {
	if !attributedTo.Exists() || attributedTo.Type == gjson.Null {
		return true
	}

	if attributedTo.IsArray() {
		for _, entry := range attributedTo.Array() {
			if id, ok := activity.RefID(entry); ok && id == actorID {
				return true
			}
		}

		return false
	}

	id, ok := activity.RefID(attributedTo)

	return ok && id == actorID
}
