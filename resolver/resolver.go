// Package resolver turns an object id into a local record: from storage
// when known, from the payload embedded in an activity, or by
// dereferencing the id over HTTP.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrShape is wrapped by Kind.FromActivity when a document is valid
	// JSON but not the expected kind of object.
	ErrShape = errors.New("resolver: unexpected document shape")

	// ErrNotFound is wrapped by Kind.FindLocal when no record exists.
	ErrNotFound = errors.New("resolver: not found")

	// ErrIDMismatch means a document's own id is not the id it was
	// obtained for.
	ErrIDMismatch = errors.New("resolver: document id does not match")
)

// ErrorKind classifies a resolution failure.
type ErrorKind int

const (
	// DerefFailed means the id could not be fetched.
	DerefFailed ErrorKind = iota

	// InvalidDocument means a document was obtained but could not be
	// materialized.
	InvalidDocument
)

func (k ErrorKind) String() string {
	if k == DerefFailed {
		return "deref failed"
	}

	return "invalid document"
}

// Error is returned by Resolve. JSON holds whatever document was obtained,
// and is nil when none was.
type Error struct {
	Kind ErrorKind
	ID   string
	JSON []byte
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolver: %s: %s: %v", e.Kind, e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind knows how to find and materialize one type of record.
type Kind[T any] interface {
	// Name is used in logs and errors, e.g. "user" or "post".
	Name() string

	// FindLocal looks up a stored record by its id.
	FindLocal(ctx context.Context, id string) (T, error)

	// FromActivity materializes a record from a JSON document, storing it
	// if it is not stored yet. Calling it twice with the same document
	// must not create two records.
	FromActivity(ctx context.Context, doc []byte) (T, error)
}

// Fetcher dereferences an id into its JSON document.
type Fetcher interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

// Resolve returns the record for id. A stored record wins and is never
// refreshed. Otherwise inline, when it is a JSON object, is materialized;
// failing that, id is fetched. Any FindLocal error counts as "not stored".
// A document is only materialized when its own id equals id.
func Resolve[T any](ctx context.Context, kind Kind[T], fetcher Fetcher, id string, inline []byte) (T, error) {
	if v, err := kind.FindLocal(ctx, id); err == nil {
		return v, nil
	}

	if len(inline) > 0 && gjson.ParseBytes(inline).IsObject() {
		if err := sameID(inline, id); err != nil {
			var zero T
			return zero, &Error{Kind: InvalidDocument, ID: id, JSON: inline, Err: err}
		}

		v, err := kind.FromActivity(ctx, inline)
		if err != nil {
			var zero T
			return zero, &Error{Kind: InvalidDocument, ID: id, JSON: inline, Err: err}
		}

		return v, nil
	}

	return Refetch(ctx, kind, fetcher, id)
}

// Refetch dereferences id and materializes the result, skipping storage
// and inline payloads. It is used when a stored copy may be stale, such
// as after a key rotation.
func Refetch[T any](ctx context.Context, kind Kind[T], fetcher Fetcher, id string) (T, error) {
	var zero T

	if fetcher == nil {
		return zero, &Error{Kind: DerefFailed, ID: id, Err: errors.New("no fetcher")}
	}

	doc, err := fetcher.Fetch(ctx, id)
	if err != nil {
		return zero, &Error{Kind: DerefFailed, ID: id, Err: err}
	}

	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return zero, &Error{Kind: InvalidDocument, ID: id, Err: fmt.Errorf("%s is not a JSON object", kind.Name())}
	}

	if err := sameID(doc, id); err != nil {
		return zero, &Error{Kind: InvalidDocument, ID: id, JSON: doc, Err: err}
	}

	v, err := kind.FromActivity(ctx, doc)
	if err != nil {
		return zero, &Error{Kind: InvalidDocument, ID: id, JSON: doc, Err: err}
	}

	return v, nil
}

// sameID checks that doc describes id, so a server cannot hand out a
// document for an object it does not host.
func sameID(doc []byte, id string) error {
	if got := gjson.GetBytes(doc, "id"); got.Type != gjson.String || got.Str != id {
		return fmt.Errorf("%w: got %q, want %q", ErrIDMismatch, got.String(), id)
	}

	return nil
}
