package activity

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrNotObject is returned by Parse when the payload is not a JSON object.
var ErrNotObject = errors.New("activity: payload is not a JSON object")

// Envelope is an incoming activity document read lazily with gjson.
type Envelope struct {
	raw []byte
}

// Parse validates that raw is a JSON object and wraps it.
func Parse(raw []byte) (*Envelope, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, ErrNotObject
	}

	return &Envelope{raw: raw}, nil
}

// Raw returns the document bytes.
func (e *Envelope) Raw() []byte { return e.raw }

// Get reads an arbitrary gjson path.
func (e *Envelope) Get(path string) gjson.Result {
	return gjson.GetBytes(e.raw, path)
}

// ID returns the document id when it is a string.
func (e *Envelope) ID() (string, bool) {
	id := e.Get("id")
	if id.Type != gjson.String {
		return "", false
	}

	return id.Str, true
}

// Type returns the document type, or "" when absent or not a string.
// When type is an array, the first string entry is returned.
func (e *Envelope) Type() string {
	return typeOf(e.Get("type"))
}

// ActorID returns the id of the actor reference.
func (e *Envelope) ActorID() (string, bool) {
	return RefID(e.Get("actor"))
}

// ActorInline returns the embedded actor object, or nil when actor is a
// bare reference.
func (e *Envelope) ActorInline() []byte {
	return inline(e.Get("actor"))
}

// ObjectID returns the id of the object reference.
func (e *Envelope) ObjectID() (string, bool) {
	return RefID(e.Get("object"))
}

// ObjectInline returns the embedded object, or nil when object is a bare
// reference.
func (e *Envelope) ObjectInline() []byte {
	return inline(e.Get("object"))
}

// ObjectType returns the type of the embedded object, or "".
func (e *Envelope) ObjectType() string {
	return typeOf(e.Get("object.type"))
}

// AttributedTo returns the attributedTo field of the embedded object.
// The result does not exist when object is a bare reference.
func (e *Envelope) AttributedTo() gjson.Result {
	obj := e.Get("object")
	if !obj.IsObject() {
		return gjson.Result{}
	}

	return obj.Get("attributedTo")
}

// Recipients returns every id addressed in to, cc, bto and bcc, in that
// order, keeping duplicates out.
func (e *Envelope) Recipients() []string {
	return Audience(gjson.ParseBytes(e.raw))
}

// Audience collects the ids addressed by a document's to, cc, bto and bcc
// fields. Each may be a string, an object with an id, or an array of
// either.
func Audience(doc gjson.Result) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(v gjson.Result) {
		if id, ok := RefID(v); ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}

	for _, field := range []string{"to", "cc", "bto", "bcc"} {
		v := doc.Get(field)
		if v.IsArray() {
			for _, item := range v.Array() {
				add(item)
			}

			continue
		}

		add(v)
	}

	return out
}

// RefID returns the id of a reference that is either a URI string or an
// object with a string id.
func RefID(v gjson.Result) (string, bool) {
	switch {
	case v.Type == gjson.String:
		return v.Str, v.Str != ""

	case v.IsObject():
		id := v.Get("id")
		if id.Type == gjson.String && id.Str != "" {
			return id.Str, true
		}
	}

	return "", false
}

func inline(v gjson.Result) []byte {
	if !v.IsObject() {
		return nil
	}

	return []byte(v.Raw)
}

func typeOf(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}

	if v.IsArray() {
		for _, item := range v.Array() {
			if item.Type == gjson.String {
				return item.Str
			}
		}
	}

	return ""
}
