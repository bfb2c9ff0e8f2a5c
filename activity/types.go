package activity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// PublicKey is the key block embedded in actor documents.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPEM string `json:"publicKeyPem"`
}

// Endpoints lists auxiliary actor endpoints.
type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// Actor is a Person, Group, Application or Service document.
type Actor struct {
	Context           any        `json:"@context,omitempty"`
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	PreferredUsername string     `json:"preferredUsername"`
	Name              string     `json:"name,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Inbox             string     `json:"inbox"`
	Outbox            string     `json:"outbox,omitempty"`
	Followers         string     `json:"followers,omitempty"`
	URL               string     `json:"url,omitempty"`
	Endpoints         *Endpoints `json:"endpoints,omitempty"`
	PublicKey         PublicKey  `json:"publicKey"`
}

// Tag is an entry of an object's tag list.
type Tag struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Href string `json:"href,omitempty"`
}

// Object is an Article or Note. AttributedTo and InReplyTo stay raw since
// remote servers use strings, objects and arrays interchangeably.
type Object struct {
	Context      any             `json:"@context,omitempty"`
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	AttributedTo json.RawMessage `json:"attributedTo,omitempty"`
	InReplyTo    json.RawMessage `json:"inReplyTo,omitempty"`
	Name         string          `json:"name,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Content      string          `json:"content,omitempty"`
	Sensitive    bool            `json:"sensitive,omitempty"`
	Published    *time.Time      `json:"published,omitempty"`
	Updated      *time.Time      `json:"updated,omitempty"`
	URL          string          `json:"url,omitempty"`
	To           []string        `json:"to,omitempty"`
	CC           []string        `json:"cc,omitempty"`
	Tag          []Tag           `json:"tag,omitempty"`
}

// ErrShape reports a document that decodes but lacks what a typed
// consumer needs.
type ErrShape struct {
	Want  string
	Field string
}

func (e *ErrShape) Error() string {
	return fmt.Sprintf("activity: not a valid %s: missing %s", e.Want, e.Field)
}

// DecodeActor decodes raw into an Actor and checks the fields every actor
// must carry.
func DecodeActor(raw []byte) (*Actor, error) {
	var a Actor
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}

	switch {
	case a.ID == "":
		return nil, &ErrShape{Want: "actor", Field: "id"}
	case a.Inbox == "":
		return nil, &ErrShape{Want: "actor", Field: "inbox"}
	case a.PublicKey.PublicKeyPEM == "":
		return nil, &ErrShape{Want: "actor", Field: "publicKey"}
	}

	return &a, nil
}

// DecodeObject decodes raw into an Object and checks its id.
func DecodeObject(raw []byte) (*Object, error) {
	var o Object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}

	if o.ID == "" {
		return nil, &ErrShape{Want: "object", Field: "id"}
	}

	return &o, nil
}

// AttributedToIDs flattens attributedTo into its ids.
func (o *Object) AttributedToIDs() []string {
	return refIDs(o.AttributedTo)
}

// InReplyToID returns the first id in inReplyTo.
func (o *Object) InReplyToID() string {
	ids := refIDs(o.InReplyTo)
	if len(ids) == 0 {
		return ""
	}

	return ids[0]
}

func refIDs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var out []string

	v := gjson.ParseBytes(raw)
	if v.IsArray() {
		for _, item := range v.Array() {
			if id, ok := RefID(item); ok {
				out = append(out, id)
			}
		}

		return out
	}

	if id, ok := RefID(v); ok {
		out = append(out, id)
	}

	return out
}
