package activity

import (
	"net/url"
	"strings"
)

// ID is the URI identifying an object. Equality is exact string equality;
// no normalization is applied.
type ID string

func (id ID) String() string { return string(id) }

// Host returns the lowercased host of the URI, or "" when it has none.
func (id ID) Host() string {
	u, err := url.Parse(string(id))
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Hostname())
}

// WithoutFragment strips "#..." from the URI, turning a key id such as
// "https://a.example/@/bob#main-key" into the owning actor's id.
func (id ID) WithoutFragment() ID {
	s, _, _ := strings.Cut(string(id), "#")

	return ID(s)
}
