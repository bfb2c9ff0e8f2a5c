package httpsig

import "net/http"

// Transport is an http.RoundTripper that fills in default headers and
// signs every outgoing request.
type Transport struct {
	base   http.RoundTripper
	config SignConfig
	header http.Header
}

// NewTransport creates a signing Transport that delegates to base. When
// base is nil, a clone of http.DefaultTransport is used, giving an
// independent connection pool with default proxy, TLS, and timeout
// settings.
//
// Headers in defaults are set on each request that does not already carry
// them, before signing, so they are covered by the signature. A typical
// set is User-Agent and Accept.
func NewTransport(base *http.Transport, cfg SignConfig, defaults http.Header) *Transport {
	var rt http.RoundTripper
	if base != nil {
		rt = base
	} else {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Transport{
		base:   rt,
		config: cfg,
		header: defaults.Clone(),
	}
}

// RoundTrip signs a clone of req and delegates to the base transport.
// When GetBody is available, the clone receives its own body copy so
// that digest computation does not consume the caller's body.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if clone.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}

		clone.Body = body
	}

	for name, values := range t.header {
		if clone.Header.Get(name) == "" && len(values) > 0 {
			clone.Header.Set(name, values[0])
		}
	}

	if err := SignRequest(clone, t.config); err != nil {
		return nil, err
	}

	return t.base.RoundTrip(clone)
}
