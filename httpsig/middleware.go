package httpsig

import (
	"context"
	"net/http"
)

// KeyResolver returns a Verifier for the key ID named in a Signature
// header. The request is provided for context (e.g., to scope lookups).
type KeyResolver func(r *http.Request, keyID string) (Verifier, error)

// MiddlewareConfig configures the server-side signature verification
// middleware.
type MiddlewareConfig struct {
	// Resolver looks up a Verifier for a given key ID. Required.
	Resolver KeyResolver

	// Accept decides whether a request with the given validity may reach
	// the next handler. When nil, Valid and ValidNoDigest are accepted.
	Accept func(Validity) bool

	// OnError is called when a request is rejected. When nil, a plain 401
	// Unauthorized response is sent.
	OnError func(w http.ResponseWriter, r *http.Request, v Validity)
}

type validityKey struct{}

// ValidityFromContext returns the validity stored by Middleware, or
// Absent when the request did not pass through it.
func ValidityFromContext(ctx context.Context) Validity {
	if v, ok := ctx.Value(validityKey{}).(Validity); ok {
		return v
	}

	return Absent
}

// Middleware returns a middleware that verifies HTTP signatures on
// incoming requests and records the outcome in the request context.
//
// It returns ErrNoResolver if Resolver is nil.
func Middleware(cfg MiddlewareConfig) (func(http.Handler) http.Handler, error) {
	if cfg.Resolver == nil {
		return nil, ErrNoResolver
	}

	accept := cfg.Accept
	if accept == nil {
		accept = defaultAccept
	}

	onError := cfg.OnError
	if onError == nil {
		onError = defaultOnError
	}

	resolver := cfg.Resolver

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := verifyWith(r, resolver)
			if !accept(v) {
				onError(w, r, v)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), validityKey{}, v)))
		})
	}, nil
}

func verifyWith(r *http.Request, resolver KeyResolver) Validity {
	header := r.Header.Get("Signature")
	if header == "" {
		return Absent
	}

	sh, err := ParseSignatureHeader(header)
	if err != nil {
		return Absent
	}

	verifier, err := resolver(r, sh.KeyID)
	if err != nil {
		return Invalid
	}

	return VerifyRequest(r, verifier)
}

func defaultAccept(v Validity) bool {
	return v == Valid || v == ValidNoDigest
}

// defaultOnError writes a 401 Unauthorized response with no body.
func defaultOnError(w http.ResponseWriter, _ *http.Request, _ Validity) {
	w.WriteHeader(http.StatusUnauthorized)
}
