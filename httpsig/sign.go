package httpsig

import (
	"net/http"
	"slices"
	"time"
)

// defaultHeaders are the headers signed, when present, if
// SignConfig.Headers is empty. Host is always present.
var defaultHeaders = []string{"user-agent", "date", "accept", "content-type", "host", "digest"}

// SignConfig configures HTTP request signing.
type SignConfig struct {
	// Signer produces signatures. Required.
	Signer Signer

	// Headers lists the header names to sign, in order. The
	// (request-target) pseudo-header is always appended last. Defaults to
	// the headers in defaultHeaders that are set on the request.
	Headers []string

	// Date sets the Date header when the request has none. When zero,
	// time.Now() is used.
	Date time.Time

	// Digest, when true, causes SignRequest to compute and set the
	// Digest header before signing. "digest" is added to the signed
	// headers if not already present.
	Digest bool
}

// SignRequest signs an HTTP request in-place by adding a Signature header.
func SignRequest(r *http.Request, cfg SignConfig) error {
	if cfg.Signer == nil {
		return ErrNoSigner
	}

	if r.Header.Get("Date") == "" {
		date := cfg.Date
		if date.IsZero() {
			date = time.Now()
		}

		r.Header.Set("Date", date.UTC().Format(http.TimeFormat))
	}

	if cfg.Digest {
		if err := SetDigest(r); err != nil {
			return err
		}
	}

	headers := slices.Clone(cfg.Headers)
	if len(headers) == 0 {
		for _, name := range defaultHeaders {
			if name == "host" || r.Header.Get(name) != "" {
				headers = append(headers, name)
			}
		}
	} else if cfg.Digest && !slices.Contains(headers, "digest") {
		headers = append(headers, "digest")
	}

	headers = slices.DeleteFunc(headers, func(h string) bool { return h == HeaderRequestTarget })
	headers = append(headers, HeaderRequestTarget)

	sig, err := cfg.Signer.Sign([]byte(signingString(r, headers)))
	if err != nil {
		return err
	}

	alg := cfg.Signer.Algorithm()
	if alg == "" {
		alg = AlgorithmRSASHA256
	}

	r.Header.Set("Signature", SignatureHeader{
		KeyID:     cfg.Signer.KeyID(),
		Algorithm: alg,
		Headers:   headers,
		Signature: sig,
	}.String())

	return nil
}
