package httpsig

import (
	"errors"
	"net/http"
	"time"
)

// MaxClockSkew is the largest accepted distance between a signature's
// creation time and the verifier's clock, in either direction.
const MaxClockSkew = 12 * time.Hour

// Validity is the outcome of verifying a request signature.
type Validity int

const (
	// Invalid means the signature or the attested digest did not verify.
	Invalid Validity = iota

	// ValidNoDigest means the signature verified but does not cover
	// the Digest header, so the body is not attested.
	ValidNoDigest

	// Valid means the signature, digest and date all check out.
	Valid

	// Absent means the request carries no usable Signature header.
	Absent

	// Outdated means the signature verified but the Date header is
	// missing, unparsable or outside MaxClockSkew.
	Outdated
)

// String returns a lowercase name for the validity.
func (v Validity) String() string {
	switch v {
	case Invalid:
		return "invalid"
	case ValidNoDigest:
		return "valid_no_digest"
	case Valid:
		return "valid"
	case Absent:
		return "absent"
	case Outdated:
		return "outdated"
	default:
		return "unknown"
	}
}

// IsSecure reports whether a side effect depending on the request's
// authenticity may proceed. Only Valid is secure.
func (v Validity) IsSecure() bool {
	return v == Valid
}

// VerifyRequest verifies the Signature header of r against verifier.
//
// The canonical string is rebuilt from the received header values; a
// header listed as signed but not present is taken as empty (see the
// package documentation). The body is read and restored for the digest
// comparison.
func VerifyRequest(r *http.Request, verifier Verifier) Validity {
	header := r.Header.Get("Signature")
	if header == "" {
		return Absent
	}

	sh, err := ParseSignatureHeader(header)
	if err != nil {
		if errors.Is(err, ErrSignatureNotFound) {
			return Absent
		}

		return Invalid
	}

	if err := verifier.Verify([]byte(signingString(r, sh.Headers)), sh.Signature); err != nil {
		return Invalid
	}

	if !sh.Covers("digest") {
		return ValidNoDigest
	}

	digest, err := ParseDigest(r.Header.Get("Digest"))
	if err != nil {
		return Invalid
	}

	body, err := readAndRestoreBody(r)
	if err != nil || !digest.Verify(body) {
		return Invalid
	}

	if !sh.Covers("date") {
		return Valid
	}

	date, err := http.ParseTime(r.Header.Get("Date"))
	if err != nil || !withinSkew(date, time.Now()) {
		return Outdated
	}

	return Valid
}

// withinSkew reports whether t lies strictly within MaxClockSkew of now.
func withinSkew(t, now time.Time) bool {
	diff := now.Sub(t)

	return diff < MaxClockSkew && diff > -MaxClockSkew
}
