package httpsig

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DigestSHA256 is the only algorithm tag produced and accepted in Digest
// headers.
const DigestSHA256 = "SHA-256"

// Digest is a parsed Digest header value of the form "<ALG>=<base64>".
type Digest struct {
	Algorithm string
	Value     []byte
}

// ComputeDigest hashes body with SHA-256.
func ComputeDigest(body []byte) Digest {
	h := sha256.Sum256(body)

	return Digest{Algorithm: DigestSHA256, Value: h[:]}
}

// ParseDigest parses a Digest header value. Only the first "=" separates
// the algorithm from the value, the base64 payload may itself end in "=".
func ParseDigest(header string) (Digest, error) {
	alg, encoded, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok || alg == "" {
		return Digest{}, fmt.Errorf("%w: digest has no algorithm", ErrMalformedHeader)
	}

	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: invalid base64 in digest", ErrMalformedHeader)
	}

	return Digest{Algorithm: alg, Value: value}, nil
}

// String returns the header form of the digest.
func (d Digest) String() string {
	return d.Algorithm + "=" + base64.StdEncoding.EncodeToString(d.Value)
}

// Verify reports whether the digest matches body. Digests with an algorithm
// other than SHA-256 never match.
func (d Digest) Verify(body []byte) bool {
	if !strings.EqualFold(d.Algorithm, DigestSHA256) {
		return false
	}

	expected := sha256.Sum256(body)

	return bytes.Equal(expected[:], d.Value)
}

// SetDigest reads the request body, sets the Digest header and replaces
// the body so it can be read again.
func SetDigest(r *http.Request) error {
	body, err := readAndRestoreBody(r)
	if err != nil {
		return err
	}

	r.Header.Set("Digest", ComputeDigest(body).String())

	return nil
}

// VerifyDigest checks the Digest header of r against its body.
func VerifyDigest(r *http.Request) error {
	header := r.Header.Get("Digest")
	if header == "" {
		return ErrDigestNotFound
	}

	digest, err := ParseDigest(header)
	if err != nil {
		return err
	}

	if !strings.EqualFold(digest.Algorithm, DigestSHA256) {
		return fmt.Errorf("%w: %s", ErrUnsupportedDigest, digest.Algorithm)
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return err
	}

	if !digest.Verify(body) {
		return ErrDigestMismatch
	}

	return nil
}

// readAndRestoreBody reads the entire request body and replaces it with a
// new reader so the body can be consumed again by downstream handlers.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	return body, nil
}
