package httpsig

// Algorithm identifies the signature algorithm announced in the
// algorithm parameter of the Signature header.
type Algorithm string

const (
	// AlgorithmRSASHA256 is RSASSA-PKCS1-v1_5 using SHA-256.
	AlgorithmRSASHA256 Algorithm = "rsa-sha256"

	// AlgorithmHS2019 is the algorithm-agnostic identifier from later
	// draft-cavage revisions. The actual algorithm is taken from the key.
	AlgorithmHS2019 Algorithm = "hs2019"
)

// String returns the algorithm identifier as sent on the wire.
func (a Algorithm) String() string {
	return string(a)
}

// Signer produces detached signatures on behalf of a federated actor.
type Signer interface {
	// Sign produces a signature over the given message bytes.
	Sign(message []byte) ([]byte, error)

	// Algorithm returns the algorithm identifier for this signer.
	Algorithm() Algorithm

	// KeyID returns the key identifier, usually "<actor-uri>#main-key".
	KeyID() string
}

// Verifier checks detached signatures against an actor's public key.
type Verifier interface {
	// Verify checks that signature is valid for the given message bytes.
	// Returns nil on success, non-nil on failure.
	Verify(message, signature []byte) error

	// KeyID returns the key identifier for this verifier.
	KeyID() string
}
