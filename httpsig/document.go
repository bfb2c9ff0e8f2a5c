package httpsig

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DocumentSignatureType is the type of embedded document signatures.
	DocumentSignatureType = "RsaSignature2017"

	identityContext = "https://w3id.org/identity/v1"
)

// SignDocument embeds a signature object under the "signature" key of doc.
// Any existing signature is replaced. When created is zero, time.Now() is
// used.
//
// The signed message is hex(sha256(options)) followed by
// hex(sha256(document)), where options is {"@context", "created"}.
func SignDocument(doc map[string]any, signer Signer, created time.Time) error {
	if signer == nil {
		return ErrNoSigner
	}

	if created.IsZero() {
		created = time.Now()
	}

	delete(doc, "signature")

	createdStr := created.UTC().Format(time.RFC3339)

	message, err := documentMessage(doc, createdStr)
	if err != nil {
		return err
	}

	sig, err := signer.Sign(message)
	if err != nil {
		return err
	}

	doc["signature"] = map[string]any{
		"type":           DocumentSignatureType,
		"creator":        signer.KeyID(),
		"created":        createdStr,
		"signatureValue": base64.StdEncoding.EncodeToString(sig),
	}

	return nil
}

// VerifyDocument checks the embedded signature of doc. The signature
// object is removed from doc before hashing, so doc is modified.
func VerifyDocument(doc map[string]any, verifier Verifier) error {
	raw, ok := doc["signature"]
	if !ok {
		return ErrSignatureNotFound
	}

	delete(doc, "signature")

	sigObj, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: signature is not an object", ErrMalformedHeader)
	}

	createdStr, ok := sigObj["created"].(string)
	if !ok {
		return fmt.Errorf("%w: missing created", ErrMalformedHeader)
	}

	created, err := time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return fmt.Errorf("%w: invalid created timestamp", ErrMalformedHeader)
	}

	if !withinSkew(created, time.Now()) {
		return ErrSignatureExpired
	}

	encoded, _ := sigObj["signatureValue"].(string)

	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ErrSignatureInvalid
	}

	message, err := documentMessage(doc, createdStr)
	if err != nil {
		return err
	}

	return verifier.Verify(message, sig)
}

// VerifyDocumentJSON decodes raw, preserving number formatting, and
// verifies its embedded signature.
func VerifyDocumentJSON(raw []byte, verifier Verifier) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	return VerifyDocument(doc, verifier)
}

func documentMessage(doc map[string]any, created string) ([]byte, error) {
	options, err := CanonicalJSON(map[string]any{
		"@context": identityContext,
		"created":  created,
	})
	if err != nil {
		return nil, err
	}

	body, err := CanonicalJSON(doc)
	if err != nil {
		return nil, err
	}

	return []byte(hashHex(options) + hashHex(body)), nil
}

// CanonicalJSON encodes v with sorted object keys and without HTML
// escaping, the serialization both sides hash.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func hashHex(data []byte) string {
	h := sha256.Sum256(data)

	return hex.EncodeToString(h[:])
}
