package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Minimum RSA key size in bits.
const minRSAKeyBits = 2048

// Keypair is an actor's RSA keypair. It signs with RSASSA-PKCS1-v1_5 over
// SHA-256 and verifies with the public half.
type Keypair struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewKeypair wraps an RSA private key.
func NewKeypair(keyID string, key *rsa.PrivateKey) (*Keypair, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: rsa private key must not be nil", ErrInvalidKey)
	}

	if key.N.BitLen() < minRSAKeyBits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrInvalidKey, minRSAKeyBits)
	}

	return &Keypair{key: key, keyID: keyID}, nil
}

// GenerateKeypair creates a fresh RSA keypair of the given size.
func GenerateKeypair(keyID string, bits int) (*Keypair, error) {
	if bits < minRSAKeyBits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrInvalidKey, minRSAKeyBits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}

	return &Keypair{key: key, keyID: keyID}, nil
}

// NewKeypairFromPEM parses a PEM encoded private key (PKCS#8 or PKCS#1).
func NewKeypairFromPEM(keyID, privatePEM string) (*Keypair, error) {
	key, err := ParsePrivateKeyPEM(privatePEM)
	if err != nil {
		return nil, err
	}

	return NewKeypair(keyID, key)
}

func (k *Keypair) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)

	return rsa.SignPKCS1v15(rand.Reader, k.key, crypto.SHA256, digest[:])
}

func (k *Keypair) Verify(message, signature []byte) error {
	return verifyRSA(&k.key.PublicKey, message, signature)
}

func (k *Keypair) Algorithm() Algorithm { return AlgorithmRSASHA256 }
func (k *Keypair) KeyID() string        { return k.keyID }

// PublicKey returns the public half of the keypair.
func (k *Keypair) PublicKey() *rsa.PublicKey { return &k.key.PublicKey }

// PublicKeyPEM returns the public key as a "PUBLIC KEY" PEM block, the form
// published in actor documents.
func (k *Keypair) PublicKeyPEM() (string, error) {
	return EncodePublicKeyPEM(&k.key.PublicKey)
}

// PrivateKeyPEM returns the private key as a PKCS#8 "PRIVATE KEY" PEM block.
func (k *Keypair) PrivateKeyPEM() (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.key)
	if err != nil {
		return "", err
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

type rsaVerifier struct {
	key   *rsa.PublicKey
	keyID string
}

// NewVerifier creates a Verifier for an RSA public key.
func NewVerifier(keyID string, key *rsa.PublicKey) (Verifier, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: rsa public key must not be nil", ErrInvalidKey)
	}

	if key.N.BitLen() < minRSAKeyBits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrInvalidKey, minRSAKeyBits)
	}

	return &rsaVerifier{key: key, keyID: keyID}, nil
}

// NewVerifierFromPEM parses a PEM encoded public key (PKIX or PKCS#1).
func NewVerifierFromPEM(keyID, publicPEM string) (Verifier, error) {
	key, err := ParsePublicKeyPEM(publicPEM)
	if err != nil {
		return nil, err
	}

	return NewVerifier(keyID, key)
}

func (v *rsaVerifier) Verify(message, signature []byte) error {
	return verifyRSA(v.key, message, signature)
}

func (v *rsaVerifier) KeyID() string { return v.keyID }

func verifyRSA(key *rsa.PublicKey, message, signature []byte) error {
	digest := sha256.Sum256(message)

	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
		return ErrSignatureInvalid
	}

	return nil
}

// ParsePrivateKeyPEM decodes a "PRIVATE KEY" (PKCS#8) or "RSA PRIVATE KEY"
// (PKCS#1) PEM block.
func ParsePrivateKeyPEM(data string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}

		return key, nil

	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}

		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is %T, want RSA", ErrInvalidKey, parsed)
		}

		return key, nil

	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
}

// ParsePublicKeyPEM decodes a "PUBLIC KEY" (PKIX) or "RSA PUBLIC KEY"
// (PKCS#1) PEM block.
func ParsePublicKeyPEM(data string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}

		return key, nil

	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}

		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: public key is %T, want RSA", ErrInvalidKey, parsed)
		}

		return key, nil

	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
}

// EncodePublicKeyPEM encodes key as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKeyPEM(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
