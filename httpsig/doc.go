// Package httpsig implements the request and document signatures used
// between federated instances: draft-cavage HTTP Signatures with
// rsa-sha256, the SHA-256 Digest header, and RsaSignature2017 linked-data
// signatures embedded in activity documents.
//
// # Keys
//
// Every federated actor owns an RSA keypair. A Keypair implements both
// Signer and Verifier; a Verifier alone can be built from a remote actor's
// PEM encoded public key:
//
//	kp, err := httpsig.GenerateKeypair("https://example.com/@/alice#main-key", 2048)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	verifier, err := httpsig.NewVerifierFromPEM(keyID, actor.PublicKey.PublicKeyPem)
//
// # Signing Requests
//
// SignRequest covers the listed headers, in order, followed by the
// synthetic (request-target) pseudo-header:
//
//	err := httpsig.SignRequest(req, httpsig.SignConfig{
//	    Signer: kp,
//	    Digest: true,
//	})
//
// The resulting header looks like:
//
//	Signature: keyId="https://example.com/@/alice#main-key",algorithm="rsa-sha256",
//	           headers="user-agent date accept content-type host digest (request-target)",
//	           signature="..."
//
// # Verifying Requests
//
// VerifyRequest reports a Validity instead of an error, because callers
// decide what to do with a signature that is valid but does not attest the
// body (ValidNoDigest) or is too old (Outdated). Only Valid is secure:
//
//	if !httpsig.VerifyRequest(r, verifier).IsSecure() {
//	    http.Error(w, "Invalid signature", http.StatusUnauthorized)
//	}
//
// Header values are looked up by name from the received request and a
// header that was claimed as signed but is missing contributes an empty
// value to the signing string. The string stays deterministic, so a
// signature made over an empty value still verifies. This leniency is kept
// for compatibility with existing peers and weakens the scheme: a signer
// can claim a header it never sent.
//
// # Document Signatures
//
// SignDocument embeds a signature object in a JSON document and
// VerifyDocument checks it, rejecting signatures created more than
// MaxClockSkew away from the local clock.
//
// # Client Transport
//
// NewTransport creates an http.RoundTripper that signs every outgoing
// request, used to dereference remote objects with the instance key:
//
//	client := &http.Client{
//	    Transport: httpsig.NewTransport(nil, httpsig.SignConfig{Signer: instanceKey}, http.Header{
//	        "User-Agent": {"federa/1.0"},
//	        "Accept":     {"application/activity+json"},
//	    }),
//	}
package httpsig
