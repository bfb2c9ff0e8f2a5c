package httpsig

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testActivity() map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       "https://remote.example/activity/1",
		"type":     "Create",
		"actor":    "https://remote.example/@/alice",
		"object": map[string]any{
			"type":    "Note",
			"content": "<p>a & b</p>",
		},
	}
}

func TestSignDocument(t *testing.T) {
	kp := testKeypair(t, 0, "https://remote.example/@/alice#main-key")
	other := testKeypair(t, 1, "https://remote.example/@/mallory#main-key")

	t.Run("embeds signature object", func(t *testing.T) {
		doc := testActivity()
		require.NoError(t, SignDocument(doc, kp, time.Time{}))

		sig, ok := doc["signature"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, DocumentSignatureType, sig["type"])
		assert.Equal(t, "https://remote.example/@/alice#main-key", sig["creator"])
		assert.NotEmpty(t, sig["created"])
		assert.NotEmpty(t, sig["signatureValue"])
	})

	t.Run("nil signer", func(t *testing.T) {
		assert.ErrorIs(t, SignDocument(testActivity(), nil, time.Time{}), ErrNoSigner)
	})

	t.Run("round trip", func(t *testing.T) {
		doc := testActivity()
		require.NoError(t, SignDocument(doc, kp, time.Time{}))

		assert.NoError(t, VerifyDocument(doc, kp))
	})

	t.Run("round trip through json", func(t *testing.T) {
		doc := testActivity()
		doc["likes"] = 3
		require.NoError(t, SignDocument(doc, kp, time.Time{}))

		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		assert.NoError(t, VerifyDocumentJSON(raw, kp))
	})

	t.Run("different keypair", func(t *testing.T) {
		doc := testActivity()
		require.NoError(t, SignDocument(doc, kp, time.Time{}))

		assert.ErrorIs(t, VerifyDocument(doc, other), ErrSignatureInvalid)
	})

	t.Run("tampered document", func(t *testing.T) {
		doc := testActivity()
		require.NoError(t, SignDocument(doc, kp, time.Time{}))
		doc["actor"] = "https://remote.example/@/mallory"

		assert.ErrorIs(t, VerifyDocument(doc, kp), ErrSignatureInvalid)
	})

	t.Run("created 13 hours ago", func(t *testing.T) {
		doc := testActivity()
		require.NoError(t, SignDocument(doc, kp, time.Now().Add(-13*time.Hour)))

		assert.ErrorIs(t, VerifyDocument(doc, kp), ErrSignatureExpired)
	})

	t.Run("created 1 hour ago", func(t *testing.T) {
		doc := testActivity()
		require.NoError(t, SignDocument(doc, kp, time.Now().Add(-1*time.Hour)))

		assert.NoError(t, VerifyDocument(doc, kp))
	})

	t.Run("missing signature", func(t *testing.T) {
		assert.ErrorIs(t, VerifyDocument(testActivity(), kp), ErrSignatureNotFound)
	})

	t.Run("unparsable created", func(t *testing.T) {
		doc := testActivity()
		require.NoError(t, SignDocument(doc, kp, time.Time{}))
		doc["signature"].(map[string]any)["created"] = "last tuesday"

		assert.ErrorIs(t, VerifyDocument(doc, kp), ErrMalformedHeader)
	})

	t.Run("signature field is not hashed", func(t *testing.T) {
		doc := testActivity()
		require.NoError(t, SignDocument(doc, kp, time.Time{}))
		doc["signature"].(map[string]any)["creator"] = "anything"

		assert.NoError(t, VerifyDocument(doc, kp))
	})
}

func TestCanonicalJSON(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"b": 1, "a": "<x>", "@context": "c"})
	require.NoError(t, err)

	assert.Equal(t, `{"@context":"c","a":"<x>","b":1}`, string(out))
}
