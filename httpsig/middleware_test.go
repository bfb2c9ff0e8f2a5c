package httpsig

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	kp := testKeypair(t, 0, "https://remote.example/@/alice#main-key")

	resolver := func(_ *http.Request, keyID string) (Verifier, error) {
		if keyID == kp.KeyID() {
			return kp, nil
		}
		return nil, ErrInvalidKey
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Validity", ValidityFromContext(r.Context()).String())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("nil resolver returns error", func(t *testing.T) {
		_, err := Middleware(MiddlewareConfig{})
		assert.ErrorIs(t, err, ErrNoResolver)
	})

	t.Run("valid signed request passes through", func(t *testing.T) {
		mw, err := Middleware(MiddlewareConfig{Resolver: resolver})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/@/bob", nil)
		req.Host = "local.example"
		require.NoError(t, SignRequest(req, SignConfig{Signer: kp}))

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "valid_no_digest", w.Header().Get("X-Validity"))
	})

	t.Run("unsigned request returns 401", func(t *testing.T) {
		mw, err := Middleware(MiddlewareConfig{Resolver: resolver})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/@/bob", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown key returns 401", func(t *testing.T) {
		mw, err := Middleware(MiddlewareConfig{Resolver: resolver})
		require.NoError(t, err)

		stranger := testKeypair(t, 1, "https://remote.example/@/stranger#main-key")

		req := httptest.NewRequest(http.MethodGet, "/@/bob", nil)
		require.NoError(t, SignRequest(req, SignConfig{Signer: stranger}))

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("custom accept lets unsigned requests through", func(t *testing.T) {
		mw, err := Middleware(MiddlewareConfig{
			Resolver: resolver,
			Accept:   func(Validity) bool { return true },
		})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/@/bob", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "absent", w.Header().Get("X-Validity"))
	})

	t.Run("custom error handler", func(t *testing.T) {
		mw, err := Middleware(MiddlewareConfig{
			Resolver: resolver,
			OnError: func(w http.ResponseWriter, _ *http.Request, v Validity) {
				http.Error(w, "rejected: "+v.String(), http.StatusForbidden)
			},
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader(`{}`))
		require.NoError(t, SignRequest(req, SignConfig{Signer: kp, Digest: true}))
		req.Header.Set("Digest", ComputeDigest([]byte("other")).String())

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "rejected: invalid")
	})
}
