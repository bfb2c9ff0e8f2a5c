package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/federation"
	"github.com/vitalvas/federa/httpsig"
	"github.com/vitalvas/federa/store/memory"
)

const (
	bobID   = "https://remote.example/@/bob"
	bobKey  = bobID + "#main-key"
	blocked = "https://spam.example/@/eve"
)

var (
	keysOnce sync.Once
	keys     [3]*httpsig.Keypair
)

// testKeys returns the instance key, bob's key and a second key for bob.
func testKeys(t *testing.T) (instance, bob, rotated *httpsig.Keypair) {
	t.Helper()

	keysOnce.Do(func() {
		for i, id := range []string{"https://local.example/actor#main-key", bobKey, bobKey} {
			kp, err := httpsig.GenerateKeypair(id, 2048)
			if err != nil {
				panic(err)
			}

			keys[i] = kp
		}
	})

	return keys[0], keys[1], keys[2]
}

type remote struct {
	mu   sync.Mutex
	docs map[string]string
}

func (r *remote) Fetch(_ context.Context, id string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, errors.New("410 gone")
	}

	return []byte(doc), nil
}

func (r *remote) serveActor(t *testing.T, id string, key *httpsig.Keypair) {
	t.Helper()

	pub, err := key.PublicKeyPEM()
	require.NoError(t, err)

	doc, err := json.Marshal(activity.Actor{
		ID:                id,
		Type:              activity.Person,
		PreferredUsername: "bob",
		Inbox:             id + "/inbox",
		PublicKey:         activity.PublicKey{ID: key.KeyID(), Owner: id, PublicKeyPEM: pub},
	})
	require.NoError(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[id] = string(doc)
}

type fixture struct {
	fc     *federation.Context
	store  *memory.Store
	remote *remote
	server *Server
	post   *federation.Post
	bob    *httpsig.Keypair
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	ctx := context.Background()
	instance, bob, _ := testKeys(t)

	pem, err := instance.PrivateKeyPEM()
	require.NoError(t, err)

	f := &fixture{store: memory.New(), remote: &remote{docs: make(map[string]string)}, bob: bob}
	f.remote.serveActor(t, bobID, bob)

	f.fc, err = federation.Bootstrap(ctx, federation.Options{
		Domain:           "local.example",
		Store:            f.store,
		InstanceKeyPEM:   pem,
		Fetcher:          f.remote,
		BlockedInstances: []string{"spam.example"},
	})
	require.NoError(t, err)

	alice, err := f.fc.RegisterUser(ctx, "alice", "Alice")
	require.NoError(t, err)

	blog, err := f.store.InsertBlog(ctx, &federation.Blog{APURL: f.fc.BaseURL + "/~/diary", Name: "diary", Local: true})
	require.NoError(t, err)

	f.post, err = f.store.InsertPost(ctx, &federation.Post{
		APURL:     f.fc.BaseURL + "/~/diary/hello",
		BlogID:    blog.ID,
		AuthorIDs: []int64{alice.ID},
		Title:     "Hello",
	})
	require.NoError(t, err)

	f.server, err = New(f.fc, cfg)
	require.NoError(t, err)

	return f
}

func (f *fixture) like(n int) string {
	return fmt.Sprintf(`{"id":"https://remote.example/likes/%d","type":"Like","actor":%q,"object":%q}`, n, bobID, f.post.APURL)
}

func inboxRequest(t *testing.T, path, body string, signer httpsig.Signer) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", activity.ContentType)

	if signer != nil {
		require.NoError(t, httpsig.SignRequest(r, httpsig.SignConfig{Signer: signer, Digest: true}))
	}

	return r
}

func (f *fixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)

	return w
}

func TestInbox(t *testing.T) {
	t.Run("signed activity is handled", func(t *testing.T) {
		f := newFixture(t, Config{})

		w := f.do(inboxRequest(t, "/inbox", f.like(1), f.bob))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Empty(t, w.Body.String())

		_, err := f.store.FindLikeByURL(context.Background(), "https://remote.example/likes/1")
		assert.NoError(t, err)
	})

	t.Run("user inbox", func(t *testing.T) {
		f := newFixture(t, Config{})

		w := f.do(inboxRequest(t, "/@/alice/inbox", f.like(1), f.bob))
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("unsigned", func(t *testing.T) {
		f := newFixture(t, Config{})

		w := f.do(inboxRequest(t, "/inbox", f.like(1), nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid signature")

		_, err := f.store.FindLikeByURL(context.Background(), "https://remote.example/likes/1")
		assert.ErrorIs(t, err, federation.ErrNotFound)
	})

	t.Run("signed by another key", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, _, other := testKeys(t)

		w := f.do(inboxRequest(t, "/inbox", f.like(1), other))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("tampered body", func(t *testing.T) {
		f := newFixture(t, Config{})

		r := inboxRequest(t, "/inbox", f.like(1), f.bob)
		r.Body = io.NopCloser(strings.NewReader(f.like(2)))

		w := f.do(r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rotated key is refetched", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, _, rotated := testKeys(t)

		_, err := f.fc.ResolveActor(context.Background(), bobID, nil)
		require.NoError(t, err)

		f.remote.serveActor(t, bobID, rotated)

		w := f.do(inboxRequest(t, "/inbox", f.like(1), rotated))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		stored, err := f.store.FindUserByURL(context.Background(), bobID)
		require.NoError(t, err)

		pub, err := rotated.PublicKeyPEM()
		require.NoError(t, err)
		assert.Equal(t, pub, stored.PublicKeyPEM)
	})

	t.Run("embedded actor key is not trusted", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, bob, forged := testKeys(t)

		forgedPub, err := forged.PublicKeyPEM()
		require.NoError(t, err)

		inline, err := json.Marshal(activity.Actor{
			ID:                bobID,
			Type:              activity.Person,
			PreferredUsername: "bob",
			Inbox:             bobID + "/inbox",
			PublicKey:         activity.PublicKey{ID: bobKey, Owner: bobID, PublicKeyPEM: forgedPub},
		})
		require.NoError(t, err)

		body := fmt.Sprintf(`{"id":"https://remote.example/likes/1","type":"Like","actor":%s,"object":%q}`, inline, f.post.APURL)

		w := f.do(inboxRequest(t, "/inbox", body, forged))
		assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

		_, err = f.store.FindLikeByURL(context.Background(), "https://remote.example/likes/1")
		assert.ErrorIs(t, err, federation.ErrNotFound)

		stored, err := f.store.FindUserByURL(context.Background(), bobID)
		require.NoError(t, err)

		bobPub, err := bob.PublicKeyPEM()
		require.NoError(t, err)
		assert.Equal(t, bobPub, stored.PublicKeyPEM)
	})

	t.Run("actor document served for another id", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, _, forged := testKeys(t)

		const mallory = "https://evil.example/@/x"

		forgedPub, err := forged.PublicKeyPEM()
		require.NoError(t, err)

		doc, err := json.Marshal(activity.Actor{
			ID:                bobID,
			Type:              activity.Person,
			PreferredUsername: "bob",
			Inbox:             bobID + "/inbox",
			PublicKey:         activity.PublicKey{ID: bobKey, Owner: bobID, PublicKeyPEM: forgedPub},
		})
		require.NoError(t, err)

		f.remote.docs[mallory] = string(doc)

		body := fmt.Sprintf(`{"id":"https://evil.example/likes/1","type":"Like","actor":%q,"object":%q}`, mallory, f.post.APURL)

		w := f.do(inboxRequest(t, "/inbox", body, forged))
		assert.NotEqual(t, http.StatusOK, w.Code)

		_, err = f.store.FindLikeByURL(context.Background(), "https://evil.example/likes/1")
		assert.ErrorIs(t, err, federation.ErrNotFound)

		_, err = f.store.FindUserByURL(context.Background(), bobID)
		assert.ErrorIs(t, err, federation.ErrNotFound)
	})

	t.Run("document signature", func(t *testing.T) {
		f := newFixture(t, Config{})

		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(f.like(1)), &doc))
		require.NoError(t, httpsig.SignDocument(doc, f.bob, time.Now()))

		body, err := json.Marshal(doc)
		require.NoError(t, err)

		w := f.do(inboxRequest(t, "/inbox", string(body), nil))
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("blocked instance is ignored", func(t *testing.T) {
		f := newFixture(t, Config{})

		body := fmt.Sprintf(`{"id":"https://spam.example/likes/1","type":"Like","actor":%q,"object":%q}`, blocked, f.post.APURL)

		w := f.do(inboxRequest(t, "/inbox", body, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("unsupported activity", func(t *testing.T) {
		f := newFixture(t, Config{})

		body := fmt.Sprintf(`{"id":"https://remote.example/blocks/1","type":"Block","actor":%q,"object":%q}`, bobID, f.post.APURL)

		w := f.do(inboxRequest(t, "/inbox", body, f.bob))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Error: inbox: no handler matched the activity", w.Body.String())
	})

	t.Run("unknown actor", func(t *testing.T) {
		f := newFixture(t, Config{})

		body := fmt.Sprintf(`{"id":"https://gone.example/likes/1","type":"Like","actor":"https://gone.example/@/x","object":%q}`, f.post.APURL)

		w := f.do(inboxRequest(t, "/inbox", body, f.bob))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "Error: "))
	})

	for _, tc := range []struct {
		name string
		body string
	}{
		{"not an object", `["Like"]`},
		{"not json", `{nope`},
		{"no actor", `{"id":"https://remote.example/likes/1","type":"Like"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{})

			w := f.do(inboxRequest(t, "/inbox", tc.body, f.bob))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.True(t, strings.HasPrefix(w.Body.String(), "Error: "), w.Body.String())
		})
	}

	t.Run("body too large", func(t *testing.T) {
		f := newFixture(t, Config{MaxBodySize: 16})

		w := f.do(inboxRequest(t, "/inbox", f.like(1), nil))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("wrong content type", func(t *testing.T) {
		f := newFixture(t, Config{})

		r := inboxRequest(t, "/inbox", f.like(1), nil)
		r.Header.Set("Content-Type", "text/html")

		w := f.do(r)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})
}

func TestActorDocuments(t *testing.T) {
	f := newFixture(t, Config{})

	t.Run("instance", func(t *testing.T) {
		w := f.do(httptest.NewRequest(http.MethodGet, "/actor", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, activity.ContentType, w.Header().Get("Content-Type"))

		a, err := activity.DecodeActor(w.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, activity.Application, a.Type)
		assert.Equal(t, "https://local.example/actor", a.ID)
	})

	t.Run("user", func(t *testing.T) {
		w := f.do(httptest.NewRequest(http.MethodGet, "/@/alice", nil))
		require.Equal(t, http.StatusOK, w.Code)

		a, err := activity.DecodeActor(w.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, activity.Person, a.Type)
		assert.Equal(t, "https://local.example/@/alice/inbox", a.Inbox)
		require.NotNil(t, a.Endpoints)
		assert.Equal(t, "https://local.example/inbox", a.Endpoints.SharedInbox)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := f.do(httptest.NewRequest(http.MethodGet, "/@/nobody", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAuthorizedFetch(t *testing.T) {
	f := newFixture(t, Config{AuthorizedFetch: true})

	t.Run("unsigned", func(t *testing.T) {
		w := f.do(httptest.NewRequest(http.MethodGet, "/@/alice", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/@/alice", nil)
		r.Header.Set("Accept", activity.AcceptHeader)
		require.NoError(t, httpsig.SignRequest(r, httpsig.SignConfig{Signer: f.bob}))

		w := f.do(r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("instance actor stays public", func(t *testing.T) {
		w := f.do(httptest.NewRequest(http.MethodGet, "/actor", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, Config{})

	w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	// No recorder is configured.
	w = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
