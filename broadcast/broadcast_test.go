package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/httpsig"
	"github.com/vitalvas/federa/metrics"
)

type actor struct {
	local  bool
	inbox  string
	shared string
}

func (a actor) IsLocal() bool       { return a.local }
func (a actor) Inbox() string       { return a.inbox }
func (a actor) SharedInbox() string { return a.shared }

var (
	senderOnce sync.Once
	senderKey  *httpsig.Keypair
)

func sender(t *testing.T) *httpsig.Keypair {
	t.Helper()

	senderOnce.Do(func() {
		kp, err := httpsig.GenerateKeypair("https://local.example/@/alice#main-key", 2048)
		if err != nil {
			panic(err)
		}

		senderKey = kp
	})

	return senderKey
}

type inboxServer struct {
	*httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	validity []httpsig.Validity
	bodies   [][]byte
}

func newInboxServer(t *testing.T, key httpsig.Verifier) *inboxServer {
	t.Helper()

	s := &inboxServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := httpsig.VerifyRequest(r, key)
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.validity = append(s.validity, v)
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()

		if r.URL.Path == "/reject" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(s.Close)

	return s
}

func like() map[string]any {
	return map[string]any{
		"id":     "https://local.example/like/1",
		"type":   activity.Like,
		"actor":  "https://local.example/@/alice",
		"object": "https://remote.example/post/1",
	}
}

func TestInboxes(t *testing.T) {
	got := Inboxes([]Recipient{
		actor{inbox: "https://a.example/@/bob/inbox", shared: "https://a.example/inbox"},
		actor{inbox: "https://a.example/@/carol/inbox", shared: "https://a.example/inbox"},
		actor{local: true, inbox: "https://local.example/@/dave/inbox"},
		actor{inbox: "https://b.example/users/erin/inbox"},
		actor{},
		nil,
	})

	assert.Equal(t, []string{"https://a.example/inbox", "https://b.example/users/erin/inbox"}, got)
}

func TestBroadcast(t *testing.T) {
	key := sender(t)
	srv := newInboxServer(t, key)
	rec := metrics.New(nil)

	b := New(Config{Workers: 2, QueueSize: 1, UserAgent: "federa/test", Metrics: rec})

	act := like()
	err := b.Broadcast(context.Background(), key, act, []Recipient{
		actor{inbox: srv.URL + "/@/bob/inbox", shared: srv.URL + "/inbox"},
		actor{inbox: srv.URL + "/@/carol/inbox", shared: srv.URL + "/inbox"},
		actor{inbox: srv.URL + "/users/erin/inbox"},
		actor{local: true, inbox: srv.URL + "/@/local/inbox"},
		actor{inbox: "/no/host"},
		actor{inbox: srv.URL + "/reject"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"/inbox": 1, "/users/erin/inbox": 1, "/reject": 1}, srv.hits)

	for _, v := range srv.validity {
		assert.Equal(t, httpsig.Valid, v)
	}

	for _, body := range srv.bodies {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(body, &doc))
		assert.NotNil(t, doc["@context"])
		assert.NoError(t, httpsig.VerifyDocument(doc, key))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Deliveries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Deliveries.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Deliveries.WithLabelValues("skipped")))
}

func TestBroadcastOnlyLocal(t *testing.T) {
	key := sender(t)
	srv := newInboxServer(t, key)

	err := New(Config{}).Broadcast(context.Background(), key, like(), []Recipient{
		actor{local: true, inbox: srv.URL + "/@/bob/inbox"},
	})
	require.NoError(t, err)
	assert.Empty(t, srv.hits)
}

func TestBroadcastKeepsContext(t *testing.T) {
	key := sender(t)
	srv := newInboxServer(t, key)

	act := like()
	act["@context"] = activity.ContextActivityStreams

	require.NoError(t, New(Config{}).Broadcast(context.Background(), key, act, []Recipient{
		actor{inbox: srv.URL + "/inbox"},
	}))

	require.Len(t, srv.bodies, 1)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(srv.bodies[0], &doc))
	assert.Equal(t, activity.ContextActivityStreams, doc["@context"])
}

func TestBroadcastCancelledContext(t *testing.T) {
	key := sender(t)
	srv := newInboxServer(t, key)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, New(Config{}).Broadcast(ctx, key, like(), []Recipient{
		actor{inbox: srv.URL + "/inbox"},
	}))
	assert.Equal(t, 1, srv.hits["/inbox"])
}

func TestASCIIHost(t *testing.T) {
	for _, tc := range []struct {
		url  string
		want string
	}{
		{"https://Example.ORG/inbox", "example.org"},
		{"https://bücher.example/inbox", "xn--bcher-kva.example"},
		{"http://127.0.0.1:8080/inbox", "127.0.0.1:8080"},
		{"https://a.example:8443/inbox", "a.example:8443"},
	} {
		t.Run(tc.url, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			require.NoError(t, err)

			got, err := asciiHost(u)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
