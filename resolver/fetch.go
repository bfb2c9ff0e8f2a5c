package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/httpsig"
	"github.com/vitalvas/federa/metrics"
)

// ErrStatus is wrapped when a remote server answers a fetch with a
// non-2xx status.
var ErrStatus = errors.New("resolver: unexpected status")

// FetcherConfig configures an HTTPFetcher.
type FetcherConfig struct {
	// Signer signs every fetch, normally with the instance actor's key.
	Signer httpsig.Signer

	// UserAgent is sent with every request.
	UserAgent string

	// ConnectTimeout bounds dialing. Defaults to 5s.
	ConnectTimeout time.Duration

	// Timeout bounds the whole request. Defaults to 10s.
	Timeout time.Duration

	// Proxy routes fetches through an HTTP(S) proxy when set.
	Proxy *url.URL

	// MaxBodySize caps the accepted document size. Defaults to 1 MiB.
	MaxBodySize int64

	Metrics *metrics.Recorder
	Logger  *zap.Logger
}

// HTTPFetcher fetches ActivityPub documents with signed GET requests.
type HTTPFetcher struct {
	client  *http.Client
	limit   int64
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// NewHTTPFetcher builds a fetcher from cfg.
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 1 << 20
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	base.TLSHandshakeTimeout = cfg.ConnectTimeout

	if cfg.Proxy != nil {
		base.Proxy = http.ProxyURL(cfg.Proxy)
	}

	defaults := http.Header{}
	defaults.Set("Accept", activity.AcceptHeader)

	if cfg.UserAgent != "" {
		defaults.Set("User-Agent", cfg.UserAgent)
	}

	transport := httpsig.NewTransport(base, httpsig.SignConfig{
		Signer:  cfg.Signer,
		Headers: []string{"user-agent", "date", "accept", "host"},
	}, defaults)

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limit:   cfg.MaxBodySize,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Fetch performs a signed GET of id and returns the response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, id string) ([]byte, error) {
	body, err := f.fetch(ctx, id)
	if err != nil {
		f.metrics.Fetch("error")
		f.logger.Debug("fetch failed", zap.String("id", id), zap.Error(err))

		return nil, err
	}

	f.metrics.Fetch("ok")

	return body, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.limit+1))
	if err != nil {
		return nil, err
	}

	if int64(len(body)) > f.limit {
		return nil, fmt.Errorf("resolver: document exceeds %d bytes", f.limit)
	}

	return body, nil
}
