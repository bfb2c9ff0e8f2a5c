// Package broadcast delivers a signed activity to the inboxes of its
// remote recipients.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/idna"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/httpsig"
	"github.com/vitalvas/federa/metrics"
)

// Recipient is an actor an activity is addressed to.
type Recipient interface {
	IsLocal() bool
	Inbox() string
	SharedInbox() string
}

// Config configures a Broadcaster.
type Config struct {
	// Workers is the number of concurrent deliveries. Defaults to 8.
	Workers int

	// QueueSize bounds the pending deliveries. Defaults to 64.
	QueueSize int

	// SendDelay is slept by a worker before each delivery.
	SendDelay time.Duration

	UserAgent string

	// Client posts the deliveries. Defaults to a client with a 30s
	// timeout.
	Client *http.Client

	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// Broadcaster fans activities out to remote inboxes.
type Broadcaster struct {
	cfg    Config
	logger *zap.Logger
}

// New returns a Broadcaster with defaults applied to cfg.
func New(cfg Config) *Broadcaster {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Broadcaster{cfg: cfg, logger: cfg.Logger.Named("broadcast")}
}

type task struct {
	inbox  string
	host   string
	body   []byte
	header http.Header
}

// Inboxes returns the delivery targets for to: remote recipients only,
// preferring the shared inbox, without duplicates, in first-seen order.
func Inboxes(to []Recipient) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, r := range to {
		if r == nil || r.IsLocal() {
			continue
		}

		inbox := r.SharedInbox()
		if inbox == "" {
			inbox = r.Inbox()
		}

		if inbox == "" {
			continue
		}

		if _, dup := seen[inbox]; dup {
			continue
		}

		seen[inbox] = struct{}{}
		out = append(out, inbox)
	}

	return out
}

// Broadcast signs act with sender's key and posts it to every remote
// recipient, adding @context when missing and a signature to act. It
// returns once every delivery was attempted. Failed
// deliveries are logged and counted, not returned; an error means nothing
// was sent. Cancelling ctx does not stop a started broadcast.
func (b *Broadcaster) Broadcast(ctx context.Context, sender httpsig.Signer, act map[string]any, to []Recipient) error {
	inboxes := Inboxes(to)
	if len(inboxes) == 0 {
		return nil
	}

	if _, ok := act["@context"]; !ok {
		act["@context"] = activity.Context()
	}

	if err := httpsig.SignDocument(act, sender, time.Now()); err != nil {
		return fmt.Errorf("broadcast: sign document: %w", err)
	}

	body, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("broadcast: encode activity: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	queue := make(chan *task, b.cfg.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < b.cfg.Workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for t := range queue {
				if b.cfg.SendDelay > 0 {
					time.Sleep(b.cfg.SendDelay)
				}

				b.deliver(ctx, t)
			}
		}()
	}

	for _, inbox := range inboxes {
		t, err := b.prepare(sender, inbox, body)
		if err != nil {
			b.logger.Warn("skipping inbox", zap.String("inbox", inbox), zap.Error(err))
			b.cfg.Metrics.Delivery("skipped", 0)

			continue
		}

		queue <- t
	}

	close(queue)
	wg.Wait()

	return nil
}

// prepare builds the headers of one delivery, signed for its inbox.
func (b *Broadcaster) prepare(sender httpsig.Signer, inbox string, body []byte) (*task, error) {
	u, err := url.Parse(inbox)
	if err != nil {
		return nil, err
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("inbox %q has no host", inbox)
	}

	host, err := asciiHost(u)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Host = host
	req.Header.Set("Accept", activity.AcceptHeader)
	req.Header.Set("Content-Type", activity.ContentType)

	if b.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", b.cfg.UserAgent)
	}

	if err := httpsig.SignRequest(req, httpsig.SignConfig{Signer: sender, Digest: true}); err != nil {
		return nil, err
	}

	return &task{inbox: inbox, host: host, body: body, header: req.Header}, nil
}

func (b *Broadcaster) deliver(ctx context.Context, t *task) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.inbox, bytes.NewReader(t.body))
	if err != nil {
		b.logger.Warn("delivery failed", zap.String("inbox", t.inbox), zap.Error(err))
		b.cfg.Metrics.Delivery("failed", time.Since(start))

		return
	}

	req.Host = t.host
	req.Header = t.header.Clone()

	resp, err := b.cfg.Client.Do(req)
	if err != nil {
		b.logger.Warn("delivery failed", zap.String("inbox", t.inbox), zap.Error(err))
		b.cfg.Metrics.Delivery("failed", time.Since(start))

		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.logger.Warn("delivery rejected", zap.String("inbox", t.inbox), zap.Int("status", resp.StatusCode))
		b.cfg.Metrics.Delivery("rejected", time.Since(start))

		return
	}

	b.logger.Debug("delivered", zap.String("inbox", t.inbox), zap.Int("status", resp.StatusCode))
	b.cfg.Metrics.Delivery("ok", time.Since(start))
}

// asciiHost returns the lowercased IDNA form of u's host, keeping the
// port.
func asciiHost(u *url.URL) (string, error) {
	name := u.Hostname()

	if net.ParseIP(name) == nil {
		ascii, err := idna.Lookup.ToASCII(name)
		if err != nil {
			return "", fmt.Errorf("host %q: %w", name, err)
		}

		name = strings.ToLower(ascii)
	}

	if port := u.Port(); port != "" {
		return net.JoinHostPort(name, port), nil
	}

	return name, nil
}
