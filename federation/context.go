package federation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/broadcast"
	"github.com/vitalvas/federa/httpsig"
	"github.com/vitalvas/federa/metrics"
	"github.com/vitalvas/federa/resolver"
)

// KeyBits is the size of generated actor keys.
const KeyBits = 2048

// Options configures Bootstrap.
type Options struct {
	// Domain is the public host name of the instance.
	Domain string

	// Insecure builds http:// instead of https:// URLs.
	Insecure bool

	Store Store

	// InstanceKeyPEM is the private key of the instance actor. A key is
	// generated when empty and no instance actor is stored yet.
	InstanceKeyPEM string

	// Fetcher replaces the signed HTTP fetcher.
	Fetcher resolver.Fetcher

	FetcherConfig resolver.FetcherConfig
	Broadcast     broadcast.Config

	// BlockedInstances are hosts whose activities are ignored.
	BlockedInstances []string

	Indexer  Indexer
	Notifier Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Recorder
}

// Context is the process-wide federation state: the local instance, its
// collaborators and the instance actor used to sign fetches. It is built
// once by Bootstrap and passed explicitly.
type Context struct {
	Domain   string
	BaseURL  string
	Store    Store
	Fetcher  resolver.Fetcher
	Indexer  Indexer
	Notifier Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Recorder

	Broadcaster *broadcast.Broadcaster

	// Instance is the Application actor representing the server.
	Instance    *User
	InstanceKey *httpsig.Keypair

	blocked map[string]struct{}
}

// Bootstrap stores the instance actor if needed and wires the
// collaborators.
func Bootstrap(ctx context.Context, opts Options) (*Context, error) {
	if opts.Domain == "" {
		return nil, errors.New("federation: domain is required")
	}

	if opts.Store == nil {
		return nil, errors.New("federation: store is required")
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	scheme := "https"
	if opts.Insecure {
		scheme = "http"
	}

	fc := &Context{
		Domain:   strings.ToLower(opts.Domain),
		BaseURL:  scheme + "://" + opts.Domain,
		Store:    opts.Store,
		Indexer:  opts.Indexer,
		Notifier: opts.Notifier,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		blocked:  make(map[string]struct{}, len(opts.BlockedInstances)),
	}

	for _, host := range opts.BlockedInstances {
		fc.blocked[strings.ToLower(host)] = struct{}{}
	}

	if fc.Indexer == nil {
		fc.Indexer = nopIndexer{}
	}

	if fc.Notifier == nil {
		fc.Notifier = storeNotifier{store: opts.Store}
	}

	instance, key, err := fc.bootstrapInstance(ctx, opts.InstanceKeyPEM)
	if err != nil {
		return nil, err
	}

	fc.Instance = instance
	fc.InstanceKey = key

	fc.Fetcher = opts.Fetcher
	if fc.Fetcher == nil {
		fcfg := opts.FetcherConfig
		fcfg.Signer = key

		if fcfg.Logger == nil {
			fcfg.Logger = opts.Logger
		}

		if fcfg.Metrics == nil {
			fcfg.Metrics = opts.Metrics
		}

		fc.Fetcher = resolver.NewHTTPFetcher(fcfg)
	}

	bcfg := opts.Broadcast
	if bcfg.Logger == nil {
		bcfg.Logger = opts.Logger
	}

	if bcfg.Metrics == nil {
		bcfg.Metrics = opts.Metrics
	}

	fc.Broadcaster = broadcast.New(bcfg)

	opts.Logger.Info("federation ready",
		zap.String("domain", fc.Domain),
		zap.String("instance_actor", instance.APURL),
	)

	return fc, nil
}

func (fc *Context) bootstrapInstance(ctx context.Context, keyPEM string) (*User, *httpsig.Keypair, error) {
	apURL := fc.BaseURL + "/actor"

	if u, err := fc.Store.FindUserByURL(ctx, apURL); err == nil {
		key, err := httpsig.NewKeypairFromPEM(u.KeyID(), u.PrivateKeyPEM)
		if err != nil {
			return nil, nil, fmt.Errorf("federation: stored instance key: %w", err)
		}

		return u, key, nil
	}

	var (
		key *httpsig.Keypair
		err error
	)

	if keyPEM != "" {
		key, err = httpsig.NewKeypairFromPEM(apURL+"#main-key", keyPEM)
	} else {
		key, err = httpsig.GenerateKeypair(apURL+"#main-key", KeyBits)
	}

	if err != nil {
		return nil, nil, fmt.Errorf("federation: instance key: %w", err)
	}

	u, err := fc.newLocalUser(activity.Application, fc.Domain, fc.Domain, key)
	if err != nil {
		return nil, nil, err
	}

	u.APURL = apURL
	u.InboxURL = fc.BaseURL + "/inbox"
	u.OutboxURL = ""
	u.FollowersURL = ""

	stored, err := fc.Store.InsertUser(ctx, u)
	if err != nil {
		return nil, nil, fmt.Errorf("federation: store instance actor: %w", err)
	}

	// Another process may have won the insert with its own key.
	if stored.PrivateKeyPEM != u.PrivateKeyPEM {
		key, err = httpsig.NewKeypairFromPEM(stored.KeyID(), stored.PrivateKeyPEM)
		if err != nil {
			return nil, nil, fmt.Errorf("federation: stored instance key: %w", err)
		}
	}

	return stored, key, nil
}

// RegisterUser creates a local Person with a fresh key pair.
func (fc *Context) RegisterUser(ctx context.Context, username, displayName string) (*User, error) {
	key, err := httpsig.GenerateKeypair(fc.UserURL(username)+"#main-key", KeyBits)
	if err != nil {
		return nil, err
	}

	u, err := fc.newLocalUser(activity.Person, username, displayName, key)
	if err != nil {
		return nil, err
	}

	return fc.Store.InsertUser(ctx, u)
}

func (fc *Context) newLocalUser(typ, username, displayName string, key *httpsig.Keypair) (*User, error) {
	pub, err := key.PublicKeyPEM()
	if err != nil {
		return nil, err
	}

	priv, err := key.PrivateKeyPEM()
	if err != nil {
		return nil, err
	}

	apURL := fc.UserURL(username)

	return &User{
		APURL:          apURL,
		Type:           typ,
		Username:       username,
		Domain:         fc.Domain,
		DisplayName:    displayName,
		InboxURL:       apURL + "/inbox",
		SharedInboxURL: fc.BaseURL + "/inbox",
		OutboxURL:      apURL + "/outbox",
		FollowersURL:   apURL + "/followers",
		PublicKeyPEM:   pub,
		PrivateKeyPEM:  priv,
		Local:          true,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// UserURL is the actor id of a local user.
func (fc *Context) UserURL(username string) string {
	return fc.BaseURL + "/@/" + url.PathEscape(username)
}

// IsBlocked reports whether activities from actorID are ignored.
func (fc *Context) IsBlocked(actorID string) bool {
	_, ok := fc.blocked[activity.ID(actorID).Host()]

	return ok
}

// Signer returns the signing key of a local user.
func (fc *Context) Signer(u *User) (httpsig.Signer, error) {
	if !u.Local || u.PrivateKeyPEM == "" {
		return nil, fmt.Errorf("federation: %s has no private key", u.APURL)
	}

	if u.APURL == fc.Instance.APURL {
		return fc.InstanceKey, nil
	}

	return httpsig.NewKeypairFromPEM(u.KeyID(), u.PrivateKeyPEM)
}

// Verifier returns a verifier for u's public key.
func (fc *Context) Verifier(u *User) (httpsig.Verifier, error) {
	return httpsig.NewVerifierFromPEM(u.KeyID(), u.PublicKeyPEM)
}

// ResolveActor finds or fetches the user with the given id.
func (fc *Context) ResolveActor(ctx context.Context, id string, inline []byte) (*User, error) {
	return resolver.Resolve(ctx, fc.Users(), fc.Fetcher, id, inline)
}

// RefetchActor fetches the user again, updating its stored key.
func (fc *Context) RefetchActor(ctx context.Context, id string) (*User, error) {
	return resolver.Refetch(ctx, refreshingUsers{fc: fc}, fc.Fetcher, id)
}
