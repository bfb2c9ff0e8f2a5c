// Package server exposes the federation endpoints over HTTP: the shared and
// per-user inboxes and the actor documents remote servers fetch keys from.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/federation"
	"github.com/vitalvas/federa/httpsig"
	"github.com/vitalvas/federa/inbox"
)

// DefaultMaxBodySize bounds inbox payloads when Config.MaxBodySize is unset.
const DefaultMaxBodySize = 1 << 20

// Config configures the HTTP surface.
type Config struct {
	MaxBodySize int64

	// AuthorizedFetch requires a valid HTTP signature on user actor
	// documents. The instance actor stays public so peers can always
	// fetch the key they sign with.
	AuthorizedFetch bool

	// TrustedProxies are the peers allowed to set X-Forwarded-Host.
	TrustedProxies []string
}

// Server routes federation traffic for one instance.
type Server struct {
	fc     *federation.Context
	inbox  *inbox.Dispatcher[federation.Result]
	logger *zap.Logger
	router chi.Router
}

// New builds the router. The dispatcher is the one returned by
// federation.NewInbox.
func New(fc *federation.Context, cfg Config) (*Server, error) {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	limit, err := BodyLimit(cfg.MaxBodySize)
	if err != nil {
		return nil, err
	}

	forwarded, err := ForwardedHost(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		fc:     fc,
		inbox:  federation.NewInbox(fc),
		logger: fc.Logger.Named("server"),
	}

	var signed func(http.Handler) http.Handler
	if cfg.AuthorizedFetch {
		signed, err = httpsig.Middleware(httpsig.MiddlewareConfig{
			Resolver: s.resolveKey,
			OnError: func(w http.ResponseWriter, _ *http.Request, _ httpsig.Validity) {
				http.Error(w, "Invalid signature", http.StatusUnauthorized)
			},
		})
		if err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(RequestID, Recovery(s.logger), AccessLog(s.logger), forwarded)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", fc.Metrics.Handler())

	r.Get("/actor", s.handleInstanceActor)

	r.Group(func(r chi.Router) {
		r.Use(limit, ActivityContentType)
		r.Post("/inbox", s.handleInbox)
		r.Post("/@/{name}/inbox", s.handleInbox)
	})

	r.Group(func(r chi.Router) {
		if signed != nil {
			r.Use(signed)
		}

		r.Get("/@/{name}", s.handleUserActor)
	})

	s.router = r

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := s.logger.With(zap.String("request_id", RequestIDFromContext(ctx)))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}

		writeError(w, http.StatusBadRequest, err)

		return
	}

	env, err := activity.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actorID, ok := env.ActorID()
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("activity has no actor"))
		return
	}

	if s.fc.IsBlocked(actorID) {
		log.Debug("ignored activity from blocked instance", zap.String("actor", actorID))
		w.WriteHeader(http.StatusOK)

		return
	}

	actor, err := s.fc.ResolveActor(ctx, actorID, nil)
	if err != nil {
		log.Info("actor resolution failed", zap.String("actor", actorID), zap.Error(err))
		writeError(w, http.StatusBadRequest, err)

		return
	}

	if !s.authentic(r, body, actor) {
		// The key may have been rotated since it was stored.
		actor, err = s.fc.RefetchActor(ctx, actorID)
		if err != nil || !s.authentic(r, body, actor) {
			log.Info("rejected unsigned activity", zap.String("actor", actorID))
			http.Error(w, "Invalid signature", http.StatusUnauthorized)

			return
		}
	}

	res, err := s.inbox.Dispatch(ctx, env)
	if err != nil {
		log.Info("activity rejected",
			zap.String("actor", actorID),
			zap.String("type", env.Type()),
			zap.Error(err),
		)
		writeError(w, http.StatusBadRequest, err)

		return
	}

	log.Debug("activity handled",
		zap.String("actor", actorID),
		zap.String("type", env.Type()),
		zap.Stringer("result", res.Kind),
	)

	w.WriteHeader(http.StatusOK)
}

// authentic reports whether the request carries a secure HTTP signature or
// the body a valid document signature by actor.
func (s *Server) authentic(r *http.Request, body []byte, actor *federation.User) bool {
	verifier, err := s.fc.Verifier(actor)
	if err != nil {
		return false
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	if httpsig.VerifyRequest(r, verifier).IsSecure() {
		return true
	}

	return httpsig.VerifyDocumentJSON(body, verifier) == nil
}

func (s *Server) resolveKey(r *http.Request, keyID string) (httpsig.Verifier, error) {
	owner := activity.ID(keyID).WithoutFragment().String()

	u, err := s.fc.ResolveActor(r.Context(), owner, nil)
	if err != nil {
		return nil, err
	}

	return s.fc.Verifier(u)
}

func (s *Server) handleInstanceActor(w http.ResponseWriter, _ *http.Request) {
	writeActivity(w, http.StatusOK, s.fc.ActorDocument(s.fc.Instance))
}

func (s *Server) handleUserActor(w http.ResponseWriter, r *http.Request) {
	u, err := s.fc.Store.FindLocalUser(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, federation.ErrNotFound) {
			http.NotFound(w, r)
			return
		}

		s.logger.Error("find local user", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	writeActivity(w, http.StatusOK, s.fc.ActorDocument(u))
}

// writeActivity encodes v as an activity+json response.
func writeActivity(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", activity.ContentType)
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, "Error: "+err.Error())
}
