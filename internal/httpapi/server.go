package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"

	"tgwebapp/internal/db"
	"tgwebapp/internal/initdata"
)

// UserStore is the part of the user directory the API needs.
type UserStore interface {
	EnsureUser(ctx context.Context, user *initdata.User, authDate uint64) error
	GetUser(ctx context.Context, telegramID int64) (db.UserProfile, error)
	Ping(ctx context.Context) error
}

type Server struct {
	store      UserStore
	botToken   string
	log        *zap.Logger
	maxAuthAge time.Duration
	sessions   *SessionIssuer
	clock      initdata.Clock
}

type Option func(*Server)

// WithMaxAuthAge enables the freshness check. Zero disables it.
func WithMaxAuthAge(d time.Duration) Option {
	return func(s *Server) { s.maxAuthAge = d }
}

// WithSessions enables /api/auth/session and /api/session/me.
func WithSessions(issuer *SessionIssuer) Option {
	return func(s *Server) { s.sessions = issuer }
}

func WithClock(c initdata.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func New(store UserStore, botToken string, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		store:    store,
		botToken: botToken,
		log:      log,
		clock:    initdata.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireInitData)
		r.Get("/api/me", s.handleMe)
		if s.sessions != nil {
			r.Post("/api/auth/session", s.handleCreateSession)
		}
	})

	if s.sessions != nil {
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(s.sessions.auth))
			r.Use(jwtauth.Authenticator(s.sessions.auth))
			r.Get("/api/session/me", s.handleSessionMe)
		})
	}

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health: store unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type meResponse struct {
	InitData         *initdata.InitData `json:"init_data"`
	ElapsedSinceAuth *int64             `json:"elapsed_since_auth"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, data *initdata.InitData, user *initdata.User) {
		if err := s.store.EnsureUser(ctx, user, data.AuthDate()); err != nil {
			s.log.Error("EnsureUser error", zap.Int64("user_id", user.ID()), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db error"})
			return
		}

		resp := meResponse{InitData: data}
		if elapsed, ok := data.ElapsedSinceAuth(); ok {
			secs := int64(elapsed / time.Second)
			resp.ElapsedSinceAuth = &secs
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, data *initdata.InitData, user *initdata.User) {
		if err := s.store.EnsureUser(ctx, user, data.AuthDate()); err != nil {
			s.log.Error("EnsureUser error", zap.Int64("user_id", user.ID()), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db error"})
			return
		}

		token, expires, err := s.sessions.Issue(user, data.AuthDate())
		if err != nil {
			s.log.Error("session: sign failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not issue session"})
			return
		}

		s.log.Info("session: issued", zap.Int64("user_id", user.ID()))
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"expires_at": expires.Unix(),
		})
	})
}

func (s *Server) handleSessionMe(w http.ResponseWriter, r *http.Request) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}

	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token subject"})
		return
	}

	profile, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		s.log.Error("GetUser error", zap.Int64("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db error"})
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
