package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tgwebapp/internal/initdata"
)

type initDataKey struct{}

var (
	errInitDataExpired  = errors.New("initData expired")
	errAuthDateInFuture = errors.New("auth_date is in the future")
)

// InitDataFromContext returns the payload validated by requireInitData.
func InitDataFromContext(ctx context.Context) (*initdata.InitData, bool) {
	d, ok := ctx.Value(initDataKey{}).(*initdata.InitData)
	return d, ok
}

// requireInitData rejects requests without a valid, fresh initData payload.
func (s *Server) requireInitData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractInitData(r)
		if raw == "" {
			s.log.Info("auth: initData missing",
				zap.String("remote", r.RemoteAddr),
				zap.String("ua", r.UserAgent()))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "initData required"})
			return
		}

		data, err := initdata.Parse(s.botToken, raw, initdata.WithClock(s.clock))
		if err != nil {
			s.log.Info("auth: initData invalid", validationFields(r, len(raw), err)...)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid initData"})
			return
		}

		if err := s.checkFreshness(data); err != nil {
			s.log.Info("auth: initData rejected",
				zap.Int("len", len(raw)),
				zap.Uint64("auth_date", data.AuthDate()),
				zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}

		ctx := context.WithValue(r.Context(), initDataKey{}, data)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withUser runs fn for payloads that carry a launching user.
func (s *Server) withUser(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, data *initdata.InitData, user *initdata.User)) {
	data, ok := InitDataFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "initData required"})
		return
	}
	user, ok := data.User()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "initData has no user"})
		return
	}
	fn(r.Context(), data, user)
}

func (s *Server) checkFreshness(data *initdata.InitData) error {
	if s.maxAuthAge <= 0 {
		return nil
	}
	elapsed, ok := data.ElapsedSinceAuth()
	if !ok {
		return errAuthDateInFuture
	}
	if elapsed > s.maxAuthAge {
		return errInitDataExpired
	}
	return nil
}

// validationFields never includes the payload itself.
func validationFields(r *http.Request, size int, err error) []zap.Field {
	fields := []zap.Field{
		zap.Int("len", size),
		zap.String("remote", r.RemoteAddr),
		zap.String("ua", r.UserAgent()),
	}
	var verr *initdata.Error
	if errors.As(err, &verr) {
		fields = append(fields, zap.Stringer("kind", verr.Kind))
		if verr.Field != "" {
			fields = append(fields, zap.String("field", verr.Field))
		}
	}
	return fields
}

func extractInitData(r *http.Request) string {
	// Headers first (preferred channel for security-critical data).
	if v := r.Header.Get("X-Telegram-InitData"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Telegram-Web-App-Data"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Telegram-WebApp-Data"); v != "" {
		return v
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		low := strings.ToLower(auth)
		if strings.HasPrefix(low, "tma ") {
			return strings.TrimSpace(auth[4:])
		}
	}

	// URL fallbacks (useful for debugging in a normal browser).
	if v := r.URL.Query().Get("initData"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("tgWebAppData"); v != "" {
		return v
	}
	return ""
}
