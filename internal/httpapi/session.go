package httpapi

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"

	"tgwebapp/internal/initdata"
)

// SessionIssuer exchanges a validated initData user for a short-lived HS256
// token, so the Mini App does not have to resend initData on every call.
// Tokens are not stored anywhere.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	auth   *jwtauth.JWTAuth
}

func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		auth:   jwtauth.New("HS256", []byte(secret), nil),
	}
}

// Issue signs a token whose subject is the Telegram user id.
func (s *SessionIssuer) Issue(user *initdata.User, authDate uint64) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)

	claims := jwt.MapClaims{
		"sub":       strconv.FormatInt(user.ID(), 10),
		"auth_date": authDate,
		"iat":       now.Unix(),
		"exp":       expires.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}
