package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tgwebapp/internal/db"
	"tgwebapp/internal/initdata"
)

const (
	testToken = "123456:ABCDEF"
	testNow   = int64(1700003600)
)

type testUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

func buildSignedInitData(t *testing.T, token string, user *testUser, ts int64) string {
	t.Helper()

	values := url.Values{}
	if user != nil {
		values.Set("user", mustJSON(t, user))
	}
	values.Set("auth_date", fmt.Sprint(ts))
	values.Set("query_id", "AAEAAAE")
	return initdata.Sign(token, values)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

type testEnv struct {
	store   *db.Store
	handler http.Handler
	logs    *observer.ObservedLogs
	issuer  *SessionIssuer
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	core, logs := observer.New(zap.InfoLevel)
	clock := initdata.ClockFunc(func() time.Time { return time.Unix(testNow, 0) })

	all := append([]Option{WithClock(clock), WithMaxAuthAge(24 * time.Hour)}, opts...)
	srv := New(store, testToken, zap.New(core), all...)
	return &testEnv{store: store, handler: srv.Handler(), logs: logs, issuer: srv.sessions}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestMeOK(t *testing.T) {
	env := newTestEnv(t)
	initData := buildSignedInitData(t, testToken, &testUser{ID: 42, FirstName: "Reader", Username: "reader"}, testNow-60)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("X-Telegram-InitData", initData)
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		InitData struct {
			AuthDate uint64 `json:"auth_date"`
			QueryID  string `json:"query_id"`
			User     struct {
				ID        int64  `json:"id"`
				FirstName string `json:"first_name"`
			} `json:"user"`
		} `json:"init_data"`
		ElapsedSinceAuth *int64 `json:"elapsed_since_auth"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.InitData.User.ID)
	assert.Equal(t, "Reader", body.InitData.User.FirstName)
	assert.Equal(t, "AAEAAAE", body.InitData.QueryID)
	assert.Equal(t, uint64(testNow-60), body.InitData.AuthDate)
	require.NotNil(t, body.ElapsedSinceAuth)
	assert.Equal(t, int64(60), *body.ElapsedSinceAuth)

	profile, err := env.store.GetUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "reader", profile.Username)
}

func TestMeInitDataChannels(t *testing.T) {
	env := newTestEnv(t)
	initData := buildSignedInitData(t, testToken, &testUser{ID: 7, FirstName: "A"}, testNow)

	tests := map[string]func(r *http.Request){
		"header":        func(r *http.Request) { r.Header.Set("X-Telegram-Web-App-Data", initData) },
		"authorization": func(r *http.Request) { r.Header.Set("Authorization", "tma "+initData) },
		"query": func(r *http.Request) {
			r.URL.RawQuery = url.Values{"tgWebAppData": {initData}}.Encode()
		},
	}

	for name, set := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			set(req)
			rec := env.do(t, req)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}
}

func TestMeRejects(t *testing.T) {
	env := newTestEnv(t)
	user := &testUser{ID: 9, FirstName: "B"}

	valid := buildSignedInitData(t, testToken, user, testNow)
	values, err := url.ParseQuery(valid)
	require.NoError(t, err)
	values.Set("hash", "deadbeef")
	forged := values.Encode()

	tests := []struct {
		name     string
		initData string
		status   int
		message  string
	}{
		{name: "missing", initData: "", status: http.StatusUnauthorized, message: "initData required"},
		{name: "bad hash", initData: forged, status: http.StatusUnauthorized, message: "invalid initData"},
		{name: "other token", initData: buildSignedInitData(t, "other", user, testNow), status: http.StatusUnauthorized, message: "invalid initData"},
		{name: "expired", initData: buildSignedInitData(t, testToken, user, testNow-25*3600), status: http.StatusUnauthorized, message: "initData expired"},
		{name: "future", initData: buildSignedInitData(t, testToken, user, testNow+600), status: http.StatusUnauthorized, message: "auth_date is in the future"},
		{name: "no user", initData: buildSignedInitData(t, testToken, nil, testNow), status: http.StatusBadRequest, message: "initData has no user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.initData != "" {
				req.Header.Set("X-Telegram-InitData", tt.initData)
			}
			rec := env.do(t, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["error"])
		})
	}
}

func TestMeWithoutFreshnessPolicy(t *testing.T) {
	env := newTestEnv(t, WithMaxAuthAge(0))
	initData := buildSignedInitData(t, testToken, &testUser{ID: 5, FirstName: "Old"}, testNow-30*24*3600)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("X-Telegram-InitData", initData)
	rec := env.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidInitDataIsNotLogged(t *testing.T) {
	env := newTestEnv(t)
	initData := buildSignedInitData(t, testToken, &testUser{ID: 11, FirstName: "Secretive"}, testNow)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("X-Telegram-InitData", initData+"&start_param=x")
	rec := env.do(t, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	entries := env.logs.FilterMessage("auth: initData invalid").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "invalid_hash", fields["kind"])

	for _, e := range env.logs.All() {
		for _, v := range e.ContextMap() {
			s := fmt.Sprint(v)
			assert.NotContains(t, s, "Secretive")
			assert.NotContains(t, s, testToken)
		}
	}
}

func TestSessionsDisabled(t *testing.T) {
	env := newTestEnv(t)
	initData := buildSignedInitData(t, testToken, &testUser{ID: 1, FirstName: "A"}, testNow)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/session", nil)
	req.Header.Set("X-Telegram-InitData", initData)
	rec := env.do(t, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionFlow(t *testing.T) {
	issuer := NewSessionIssuer("jwt-secret", time.Hour)
	env := newTestEnv(t, WithSessions(issuer))
	initData := buildSignedInitData(t, testToken, &testUser{ID: 77, FirstName: "Sess", Username: "sess"}, testNow)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/session", nil)
	req.Header.Set("Authorization", "tma "+initData)
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.NotZero(t, body["expires_at"])

	req = httptest.NewRequest(http.MethodGet, "/api/session/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	profile := decodeBody(t, rec)
	assert.Equal(t, float64(77), profile["id"])
	assert.Equal(t, "sess", profile["username"])
}

func TestSessionRejectsBadTokens(t *testing.T) {
	issuer := NewSessionIssuer("jwt-secret", time.Hour)
	env := newTestEnv(t, WithSessions(issuer))

	data, err := initdata.Parse(testToken, buildSignedInitData(t, testToken, &testUser{ID: 3, FirstName: "C"}, testNow))
	require.NoError(t, err)
	user, _ := data.User()
	require.NoError(t, env.store.EnsureUser(context.Background(), user, data.AuthDate()))

	expiredIssuer := NewSessionIssuer("jwt-secret", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredIssuer.Issue(user, data.AuthDate())
	require.NoError(t, err)

	foreign, _, err := NewSessionIssuer("other-secret", time.Hour).Issue(user, data.AuthDate())
	require.NoError(t, err)

	tests := map[string]string{
		"missing":      "",
		"expired":      "Bearer " + expired,
		"wrong secret": "Bearer " + foreign,
		"garbage":      "Bearer not.a.jwt",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := env.do(t, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestSessionUnknownUser(t *testing.T) {
	issuer := NewSessionIssuer("jwt-secret", time.Hour)
	env := newTestEnv(t, WithSessions(issuer))

	data, err := initdata.Parse(testToken, buildSignedInitData(t, testToken, &testUser{ID: 404, FirstName: "Ghost"}, testNow))
	require.NoError(t, err)
	user, _ := data.User()
	token, _, err := issuer.Issue(user, data.AuthDate())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/session/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := env.do(t, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractInitDataPriority(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/me?initData=from-query", nil)
	assert.Equal(t, "from-query", extractInitData(req))

	req.Header.Set("Authorization", "TMA  from-auth ")
	assert.Equal(t, "from-auth", extractInitData(req))

	req.Header.Set("X-Telegram-WebApp-Data", "from-webapp-header")
	assert.Equal(t, "from-webapp-header", extractInitData(req))

	req.Header.Set("X-Telegram-InitData", "from-initdata-header")
	assert.Equal(t, "from-initdata-header", extractInitData(req))

	plain := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	plain.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "", extractInitData(plain))
	assert.False(t, strings.Contains(extractInitData(plain), "abc"))
}
