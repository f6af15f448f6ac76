package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/ats-gateway/internal/oidc"
	"github.com/hireloop/ats-gateway/internal/sessions"
	"github.com/hireloop/ats-gateway/internal/users"
	"github.com/hireloop/ats-gateway/pkg/middleware"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeProvider struct {
	urls      int
	exchanges int
	gotNonce  string
	claims    map[string]interface{}
}

func (f *fakeProvider) AuthCodeURL(ctx context.Context, state, nonce string) (string, error) {
	f.urls++
	q := url.Values{"state": {state}, "nonce": {nonce}}
	return "https://idp.example.com/authorize?" + q.Encode(), nil
}

func (f *fakeProvider) Exchange(ctx context.Context, code, nonce string) (*oidc.Identity, error) {
	f.exchanges++
	f.gotNonce = nonce
	if code != "good" {
		return nil, errors.New("invalid_grant")
	}
	return &oidc.Identity{Claims: f.claims, AccessToken: "at", RefreshToken: "rt"}, nil
}

type authFixture struct {
	router   *gin.Engine
	provider *fakeProvider
	repo     *sessions.MemoryRepository
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	repo := sessions.NewMemoryRepository()
	svc := sessions.NewService(repo, time.Hour)
	cookie := sessions.CookieConfig{Secret: "test-secret"}
	p := &fakeProvider{claims: map[string]interface{}{"sub": "user-1", "email": "ada@example.com", "name": "Ada"}}

	r := gin.New()
	r.Use(middleware.ErrorHandler(), middleware.SessionMiddleware(svc, cookie))
	NewAuthHandler(p, users.NewService(nil), svc, cookie, "/dashboard").Register(r)
	return &authFixture{router: r, provider: p, repo: repo}
}

func (f *authFixture) do(method, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessions.DefaultCookieName {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func TestLoginFlow(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(http.MethodGet, "/auth/login")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)
	state := loc.Query().Get("state")
	nonce := loc.Query().Get("nonce")
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)
	pre := sessionCookie(t, w)
	assert.True(t, pre.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, pre.SameSite)

	w = f.do(http.MethodGet, "/auth/callback?code=good&state="+state, pre)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, nonce, f.provider.gotNonce)
	post := sessionCookie(t, w)
	assert.NotEqual(t, pre.Value, post.Value, "session id is rotated on login")

	w = f.do(http.MethodGet, "/auth/me", post)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		User struct {
			ID     string   `json:"id"`
			Emails []string `json:"emails"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body.User.ID)
	assert.Equal(t, []string{"ada@example.com"}, body.User.Emails)

	// the pre-login id no longer resolves
	w = f.do(http.MethodGet, "/auth/me", pre)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a second login with a live session skips the provider
	w = f.do(http.MethodGet, "/auth/login", post)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, 1, f.provider.urls)
}

func TestCallbackRejectsMissingCode(t *testing.T) {
	f := newAuthFixture(t)
	w := f.do(http.MethodGet, "/auth/callback?state=x")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"missing_code"}`, w.Body.String())
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	f := newAuthFixture(t)
	w := f.do(http.MethodGet, "/auth/login")
	pre := sessionCookie(t, w)

	w = f.do(http.MethodGet, "/auth/callback?code=good&state=forged", pre)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid_state"}`, w.Body.String())
	assert.Equal(t, 0, f.provider.exchanges)

	// no session at all
	w = f.do(http.MethodGet, "/auth/callback?code=good&state=forged")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	w := f.do(http.MethodGet, "/auth/login")
	loc, _ := url.Parse(w.Header().Get("Location"))
	state := loc.Query().Get("state")
	pre := sessionCookie(t, w)

	w = f.do(http.MethodGet, "/auth/callback?code=bad&state="+state, pre)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"login_failed"}`, w.Body.String())

	w = f.do(http.MethodGet, "/auth/callback?code=good&state="+state, pre)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, f.provider.exchanges)
}

func TestCallbackRefusesIncompleteIdentity(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.claims = map[string]interface{}{"sub": "user-1"}
	w := f.do(http.MethodGet, "/auth/login")
	loc, _ := url.Parse(w.Header().Get("Location"))
	pre := sessionCookie(t, w)

	w = f.do(http.MethodGet, "/auth/callback?code=good&state="+loc.Query().Get("state"), pre)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"login_failed"}`, w.Body.String())

	w = f.do(http.MethodGet, "/auth/me", pre)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	w := f.do(http.MethodGet, "/auth/login")
	loc, _ := url.Parse(w.Header().Get("Location"))
	w = f.do(http.MethodGet, "/auth/callback?code=good&state="+loc.Query().Get("state"), sessionCookie(t, w))
	post := sessionCookie(t, w)

	w = f.do(http.MethodPost, "/auth/logout", post)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"logged_out"}`, w.Body.String())
	cleared := sessionCookie(t, w)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Equal(t, "/", cleared.Path)

	w = f.do(http.MethodGet, "/auth/me", post)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginWithoutProvider(t *testing.T) {
	svc := sessions.NewService(sessions.NewMemoryRepository(), time.Hour)
	r := gin.New()
	NewAuthHandler(nil, users.NewService(nil), svc, sessions.CookieConfig{Secret: "k"}, "").Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
