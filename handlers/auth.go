package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/ats-gateway/internal/oidc"
	"github.com/hireloop/ats-gateway/internal/requestctx"
	"github.com/hireloop/ats-gateway/internal/sessions"
	"github.com/hireloop/ats-gateway/internal/users"
	"github.com/hireloop/ats-gateway/pkg/logger"
	"github.com/hireloop/ats-gateway/pkg/middleware"
)

// LoginProvider is the identity provider side of the interactive login.
// It is satisfied by *oidc.Provider and by test fakes.
type LoginProvider interface {
	AuthCodeURL(ctx context.Context, state, nonce string) (string, error)
	Exchange(ctx context.Context, code, nonce string) (*oidc.Identity, error)
}

// AuthHandler holds dependencies
type AuthHandler struct {
	provider   LoginProvider
	usersSvc   *users.Service
	sessions   *sessions.Service
	cookie     sessions.CookieConfig
	successURL string
	now        func() time.Time
}

func NewAuthHandler(p LoginProvider, u *users.Service, s *sessions.Service, cookie sessions.CookieConfig, successURL string) *AuthHandler {
	if successURL == "" {
		successURL = "/"
	}
	return &AuthHandler{provider: p, usersSvc: u, sessions: s, cookie: cookie, successURL: successURL, now: time.Now}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg gin.IRoutes) {
	rg.GET("/auth/login", h.Login)
	rg.GET("/auth/callback", h.Callback)
	rg.POST("/auth/logout", h.Logout)
	rg.GET("/auth/me", h.Me)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Login redirects to the identity provider. An already authenticated
// session goes straight to the success URL.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	sess := requestctx.Session(ctx)
	if sess.Authenticated() {
		c.Redirect(http.StatusFound, h.successURL)
		return
	}
	if h.provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login_unavailable"})
		return
	}

	var err error
	if sess == nil {
		if sess, err = h.sessions.New(); err != nil {
			_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
			return
		}
	}
	state, err := randomHex(16)
	if err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return
	}
	nonce, err := randomHex(16)
	if err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return
	}
	sess.LoginState, sess.LoginNonce = state, nonce

	target, err := h.provider.AuthCodeURL(ctx, state, nonce)
	if err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_unavailable", Err: err})
		return
	}
	if err := h.persist(c, sess); err != nil {
		return
	}
	c.Redirect(http.StatusFound, target)
}

// Callback completes the authorization-code flow.
func (h *AuthHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_code"})
		return
	}
	sess := requestctx.Session(ctx)
	state := c.Query("state")
	if sess == nil || sess.LoginState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(sess.LoginState)) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state"})
		return
	}
	if h.provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login_unavailable"})
		return
	}

	// state is single use, even when the exchange fails
	nonce := sess.LoginNonce
	sess.ClearLoginState()
	if err := h.sessions.Save(ctx, sess); err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return
	}

	id, err := h.provider.Exchange(ctx, code, nonce)
	if err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return
	}
	u, err := h.usersSvc.RecordLogin(ctx, id.Claims)
	if err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return
	}
	if err := sess.SetUser(u); err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return
	}
	sess.Claims = id.Claims
	sess.AccessToken = id.AccessToken
	sess.RefreshToken = id.RefreshToken

	if err := h.sessions.Rotate(ctx, sess); err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return
	}
	if err := h.persist(c, sess); err != nil {
		return
	}
	logger.L().Info().
		Str("principal", u.ID).
		Str("tenant", requestctx.TenantID(ctx)).
		Msg("login completed")
	c.Redirect(http.StatusFound, h.successURL)
}

// Logout destroys the session and clears the cookie with its issuing attributes.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.sessions.Destroy(ctx, requestctx.Session(ctx)); err != nil {
		_ = c.Error(err)
		return
	}
	h.cookie.Clear(c.Writer)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Me returns the logged-in principal.
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	sess := requestctx.Session(ctx)
	if !sess.Authenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": sess.User, "tenant": requestctx.TenantID(ctx)})
}

// persist saves sess and issues its cookie. Failures are attached to c.
func (h *AuthHandler) persist(c *gin.Context, sess *sessions.Session) error {
	if err := h.sessions.Save(c.Request.Context(), sess); err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return err
	}
	if err := h.cookie.Write(c.Writer, sess, h.now()); err != nil {
		_ = c.Error(&middleware.PublicError{Code: "login_failed", Err: err})
		return err
	}
	return nil
}
