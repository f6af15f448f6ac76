package sessions

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

const DefaultCookieName = "ats.sid"

var ErrNoSecret = errors.New("session secret not configured")

// CookieConfig is the attribute set the session cookie is issued and cleared with.
type CookieConfig struct {
	Name   string
	Secret string
	// Secure is forced on when CrossSite is set.
	Secure    bool
	CrossSite bool
	Path      string
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

func (c CookieConfig) sameSite() http.SameSite {
	if c.CrossSite {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c CookieConfig) mac(id string) string {
	m := hmac.New(sha256.New, []byte(c.Secret))
	m.Write([]byte(id))
	return hex.EncodeToString(m.Sum(nil))
}

// Encode returns "<id>.<hmac(id)>".
func (c CookieConfig) Encode(id string) (string, error) {
	if c.Secret == "" {
		return "", ErrNoSecret
	}
	return id + "." + c.mac(id), nil
}

// Decode returns the session id from a cookie value when its signature holds.
func (c CookieConfig) Decode(value string) (string, bool) {
	if c.Secret == "" {
		return "", false
	}
	i := strings.LastIndexByte(value, '.')
	if i <= 0 {
		return "", false
	}
	id, sig := value[:i], value[i+1:]
	if !hmac.Equal([]byte(c.mac(id)), []byte(sig)) {
		return "", false
	}
	return id, true
}

// Read returns the session id carried by r, if any.
func (c CookieConfig) Read(r *http.Request) (string, bool) {
	ck, err := r.Cookie(c.name())
	if err != nil {
		return "", false
	}
	return c.Decode(ck.Value)
}

// Write issues the cookie for s. It expires with the session.
func (c CookieConfig) Write(w http.ResponseWriter, s *Session, now time.Time) error {
	v, err := c.Encode(s.ID)
	if err != nil {
		return err
	}
	maxAge := int(s.ExpiresAt.Sub(now) / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, c.cookie(v, maxAge, s.ExpiresAt))
	return nil
}

// Clear removes the cookie using the same attributes it was issued with.
func (c CookieConfig) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1, time.Unix(0, 0)))
}

func (c CookieConfig) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     c.name(),
		Value:    value,
		Path:     c.path(),
		MaxAge:   maxAge,
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   c.Secure || c.CrossSite,
		SameSite: c.sameSite(),
	}
}
