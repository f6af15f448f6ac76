// Package signedurl mints and checks time-limited HMAC capability URLs for
// stored files. Tokens are stateless: the signature covers the key and the
// expiry, so any replica holding the same secret can verify them.
package signedurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/hireloop/ats-gateway/pkg/metrics"
)

var ErrNoSecret = errors.New("signing secret not configured")

// Token is the (key, exp, sig) triple carried in a signed URL.
type Token struct {
	Key string
	Exp int64
	Sig string
}

// URL renders the token as base?key=..&exp=..&sig=..
func (t Token) URL(base string) string {
	q := url.Values{}
	q.Set("key", t.Key)
	q.Set("exp", strconv.FormatInt(t.Exp, 10))
	q.Set("sig", t.Sig)
	return base + "?" + q.Encode()
}

type Codec struct {
	secret []byte
	now    func() time.Time
}

func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// WithClock replaces the time source.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Canonical is the string the signature covers.
func Canonical(key string, exp int64) string {
	return "key=" + url.QueryEscape(key) + "&exp=" + strconv.FormatInt(exp, 10)
}

func (c *Codec) mac(key string, exp int64) string {
	m := hmac.New(sha256.New, c.secret)
	m.Write([]byte(Canonical(key, exp)))
	return hex.EncodeToString(m.Sum(nil))
}

// Sign issues a token for key valid for ttl (at least one second).
func (c *Codec) Sign(key string, ttl time.Duration) Token {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	exp := c.now().Unix() + secs
	return Token{Key: key, Exp: exp, Sig: c.mac(key, exp)}
}

// Verify reports whether sig is a current signature for key and exp.
// A token stays valid through its exp second and fails afterwards.
func (c *Codec) Verify(key, exp, sig string) bool {
	ok, result := c.verify(key, exp, sig)
	metrics.SignedURLVerifications.WithLabelValues(result).Inc()
	return ok
}

func (c *Codec) verify(key, exp, sig string) (bool, string) {
	if key == "" || exp == "" || sig == "" {
		return false, "missing"
	}
	e, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return false, "malformed"
	}
	if c.now().Unix() > e {
		return false, "expired"
	}
	want := c.mac(key, e)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return false, "bad_signature"
	}
	return true, "ok"
}
