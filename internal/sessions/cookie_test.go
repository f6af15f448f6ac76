package sessions

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieEncodeDecode(t *testing.T) {
	c := CookieConfig{Secret: "k1"}
	v, err := c.Encode("abc")
	require.NoError(t, err)

	id, ok := c.Decode(v)
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = c.Decode("abd" + v[3:])
	assert.False(t, ok)
	_, ok = CookieConfig{Secret: "k2"}.Decode(v)
	assert.False(t, ok)
	_, ok = c.Decode("no-signature")
	assert.False(t, ok)

	_, err = CookieConfig{}.Encode("abc")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestCookieWriteAndClearShareAttributes(t *testing.T) {
	now := time.Now()
	sess := &Session{ID: "abc", ExpiresAt: now.Add(4 * time.Hour)}

	for _, cfg := range []CookieConfig{
		{Secret: "k"},
		{Secret: "k", Secure: true},
		{Secret: "k", CrossSite: true},
	} {
		w := httptest.NewRecorder()
		require.NoError(t, cfg.Write(w, sess, now))
		cfg.Clear(w)
		cookies := (&http.Response{Header: w.Header()}).Cookies()
		require.Len(t, cookies, 2)
		issued, cleared := cookies[0], cookies[1]

		assert.Equal(t, DefaultCookieName, issued.Name)
		assert.Equal(t, 4*60*60, issued.MaxAge)
		assert.True(t, issued.HttpOnly)
		assert.Equal(t, "/", issued.Path)
		assert.Equal(t, cfg.Secure || cfg.CrossSite, issued.Secure)
		if cfg.CrossSite {
			assert.Equal(t, http.SameSiteNoneMode, issued.SameSite)
		} else {
			assert.Equal(t, http.SameSiteLaxMode, issued.SameSite)
		}

		assert.Equal(t, issued.Name, cleared.Name)
		assert.Equal(t, issued.Path, cleared.Path)
		assert.Equal(t, issued.HttpOnly, cleared.HttpOnly)
		assert.Equal(t, issued.Secure, cleared.Secure)
		assert.Equal(t, issued.SameSite, cleared.SameSite)
		assert.Equal(t, -1, cleared.MaxAge)
		assert.Empty(t, cleared.Value)
	}
}

func TestCookieRead(t *testing.T) {
	c := CookieConfig{Secret: "k"}
	v, err := c.Encode("sid")
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: v})
	id, ok := c.Read(r)
	assert.True(t, ok)
	assert.Equal(t, "sid", id)

	_, ok = c.Read(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
