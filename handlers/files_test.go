package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/ats-gateway/internal/signedurl"
	"github.com/hireloop/ats-gateway/internal/storage"
	"github.com/hireloop/ats-gateway/internal/tenant"
	"github.com/hireloop/ats-gateway/pkg/middleware"
)

type filesFixture struct {
	router *gin.Engine
	store  *storage.FileStore
	now    time.Time
}

func newFilesFixture(t *testing.T, withCodec bool) *filesFixture {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)
	_, err = store.Save(context.Background(), "ats/applications/7/cv.pdf", strings.NewReader("%PDF-1.4"), 8, "")
	require.NoError(t, err)

	f := &filesFixture{store: store, now: time.Unix(1_700_000_000, 0)}
	var codec *signedurl.Codec
	if withCodec {
		codec, err = signedurl.New("file-secret")
		require.NoError(t, err)
		codec = codec.WithClock(func() time.Time { return f.now })
	}

	r := gin.New()
	r.Use(middleware.ErrorHandler(), middleware.TenantMiddleware(tenant.NewResolver([]string{"ats", "acme"}, "ats"), nil))
	NewFilesHandler(store, codec, 15*time.Minute, time.Hour, 1<<20).Register(r)
	f.router = r
	return f
}

func (f *filesFixture) get(target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestServeFile(t *testing.T) {
	f := newFilesFixture(t, true)

	for _, target := range []string{"/files?key=ats/applications/7/cv.pdf", "/files/ats/applications/7/cv.pdf"} {
		w := f.get(target)
		require.Equal(t, http.StatusOK, w.Code, target)
		assert.Equal(t, "%PDF-1.4", w.Body.String())
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Equal(t, "8", w.Header().Get("Content-Length"))
		assert.Equal(t, `inline; filename=cv.pdf`, w.Header().Get("Content-Disposition"))
	}
}

func TestServeFileErrors(t *testing.T) {
	f := newFilesFixture(t, true)

	cases := []struct {
		target string
		code   int
		body   string
	}{
		{"/files", http.StatusBadRequest, `{"error":"missing_key"}`},
		{"/files?key=../../etc/passwd", http.StatusBadRequest, `{"error":"bad_path"}`},
		{"/files?key=ats/applications/7/missing.pdf", http.StatusNotFound, `{"error":"not_found"}`},
		{"/files?key=ats/applications/7", http.StatusNotFound, `{"error":"not_found"}`},
	}
	for _, tc := range cases {
		w := f.get(tc.target)
		assert.Equal(t, tc.code, w.Code, tc.target)
		assert.JSONEq(t, tc.body, w.Body.String(), tc.target)
	}
}

func signURL(t *testing.T, f *filesFixture, query string) string {
	t.Helper()
	w := f.get("/files/sign?" + query)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		OK  bool   `json:"ok"`
		URL string `json:"url"`
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "ats/applications/7/cv.pdf", body.Key)
	return body.URL
}

func TestSignedURLLifecycle(t *testing.T) {
	f := newFilesFixture(t, true)
	signed := signURL(t, f, "key=ats/applications/7/cv.pdf&ttl=1")
	assert.True(t, strings.HasPrefix(signed, SignedFilesPath+"?"))

	w := f.get(signed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	f.now = f.now.Add(2 * time.Second)
	w = f.get(signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
}

func TestSignFromURL(t *testing.T) {
	f := newFilesFixture(t, true)
	signed := signURL(t, f, "url="+url.QueryEscape("/files/ats/applications/7/cv.pdf"))
	assert.Equal(t, http.StatusOK, f.get(signed).Code)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	f := newFilesFixture(t, true)
	u, err := url.Parse(signURL(t, f, "key=ats/applications/7/cv.pdf"))
	require.NoError(t, err)

	q := u.Query()
	q.Set("key", "acme/applications/7/cv.pdf")
	assert.Equal(t, http.StatusUnauthorized, f.get(SignedFilesPath+"?"+q.Encode()).Code)

	q = u.Query()
	exp, _ := strconv.ParseInt(q.Get("exp"), 10, 64)
	q.Set("exp", strconv.FormatInt(exp+3600, 10))
	assert.Equal(t, http.StatusUnauthorized, f.get(SignedFilesPath+"?"+q.Encode()).Code)

	assert.Equal(t, http.StatusUnauthorized, f.get(SignedFilesPath+"?key=ats/applications/7/cv.pdf").Code)
}

func TestSignTTLIsCapped(t *testing.T) {
	f := newFilesFixture(t, true)
	u, err := url.Parse(signURL(t, f, "key=ats/applications/7/cv.pdf&ttl=999999"))
	require.NoError(t, err)
	exp, err := strconv.ParseInt(u.Query().Get("exp"), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, f.now.Unix()+3600, exp)
}

func TestSignTTLIsClampedToOneSecond(t *testing.T) {
	f := newFilesFixture(t, true)
	for query, want := range map[string]int64{
		"ttl=0":   1,
		"ttl=-30": 1,
		"ttl=abc": 900,
		"ttl=":    900,
		"other=1": 900,
		"ttl=120": 120,
	} {
		u, err := url.Parse(signURL(t, f, "key=ats/applications/7/cv.pdf&"+query))
		require.NoError(t, err)
		exp, err := strconv.ParseInt(u.Query().Get("exp"), 10, 64)
		require.NoError(t, err)
		assert.Equal(t, f.now.Unix()+want, exp, query)
	}
}

func TestSignFailures(t *testing.T) {
	f := newFilesFixture(t, true)
	w := f.get("/files/sign?key=../secret")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"sign_failed"}`, w.Body.String())

	w = f.get("/files/sign")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	noSecret := newFilesFixture(t, false)
	w = noSecret.get("/files/sign?key=ats/applications/7/cv.pdf")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"sign_failed"}`, w.Body.String())
	assert.Equal(t, http.StatusUnauthorized, noSecret.get(SignedFilesPath+"?key=a&exp=1&sig=x").Code)
}

func uploadRequest(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAttachment(t *testing.T) {
	f := newFilesFixture(t, true)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, uploadRequest(t, "/acme/api/ats/applications/42/attachments", "C:\\Users\\ada\\letter.txt", "hello"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		OK  bool   `json:"ok"`
		Key string `json:"key"`
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "acme/applications/42/letter.txt", body.Key)

	got := f.get(body.URL)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "hello", got.Body.String())
}

func TestUploadAttachmentRejects(t *testing.T) {
	f := newFilesFixture(t, true)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, uploadRequest(t, "/ats/api/ats/applications/abc/attachments", "a.txt", "x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ats/api/ats/applications/1/attachments", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"missing_file"}`, w.Body.String())

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, uploadRequest(t, "/ats/api/ats/applications/1/attachments", "big.bin", strings.Repeat("x", 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
