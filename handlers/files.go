package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/ats-gateway/internal/requestctx"
	"github.com/hireloop/ats-gateway/internal/signedurl"
	"github.com/hireloop/ats-gateway/internal/storage"
	"github.com/hireloop/ats-gateway/pkg/logger"
	"github.com/hireloop/ats-gateway/pkg/middleware"
)

const (
	SignedFilesPath       = "/files-signed"
	defaultMaxUploadBytes = 25 << 20
)

// FilesHandler serves stored attachments to sessions and to holders of a
// signed capability URL.
type FilesHandler struct {
	store      storage.Backend
	codec      *signedurl.Codec
	defaultTTL time.Duration
	maxTTL     time.Duration
	maxUpload  int64
}

// NewFilesHandler accepts a nil codec; signing and signed downloads then fail per request.
func NewFilesHandler(store storage.Backend, codec *signedurl.Codec, defaultTTL, maxTTL time.Duration, maxUpload int64) *FilesHandler {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	if maxTTL < defaultTTL {
		maxTTL = defaultTTL
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &FilesHandler{store: store, codec: codec, defaultTTL: defaultTTL, maxTTL: maxTTL, maxUpload: maxUpload}
}

func (h *FilesHandler) Register(r gin.IRoutes) {
	r.GET("/files", h.Serve)
	r.GET("/files/*path", h.ServePath)
	r.GET(SignedFilesPath, h.ServeSigned)
	r.POST("/:app/api/ats/applications/:id/attachments", h.UploadAttachment)
}

// Serve streams the file named by ?key=.
func (h *FilesHandler) Serve(c *gin.Context) {
	h.stream(c, c.Query("key"))
}

// ServePath streams /files/<key>. /files/sign shares the wildcard and is dispatched here.
func (h *FilesHandler) ServePath(c *gin.Context) {
	p := c.Param("path")
	if p == "/sign" {
		h.Sign(c)
		return
	}
	key := strings.TrimPrefix(p, "/")
	if key == "" {
		key = c.Query("key")
	}
	h.stream(c, key)
}

// Sign issues a signed URL for ?key= (or the key inside ?url=) valid for ?ttl= seconds.
func (h *FilesHandler) Sign(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		key = keyFromURL(c.Query("url"))
	}
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_key"})
		return
	}
	if _, err := storage.CleanKey(key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sign_failed"})
		return
	}
	if h.codec == nil {
		logger.Warn("signed URL requested but no signing secret is configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign_failed"})
		return
	}
	tok := h.codec.Sign(key, h.ttl(c.Query("ttl")))
	c.JSON(http.StatusOK, gin.H{"ok": true, "url": tok.URL(SignedFilesPath), "key": key})
}

// ServeSigned streams a file for a valid, unexpired signed URL. No session is needed.
func (h *FilesHandler) ServeSigned(c *gin.Context) {
	key, exp, sig := c.Query("key"), c.Query("exp"), c.Query("sig")
	if h.codec == nil || !h.codec.Verify(key, exp, sig) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.stream(c, key)
}

// UploadAttachment stores the multipart "file" under
// <tenant>/applications/<id>/<name> and answers with a signed download URL.
func (h *FilesHandler) UploadAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_application_id"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}
	name := path.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_path"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}
	defer f.Close()

	tenantID := requestctx.TenantID(ctx)
	key, err := h.store.Save(ctx, fmt.Sprintf("%s/applications/%s/%s", tenantID, id, name), f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, storage.ErrBadPath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_path"})
			return
		}
		_ = c.Error(&middleware.PublicError{Code: "write_failed", Err: err})
		return
	}
	logger.L().Info().
		Str("tenant", tenantID).
		Str("key", key).
		Int64("size", fh.Size).
		Str("principal", requestctx.Principal(ctx)).
		Msg("attachment stored")

	resp := gin.H{"ok": true, "key": key}
	if h.codec != nil {
		resp["url"] = h.codec.Sign(key, h.defaultTTL).URL(SignedFilesPath)
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *FilesHandler) stream(c *gin.Context, key string) {
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_key"})
		return
	}
	obj, err := h.store.Open(c.Request.Context(), key)
	switch {
	case errors.Is(err, storage.ErrBadPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_path"})
		return
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case err != nil:
		logger.L().Error().Err(err).Str("key", key).Msg("file read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	defer obj.Body.Close()
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj.Body, map[string]string{
		"Content-Disposition": disposition(obj.Name),
	})
}

// ttl reads the requested lifetime in seconds. Absent or unparseable values
// get the default; explicit values are clamped to [1s, maxTTL].
func (h *FilesHandler) ttl(raw string) time.Duration {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return h.defaultTTL
	}
	if secs < 1 {
		secs = 1
	}
	d := time.Duration(secs) * time.Second
	if d > h.maxTTL {
		return h.maxTTL
	}
	return d
}

func disposition(name string) string {
	if name == "" {
		return "inline"
	}
	if v := mime.FormatMediaType("inline", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "inline"
}

// keyFromURL pulls the store key out of a /files?key=, /files/<key> or
// /files-signed?key= URL.
func keyFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if k := u.Query().Get("key"); k != "" {
		return k
	}
	if rest, ok := strings.CutPrefix(u.Path, "/files/"); ok && rest != "sign" {
		return rest
	}
	return ""
}
