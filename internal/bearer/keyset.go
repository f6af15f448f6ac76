package bearer

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hireloop/ats-gateway/pkg/logger"
	"github.com/hireloop/ats-gateway/pkg/metrics"
)

var (
	ErrKeyNotFound  = errors.New("signing key not found")
	ErrFetchLimited = errors.New("key set fetch rate exceeded")
)

// KeySetConfig configures a remote JWKS cache.
type KeySetConfig struct {
	URL string
	// MaxKeys bounds the number of cached keys. Default: 16.
	MaxKeys int
	// MaxAge bounds how long a fetched key is trusted. Default: 10h.
	MaxAge time.Duration
	// FetchesPerMinute bounds outbound requests to URL. Default: 10.
	FetchesPerMinute int
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

func (c *KeySetConfig) applyDefaults() {
	if c.MaxKeys <= 0 {
		c.MaxKeys = 16
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 10 * time.Hour
	}
	if c.FetchesPerMinute <= 0 {
		c.FetchesPerMinute = 10
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

type cachedKey struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// KeySet caches RSA signing keys from a JWKS endpoint. It is safe for
// concurrent use; construct one per process and share it. Lookups of cached
// keys never wait on a remote fetch, and concurrent misses for the same kid
// share one fetch.
type KeySet struct {
	cfg     KeySetConfig
	limiter *rate.Limiter
	now     func() time.Time
	group   singleflight.Group

	mu    sync.RWMutex
	keys  map[string]cachedKey
	order []string // insertion order, oldest first
}

func NewKeySet(cfg KeySetConfig) *KeySet {
	cfg.applyDefaults()
	return &KeySet{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.FetchesPerMinute)), cfg.FetchesPerMinute),
		now:     time.Now,
		keys:    make(map[string]cachedKey),
	}
}

// Key returns the public key for kid, fetching the key set when kid is
// unknown or its cached copy is too old.
func (s *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := s.lookup(kid); ok {
		return k, nil
	}
	if s.cfg.URL == "" {
		return nil, fmt.Errorf("key set url not configured")
	}

	v, err, _ := s.group.Do(kid, func() (interface{}, error) {
		// a flight that finished just before this one may already hold kid
		if k, ok := s.lookup(kid); ok {
			return map[string]*rsa.PublicKey{kid: k}, nil
		}
		if !s.limiter.Allow() {
			metrics.JWKSFetches.WithLabelValues("limited").Inc()
			return nil, ErrFetchLimited
		}
		// callers share this fetch, so it is detached from the leader's
		// cancellation and bounded by the client timeout instead
		fetched, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			metrics.JWKSFetches.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.JWKSFetches.WithLabelValues("ok").Inc()
		s.store(fetched, kid)
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	if k, ok := v.(map[string]*rsa.PublicKey)[kid]; ok {
		return k, nil
	}
	if k, ok := s.lookup(kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Len returns the number of cached keys.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func (s *KeySet) lookup(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[kid]
	if !ok || s.now().Sub(k.fetchedAt) >= s.cfg.MaxAge {
		return nil, false
	}
	return k.key, true
}

// fetch downloads and parses the key set. It holds no lock.
func (s *KeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating key set request: %w", err)
	}
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching key set: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key set endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading key set: %w", err)
	}

	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing key set: %w", err)
	}

	out := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(raw); err != nil {
			logger.L().Warn().Err(err).Msg("skipping unparseable key set entry")
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		pub, ok := jwk.Key.(*rsa.PublicKey)
		if !ok || jwk.KeyID == "" {
			continue
		}
		out[jwk.KeyID] = pub
	}
	return out, nil
}

// store caches fetched keys and trims the cache, keeping want.
func (s *KeySet) store(fetched map[string]*rsa.PublicKey, want string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for kid, pub := range fetched {
		s.put(kid, cachedKey{key: pub, fetchedAt: now})
	}
	s.evict(want)
	logger.L().Debug().Int("keys", len(s.keys)).Str("url", s.cfg.URL).Msg("key set refreshed")
}

func (s *KeySet) put(kid string, k cachedKey) {
	if _, ok := s.keys[kid]; ok {
		for i, id := range s.order {
			if id == kid {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.keys[kid] = k
	s.order = append(s.order, kid)
}

// evict drops the oldest entries above MaxKeys, never the key just asked for.
func (s *KeySet) evict(keep string) {
	for len(s.keys) > s.cfg.MaxKeys {
		idx := -1
		for i, id := range s.order {
			if id != keep {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		delete(s.keys, s.order[idx])
		s.order = append(s.order[:idx], s.order[idx+1:]...)
	}
}
