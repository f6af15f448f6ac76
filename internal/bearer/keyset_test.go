package bearer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySetCachesKeys(t *testing.T) {
	var fetches atomic.Int32
	srv := keyServer(t, map[string]*rsa.PrivateKey{testKID: testKey}, &fetches)
	ks := NewKeySet(KeySetConfig{URL: srv.URL})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := ks.Key(context.Background(), testKID)
			assert.NoError(t, err)
			assert.Equal(t, testKey.PublicKey.N, k.N)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fetches.Load())
}

func TestKeySetRefetchesAfterMaxAge(t *testing.T) {
	var fetches atomic.Int32
	srv := keyServer(t, map[string]*rsa.PrivateKey{testKID: testKey}, &fetches)
	ks := NewKeySet(KeySetConfig{URL: srv.URL, MaxAge: time.Hour})
	now := time.Now()
	ks.now = func() time.Time { return now }

	_, err := ks.Key(context.Background(), testKID)
	require.NoError(t, err)
	now = now.Add(59 * time.Minute)
	_, err = ks.Key(context.Background(), testKID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load())

	now = now.Add(2 * time.Minute)
	_, err = ks.Key(context.Background(), testKID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestKeySetUnknownKidIsRateLimited(t *testing.T) {
	var fetches atomic.Int32
	srv := keyServer(t, map[string]*rsa.PrivateKey{testKID: testKey}, &fetches)
	ks := NewKeySet(KeySetConfig{URL: srv.URL, FetchesPerMinute: 2})

	_, err := ks.Key(context.Background(), "nope-1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = ks.Key(context.Background(), "nope-2")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = ks.Key(context.Background(), "nope-3")
	assert.ErrorIs(t, err, ErrFetchLimited)
	assert.Equal(t, int32(2), fetches.Load())

	// cached keys are still served while fetching is limited
	k, err := ks.Key(context.Background(), testKID)
	require.NoError(t, err)
	assert.NotNil(t, k)
}

func TestKeySetBoundedSize(t *testing.T) {
	keys := map[string]*rsa.PrivateKey{}
	for i := 0; i < 5; i++ {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		keys[fmt.Sprintf("k%d", i)] = k
	}
	srv := keyServer(t, keys, nil)
	ks := NewKeySet(KeySetConfig{URL: srv.URL, MaxKeys: 2})

	for kid := range keys {
		k, err := ks.Key(context.Background(), kid)
		require.NoError(t, err, kid)
		assert.Equal(t, keys[kid].PublicKey.N, k.N)
		assert.LessOrEqual(t, ks.Len(), 2)
	}
}

func TestKeySetSkipsNonSigningKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"keys":[{"kty":"oct","kid":"sym","k":"c2VjcmV0"},{"kty":"bogus"}]}`)
	}))
	defer srv.Close()
	ks := NewKeySet(KeySetConfig{URL: srv.URL})
	_, err := ks.Key(context.Background(), "sym")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 0, ks.Len())
}

func TestKeySetCachedLookupDoesNotWaitOnFetch(t *testing.T) {
	var fetches atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) > 1 {
			close(started)
			<-release
		}
		set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: &testKey.PublicKey, KeyID: testKID, Algorithm: "RS256", Use: "sig"}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()
	ks := NewKeySet(KeySetConfig{URL: srv.URL})

	_, err := ks.Key(context.Background(), testKID)
	require.NoError(t, err)

	slow := make(chan error, 1)
	go func() {
		_, err := ks.Key(context.Background(), "rotated-kid")
		slow <- err
	}()
	<-started

	done := make(chan struct{})
	go func() {
		k, err := ks.Key(context.Background(), testKID)
		assert.NoError(t, err)
		assert.NotNil(t, k)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cached kid lookup waited on another kid's fetch")
	}

	close(release)
	assert.ErrorIs(t, <-slow, ErrKeyNotFound)
	assert.Equal(t, int32(2), fetches.Load())
}
