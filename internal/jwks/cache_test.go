package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jwksDoc(t *testing.T, keys map[string]any) []byte {
	t.Helper()
	set := jwk.NewSet()
	for kid, raw := range keys {
		key, err := jwk.FromRaw(raw)
		require.NoError(t, err)
		require.NoError(t, key.Set(jwk.KeyIDKey, kid))
		require.NoError(t, set.AddKey(key))
	}
	body, err := json.Marshal(set)
	require.NoError(t, err)
	return body
}

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

type fakeFetcher struct {
	mu      sync.Mutex
	body    []byte
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body, f.err
}

func (f *fakeFetcher) set(body []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.err = body, err
}

func TestCacheServesFreshEntryWithoutFetching(t *testing.T) {
	key := rsaKey(t)
	f := &fakeFetcher{body: jwksDoc(t, map[string]any{"k1": &key.PublicKey})}
	clock := clockwork.NewFakeClock()
	c := NewCache(f, CacheConfig{TTL: time.Hour, Clock: clock})
	ctx := context.Background()

	first, err := c.Get(ctx)
	require.NoError(t, err)
	second, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), f.calls.Load())

	pub, ok := first.Lookup("k1")
	require.True(t, ok)
	assert.Equal(t, key.PublicKey.N, pub.N)

	clock.Advance(59 * time.Minute)
	_, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())

	clock.Advance(2 * time.Minute)
	third, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
	assert.NotSame(t, first, third)
	assert.Equal(t, clock.Now(), third.FetchedAt)
}

func TestCacheFailureKeepsPreviousEntry(t *testing.T) {
	key := rsaKey(t)
	f := &fakeFetcher{body: jwksDoc(t, map[string]any{"k1": &key.PublicKey})}
	clock := clockwork.NewFakeClock()
	c := NewCache(f, CacheConfig{TTL: time.Hour, Clock: clock})
	ctx := context.Background()

	prev, err := c.Get(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	f.set(nil, errors.New("connection reset"))

	_, err = c.Get(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Same(t, prev, c.current())

	f.set([]byte("not json"), nil)
	_, err = c.Get(ctx)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Same(t, prev, c.current())
}

func TestCacheCollapsesConcurrentFetches(t *testing.T) {
	key := rsaKey(t)
	f := &fakeFetcher{
		body:    jwksDoc(t, map[string]any{"k1": &key.PublicKey}),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := NewCache(f, CacheConfig{Clock: clockwork.NewFakeClock()})

	var wg sync.WaitGroup
	results := make([]*KeySet, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set, err := c.Get(context.Background())
			assert.NoError(t, err)
			results[i] = set
		}(i)
	}

	<-f.started
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, set := range results {
		assert.Same(t, results[0], set)
	}
}

func TestCacheCancelledCallerReturnsEarly(t *testing.T) {
	key := rsaKey(t)
	f := &fakeFetcher{
		body:    jwksDoc(t, map[string]any{"k1": &key.PublicKey}),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := NewCache(f, CacheConfig{Clock: clockwork.NewFakeClock()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx)
		done <- err
	}()
	<-f.started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Nil(t, c.current())

	close(f.release)
	var set *KeySet
	require.Eventually(t, func() bool {
		var err error
		set, err = c.Get(context.Background())
		return err == nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, set.Len())
}

func TestCacheCancelledCallerDoesNotFailOthers(t *testing.T) {
	key := rsaKey(t)
	f := &fakeFetcher{
		body:    jwksDoc(t, map[string]any{"k1": &key.PublicKey}),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := NewCache(f, CacheConfig{Clock: clockwork.NewFakeClock()})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Get(ctxA)
		errA <- err
	}()
	<-f.started

	type result struct {
		set *KeySet
		err error
	}
	resB := make(chan result, 1)
	go func() {
		set, err := c.Get(context.Background())
		resB <- result{set, err}
	}()
	// let the second caller join the in-flight fetch
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(f.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 1, b.set.Len())
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Same(t, b.set, c.current())
}

func TestCacheFetchTimeoutKeepsPreviousEntry(t *testing.T) {
	key := rsaKey(t)
	f := &fakeFetcher{body: jwksDoc(t, map[string]any{"k1": &key.PublicKey})}
	clock := clockwork.NewFakeClock()
	c := NewCache(f, CacheConfig{TTL: time.Hour, FetchTimeout: 50 * time.Millisecond, Clock: clock})

	prev, err := c.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	f.release = make(chan struct{})
	_, err = c.Get(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Same(t, prev, c.current())
}

func TestCacheRefreshIsRateLimited(t *testing.T) {
	oldKey, newKey := rsaKey(t), rsaKey(t)
	f := &fakeFetcher{body: jwksDoc(t, map[string]any{"old": &oldKey.PublicKey})}
	clock := clockwork.NewFakeClock()
	c := NewCache(f, CacheConfig{TTL: time.Hour, MinRefreshInterval: 30 * time.Second, Clock: clock})
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)

	f.set(jwksDoc(t, map[string]any{"old": &oldKey.PublicKey, "new": &newKey.PublicKey}), nil)

	set, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
	_, ok := set.Lookup("new")
	assert.False(t, ok)

	clock.Advance(31 * time.Second)
	set, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
	_, ok = set.Lookup("new")
	assert.True(t, ok)
}

func TestParseKeySetSkipsUnusableKeys(t *testing.T) {
	rsaPriv := rsaKey(t)
	ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	body := jwksDoc(t, map[string]any{
		"rsa": &rsaPriv.PublicKey,
		"ec":  &ecPriv.PublicKey,
		"oct": []byte("shared-secret"),
	})
	now := time.Now()
	set, err := ParseKeySet(body, now)
	require.NoError(t, err)

	assert.Equal(t, 1, set.Len())
	assert.Equal(t, now, set.FetchedAt)
	_, ok := set.Lookup("ec")
	assert.False(t, ok)

	_, err = ParseKeySet([]byte("{"), now)
	assert.Error(t, err)

	var nilSet *KeySet
	_, ok = nilSet.Lookup("rsa")
	assert.False(t, ok)
	assert.Zero(t, nilSet.Len())
}

func TestHTTPFetcher(t *testing.T) {
	key := rsaKey(t)
	body := jwksDoc(t, map[string]any{"k1": &key.PublicKey})

	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		if r.URL.Path != "/auth/v1/keys" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/auth/v1/keys", "anon", srv.Client())
	got, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(got))
	assert.Equal(t, "anon", gotKey)

	missing := NewHTTPFetcher(srv.URL+"/nope", "", srv.Client())
	_, err = missing.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
