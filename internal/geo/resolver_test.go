package geo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threat-analyzer/internal/cache"
	"threat-analyzer/internal/config"
	"threat-analyzer/internal/model"
)

// fakeProvider counts lookups and can be told to fail per IP.
type fakeProvider struct {
	calls atomic.Int64
	delay time.Duration

	mu       sync.Mutex
	failWith map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{failWith: make(map[string]error)}
}

func (p *fakeProvider) failNext(ip string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith[ip] = err
}

func (p *fakeProvider) Lookup(ctx context.Context, ip string) (*model.GeoRecord, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ErrLookupTimeout
		}
	}

	p.mu.Lock()
	err, failing := p.failWith[ip]
	delete(p.failWith, ip)
	p.mu.Unlock()
	if failing {
		return nil, err
	}

	return &model.GeoRecord{
		IP:          ip,
		Country:     "Netherlands",
		CountryCode: "NL",
		Region:      "North Holland",
		City:        "Amsterdam",
		ResolvedAt:  time.Now(),
	}, nil
}

func testConfig() config.GeoConfig {
	return config.GeoConfig{
		Enabled:           true,
		TimeoutSeconds:    2,
		OverallTimeoutSec: 10,
		Workers:           4,
		HighRiskCountries: []string{"CN", "RU"},
	}
}

func newTestResolver(provider Provider, ttl time.Duration) *Resolver {
	hybrid := cache.NewHybrid(cache.NewMemoryTier(100), nil, ttl)
	return NewResolver(testConfig(), hybrid, provider)
}

func TestResolver_CachesSuccessfulLookup(t *testing.T) {
	provider := newFakeProvider()
	resolver := newTestResolver(provider, time.Hour)

	record, ok := resolver.Resolve(context.Background(), "203.0.113.5")
	require.True(t, ok)
	assert.Equal(t, "NL", record.CountryCode)
	assert.False(t, record.TTLExpiry.IsZero())

	// Second resolve is a memory hit, no new external call.
	_, ok = resolver.Resolve(context.Background(), "203.0.113.5")
	require.True(t, ok)
	assert.Equal(t, int64(1), provider.calls.Load())

	stats := resolver.Stats()
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.ExternalCalls)
}

func TestResolver_ConcurrentCallersCoalesce(t *testing.T) {
	provider := newFakeProvider()
	provider.delay = 50 * time.Millisecond
	resolver := newTestResolver(provider, time.Hour)

	const callers = 20
	var wg sync.WaitGroup
	var resolved atomic.Int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := resolver.Resolve(context.Background(), "203.0.113.5"); ok {
				resolved.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(callers), resolved.Load())
	assert.Equal(t, int64(1), provider.calls.Load(), "concurrent lookups must coalesce onto one call")
}

func TestResolver_ExpiredRecordTriggersNewLookup(t *testing.T) {
	provider := newFakeProvider()
	resolver := newTestResolver(provider, 30*time.Millisecond)

	_, ok := resolver.Resolve(context.Background(), "203.0.113.5")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok = resolver.Resolve(context.Background(), "203.0.113.5")
	require.True(t, ok)
	assert.Equal(t, int64(2), provider.calls.Load(), "expired entry must be re-resolved")
}

func TestResolver_PrivateRangesNeverReachProvider(t *testing.T) {
	provider := newFakeProvider()
	resolver := newTestResolver(provider, time.Hour)

	for _, ip := range []string{"10.1.2.3", "172.16.0.9", "192.168.1.50", "127.0.0.1", "169.254.0.1", "0.0.0.0"} {
		record, ok := resolver.Resolve(context.Background(), ip)
		require.True(t, ok, "private address %s must resolve synthetically", ip)
		assert.True(t, record.IsPrivate)
		assert.Equal(t, "--", record.CountryCode)
	}

	assert.Equal(t, int64(0), provider.calls.Load())
	assert.Equal(t, int64(6), resolver.Stats().PrivateSkips)
}

func TestResolver_UnparseableInputTreatedAsPrivate(t *testing.T) {
	provider := newFakeProvider()
	resolver := newTestResolver(provider, time.Hour)

	record, ok := resolver.Resolve(context.Background(), "not-an-ip")
	require.True(t, ok)
	assert.True(t, record.IsPrivate)
	assert.Equal(t, int64(0), provider.calls.Load())
}

func TestResolver_FailureIsNotCached(t *testing.T) {
	provider := newFakeProvider()
	resolver := newTestResolver(provider, time.Hour)

	provider.failNext("203.0.113.5", ErrLookupTimeout)

	_, ok := resolver.Resolve(context.Background(), "203.0.113.5")
	assert.False(t, ok, "timed-out lookup is unresolved")
	assert.Equal(t, int64(1), resolver.Stats().Timeouts)

	// The failure was not cached: a later attempt calls the provider again
	// and succeeds.
	record, ok := resolver.Resolve(context.Background(), "203.0.113.5")
	require.True(t, ok)
	assert.Equal(t, "NL", record.CountryCode)
	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestResolver_FailureTaxonomyCounters(t *testing.T) {
	provider := newFakeProvider()
	resolver := newTestResolver(provider, time.Hour)

	cases := []error{ErrConnection, ErrHTTPStatus, ErrDecode, ErrAPIFailure}
	ips := []string{"198.51.100.1", "198.51.100.2", "198.51.100.3", "198.51.100.4"}
	for i, err := range cases {
		ip := ips[i]
		provider.failNext(ip, err)
		_, ok := resolver.Resolve(context.Background(), ip)
		assert.False(t, ok)
	}

	stats := resolver.Stats()
	assert.Equal(t, int64(1), stats.ConnectFailures)
	assert.Equal(t, int64(1), stats.HTTPErrors)
	assert.Equal(t, int64(1), stats.DecodeFailures)
	assert.Equal(t, int64(1), stats.OtherFailures)
}

func TestResolver_AbandonedCallerIsUnresolved(t *testing.T) {
	provider := newFakeProvider()
	provider.delay = 200 * time.Millisecond
	resolver := newTestResolver(provider, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := resolver.Resolve(ctx, "203.0.113.5")
	assert.False(t, ok, "caller whose context expires gets unresolved")

	// The detached lookup finishes on its own and populates the cache.
	time.Sleep(300 * time.Millisecond)
	_, ok = resolver.Resolve(context.Background(), "203.0.113.5")
	require.True(t, ok)
	assert.Equal(t, int64(1), provider.calls.Load(), "late result should have been cached")
}

func TestResolver_ResolveAll(t *testing.T) {
	provider := newFakeProvider()
	resolver := newTestResolver(provider, time.Hour)

	provider.failNext("198.51.100.7", ErrConnection)

	ips := []string{"203.0.113.5", "10.0.0.1", "198.51.100.7", "203.0.113.5"}
	results := resolver.ResolveAll(context.Background(), ips)

	require.Len(t, results, 3, "duplicates collapse")
	require.NotNil(t, results["203.0.113.5"])
	assert.Equal(t, "NL", results["203.0.113.5"].CountryCode)
	require.NotNil(t, results["10.0.0.1"])
	assert.True(t, results["10.0.0.1"].IsPrivate)
	assert.Nil(t, results["198.51.100.7"], "failed lookup is present and nil")
}

func TestResolver_ResolveAllEmpty(t *testing.T) {
	resolver := newTestResolver(newFakeProvider(), time.Hour)
	results := resolver.ResolveAll(context.Background(), nil)
	assert.Empty(t, results)
}
