// Package geo resolves origin addresses to locations through a two-tier
// cache and flags geographically anomalous origins.
package geo

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"threat-analyzer/internal/bucketing"
	"threat-analyzer/internal/cache"
	"threat-analyzer/internal/config"
	"threat-analyzer/internal/model"
	"threat-analyzer/internal/util"
)

// Resolver answers resolve(ip) -> GeoRecord | unresolved. It never returns
// an error to callers: every lookup failure degrades to unresolved and is
// accounted for in the stats.
type Resolver struct {
	cfg      config.GeoConfig
	cache    *cache.Hybrid
	provider Provider
	shards   *bucketing.Manager
	group    singleflight.Group

	memoryHits      atomic.Int64
	distributedHits atomic.Int64
	misses          atomic.Int64
	coalesced       atomic.Int64
	externalCalls   atomic.Int64
	privateSkips    atomic.Int64
	timeouts        atomic.Int64
	connectFailures atomic.Int64
	httpErrors      atomic.Int64
	decodeFailures  atomic.Int64
	otherFailures   atomic.Int64
}

func NewResolver(cfg config.GeoConfig, hybrid *cache.Hybrid, provider Provider) *Resolver {
	return &Resolver{
		cfg:      cfg,
		cache:    hybrid,
		provider: provider,
		shards:   bucketing.NewManager(cfg.Workers),
	}
}

// Resolve returns the record for ip, or (nil, false) when unresolved.
// Concurrent callers for the same ip coalesce onto a single external call;
// a caller whose context expires while the call is in flight abandons it,
// and the late result may still populate the cache (records are immutable
// once created, so this is safe).
func (r *Resolver) Resolve(ctx context.Context, ip string) (*model.GeoRecord, bool) {
	if isPrivate(ip) {
		r.privateSkips.Add(1)
		return syntheticPrivateRecord(ip), true
	}

	if record, tier := r.cache.Get(ctx, ip); record != nil {
		switch tier {
		case cache.TierMemory:
			r.memoryHits.Add(1)
		case cache.TierDistributed:
			r.distributedHits.Add(1)
		}
		return record, true
	}
	r.misses.Add(1)

	ch := r.group.DoChan(ip, func() (interface{}, error) {
		return r.lookupAndCache(ip)
	})

	select {
	case res := <-ch:
		if res.Shared {
			r.coalesced.Add(1)
		}
		if res.Err != nil {
			return nil, false
		}
		return res.Val.(*model.GeoRecord), true
	case <-ctx.Done():
		// Abandoned: the in-flight goroutine finishes on its own and may
		// still populate the cache.
		return nil, false
	}
}

// lookupAndCache runs detached from any caller context so an abandoned
// lookup can still complete within its own per-call timeout.
func (r *Resolver) lookupAndCache(ip string) (*model.GeoRecord, error) {
	// A waiter queued behind a completed flight may find the record cached.
	if record, _ := r.cache.Get(context.Background(), ip); record != nil {
		return record, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.LookupTimeout())
	defer cancel()

	r.externalCalls.Add(1)
	record, err := r.provider.Lookup(ctx, ip)
	if err != nil {
		r.recordFailure(ip, err)
		return nil, err
	}

	record.TTLExpiry = record.ResolvedAt.Add(r.cache.TTL())
	// Negative results are never cached; only a success reaches this point.
	r.cache.Set(context.Background(), ip, record)
	return record, nil
}

func (r *Resolver) recordFailure(ip string, err error) {
	switch {
	case errors.Is(err, ErrLookupTimeout):
		r.timeouts.Add(1)
	case errors.Is(err, ErrConnection):
		r.connectFailures.Add(1)
	case errors.Is(err, ErrHTTPStatus):
		r.httpErrors.Add(1)
	case errors.Is(err, ErrDecode):
		r.decodeFailures.Add(1)
	default:
		r.otherFailures.Add(1)
	}
	util.Warn("geo lookup failed",
		zap.String("ip", ip),
		zap.Error(err),
	)
}

// ResolveAll resolves the distinct set of origin IPs on a bounded worker
// pool. IPs are assigned to workers by consistent hash. The overall timeout
// bounds total resolution time: anything still pending when it fires is
// marked unresolved (nil) so report generation is never blocked.
func (r *Resolver) ResolveAll(ctx context.Context, ips []string) map[string]*model.GeoRecord {
	results := make(map[string]*model.GeoRecord, len(ips))
	if len(ips) == 0 {
		return results
	}

	distinct := dedupe(ips)

	overallCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.OverallTimeout() > 0 {
		overallCtx, cancel = context.WithTimeout(ctx, r.cfg.OverallTimeout())
		defer cancel()
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(overallCtx)

	for _, shard := range r.shards.Partition(distinct) {
		shard := shard
		if len(shard) == 0 {
			continue
		}
		g.Go(func() error {
			for _, ip := range shard {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				record, ok := r.Resolve(gctx, ip)
				mu.Lock()
				if ok {
					results[ip] = record
				} else {
					results[ip] = nil
				}
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

	// Anything a worker never reached is unresolved.
	for _, ip := range distinct {
		if _, ok := results[ip]; !ok {
			results[ip] = nil
		}
	}
	return results
}

// Stats returns a snapshot of the resolver's counters.
func (r *Resolver) Stats() model.ResolverStats {
	return model.ResolverStats{
		MemoryHits:      r.memoryHits.Load(),
		DistributedHits: r.distributedHits.Load(),
		Misses:          r.misses.Load(),
		Coalesced:       r.coalesced.Load(),
		ExternalCalls:   r.externalCalls.Load(),
		PrivateSkips:    r.privateSkips.Load(),
		Timeouts:        r.timeouts.Load(),
		ConnectFailures: r.connectFailures.Load(),
		HTTPErrors:      r.httpErrors.Load(),
		DecodeFailures:  r.decodeFailures.Load(),
		OtherFailures:   r.otherFailures.Load(),
	}
}

func dedupe(ips []string) []string {
	seen := make(map[string]bool, len(ips))
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		if ip == "" || seen[ip] {
			continue
		}
		seen[ip] = true
		out = append(out, ip)
	}
	return out
}

// isPrivate reports whether ip is in a private, loopback, link-local, or
// otherwise reserved range that must never reach the external service.
// Unparseable input is treated as private so it cannot leak out either.
func isPrivate(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsPrivate() ||
		parsed.IsLoopback() ||
		parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() ||
		parsed.IsUnspecified()
}

func syntheticPrivateRecord(ip string) *model.GeoRecord {
	return &model.GeoRecord{
		IP:          ip,
		Country:     "Private Network",
		CountryCode: "--",
		Region:      "Local",
		City:        "Local",
		ResolvedAt:  time.Now(),
		IsPrivate:   true,
	}
}
