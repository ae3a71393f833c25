package cache

import (
	"context"
	"time"

	"threat-analyzer/internal/model"
)

// Tier identifies which layer served a hit.
type Tier int

const (
	TierNone Tier = iota
	TierMemory
	TierDistributed
)

// Hybrid composes the in-process tier with an optional distributed tier.
// Reads check memory first; a distributed hit is promoted into memory so
// subsequent reads stay local. Writes go to both tiers.
type Hybrid struct {
	memory      *MemoryTier
	distributed DistributedTier // nil when not configured
	ttl         time.Duration
}

func NewHybrid(memory *MemoryTier, distributed DistributedTier, ttl time.Duration) *Hybrid {
	return &Hybrid{
		memory:      memory,
		distributed: distributed,
		ttl:         ttl,
	}
}

// Get looks the ip up across both tiers and reports which one answered.
func (h *Hybrid) Get(ctx context.Context, ip string) (*model.GeoRecord, Tier) {
	now := time.Now()

	if record, ok := h.memory.Get(ip, now); ok {
		return record, TierMemory
	}

	if h.distributed != nil {
		if record, ok := h.distributed.Get(ctx, ip); ok {
			h.memory.Set(ip, record, now)
			return record, TierDistributed
		}
	}

	return nil, TierNone
}

// Set stores the record in both tiers with the configured TTL. Negative
// results are never stored; callers only pass successful lookups here.
func (h *Hybrid) Set(ctx context.Context, ip string, record *model.GeoRecord) {
	now := time.Now()
	h.memory.Set(ip, record, now)
	if h.distributed != nil {
		h.distributed.Set(ctx, ip, record, h.ttl)
	}
}

// TTL returns the configured record lifetime.
func (h *Hybrid) TTL() time.Duration {
	return h.ttl
}

// Clear empties the in-process tier. The distributed tier is shared across
// processes and is left alone.
func (h *Hybrid) Clear() {
	h.memory.Clear()
}
