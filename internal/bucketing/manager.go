// Package bucketing assigns origin IPs to resolver worker shards with a
// consistent murmur3 hash, so every lookup for a given IP lands on the same
// worker and cache locality holds within a run.
package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

type Manager struct {
	shards     int
	hasherPool sync.Pool
}

func NewManager(shards int) *Manager {
	if shards <= 0 {
		shards = 1
	}
	m := &Manager{shards: shards}

	// Pool of hash functions to avoid per-call allocation
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// ShardFor returns the consistent shard index for a key (0 to shards-1).
func (m *Manager) ShardFor(key string) int {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return int(hasher.Sum64() % uint64(m.shards))
}

// Partition splits keys into per-shard slices by consistent hash.
func (m *Manager) Partition(keys []string) [][]string {
	parts := make([][]string, m.shards)
	for _, key := range keys {
		idx := m.ShardFor(key)
		parts[idx] = append(parts[idx], key)
	}
	return parts
}

func (m *Manager) Shards() int {
	return m.shards
}
