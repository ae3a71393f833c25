// Package cache provides the two cache tiers backing the geographic
// resolver: a bounded in-process LRU with per-entry TTL and an optional
// Redis-backed distributed tier. Each tier owns its own copy of a record;
// nothing mutable is shared between them.
package cache

import (
	"container/list"
	"sync"
	"time"

	"threat-analyzer/internal/model"
)

// entry wraps a record with its insertion time. Records are replaced on
// refresh, never updated in place.
type entry struct {
	key        string
	record     *model.GeoRecord
	insertedAt time.Time
}

// MemoryTier is the fast in-process tier: a mutex-protected LRU bounded by
// maxEntries, where every entry carries the record's TTL expiry.
type MemoryTier struct {
	maxEntries int

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[string]*list.Element
}

func NewMemoryTier(maxEntries int) *MemoryTier {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryTier{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

// Get returns the unexpired record for ip, promoting it to most recently
// used. Expired entries are removed on access and reported as a miss.
func (m *MemoryTier) Get(ip string, now time.Time) (*model.GeoRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[ip]
	if !ok {
		return nil, false
	}

	e := elem.Value.(*entry)
	if e.record.Expired(now) {
		m.order.Remove(elem)
		delete(m.items, ip)
		return nil, false
	}

	m.order.MoveToFront(elem)
	return e.record, true
}

// Set stores a record, evicting the least recently used entry when over
// capacity.
func (m *MemoryTier) Set(ip string, record *model.GeoRecord, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[ip]; ok {
		elem.Value = &entry{key: ip, record: record, insertedAt: now}
		m.order.MoveToFront(elem)
		return
	}

	elem := m.order.PushFront(&entry{key: ip, record: record, insertedAt: now})
	m.items[ip] = elem

	for m.order.Len() > m.maxEntries {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*entry).key)
	}
}

// Len returns the number of live entries (expired ones included until read).
func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Clear drops every entry. Used between runs in tests.
func (m *MemoryTier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.items = make(map[string]*list.Element)
}
