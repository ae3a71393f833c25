package bucketing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardFor_Deterministic(t *testing.T) {
	m := NewManager(5)

	first := m.ShardFor("203.0.113.5")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, m.ShardFor("203.0.113.5"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 5)
}

func TestPartition_CoversAllKeys(t *testing.T) {
	m := NewManager(4)

	keys := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5"}
	parts := m.Partition(keys)

	assert.Len(t, parts, 4)
	total := 0
	for idx, part := range parts {
		total += len(part)
		for _, key := range part {
			assert.Equal(t, idx, m.ShardFor(key), "key must land on its assigned shard")
		}
	}
	assert.Equal(t, len(keys), total)
}

func TestNewManager_NonPositiveShards(t *testing.T) {
	m := NewManager(0)
	assert.Equal(t, 1, m.Shards())
	assert.Equal(t, 0, m.ShardFor("anything"))
}
