package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"threat-analyzer/internal/client"
	"threat-analyzer/internal/model"
	"threat-analyzer/internal/util"
)

const geoKeyPrefix = "geo:ip:"

// DistributedTier is the optional shared second tier. Implementations are
// best-effort: a failing backend behaves like a miss, never like an error
// surfaced to the resolver's callers.
type DistributedTier interface {
	Get(ctx context.Context, ip string) (*model.GeoRecord, bool)
	Set(ctx context.Context, ip string, record *model.GeoRecord, ttl time.Duration)
}

// RedisTier stores records as JSON under a TTL'd key per IP.
type RedisTier struct {
	client *client.RedisClient
}

func NewRedisTier(client *client.RedisClient) *RedisTier {
	return &RedisTier{client: client}
}

func (r *RedisTier) Get(ctx context.Context, ip string) (*model.GeoRecord, bool) {
	payload, err := r.client.Get(ctx, geoKeyPrefix+ip)
	if err != nil {
		if !client.IsNotFound(err) {
			util.Warn("distributed cache read failed, treating as miss",
				zap.String("ip", ip), zap.Error(err))
		}
		return nil, false
	}

	var record model.GeoRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		util.Warn("distributed cache entry undecodable, treating as miss",
			zap.String("ip", ip), zap.Error(err))
		return nil, false
	}
	if record.Expired(time.Now()) {
		return nil, false
	}
	return &record, true
}

func (r *RedisTier) Set(ctx context.Context, ip string, record *model.GeoRecord, ttl time.Duration) {
	payload, err := json.Marshal(record)
	if err != nil {
		util.Error("failed to marshal geo record", zap.String("ip", ip), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, geoKeyPrefix+ip, string(payload), ttl); err != nil {
		util.Warn("distributed cache write failed",
			zap.String("ip", ip), zap.Error(err))
	}
}

// HealthCheck verifies the backing Redis connection.
func (r *RedisTier) HealthCheck(ctx context.Context) error {
	if err := r.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("distributed cache tier unhealthy: %w", err)
	}
	return nil
}
