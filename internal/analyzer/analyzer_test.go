package analyzer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threat-analyzer/internal/cache"
	"threat-analyzer/internal/config"
	"threat-analyzer/internal/geo"
	"threat-analyzer/internal/model"
	"threat-analyzer/internal/normalize"
)

// fixedProvider answers every public lookup with the same country.
type fixedProvider struct {
	countryCode string
}

func (p *fixedProvider) Lookup(ctx context.Context, ip string) (*model.GeoRecord, error) {
	return &model.GeoRecord{
		IP:          ip,
		Country:     "China",
		CountryCode: p.countryCode,
		ResolvedAt:  time.Now(),
	}, nil
}

func testAnalyzerConfig(geoEnabled bool) *config.Config {
	return &config.Config{
		Environment: "test",
		BruteForce:  config.DetectionConfig{Threshold: 5, WindowMinutes: 2},
		PortScan:    config.DetectionConfig{Threshold: 10, WindowMinutes: 1},
		Geo: config.GeoConfig{
			Enabled:           geoEnabled,
			TimeoutSeconds:    2,
			OverallTimeoutSec: 10,
			Workers:           2,
			HighRiskCountries: []string{"CN", "RU"},
		},
		Risk: config.RiskConfig{
			HighThreshold:    100,
			MediumThreshold:  50,
			BruteForceWeight: 25,
			PortScanWeight:   20,
		},
		Cache: config.CacheConfig{TTLSeconds: 3600, MaxEntries: 100},
	}
}

func authRecords(ip string, count int) []normalize.RawRecord {
	base := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	records := make([]normalize.RawRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, normalize.RawRecord{
			"timestamp": base.Add(time.Duration(i*18) * time.Second).Format("2006-01-02 15:04:05"),
			"source_ip": ip,
			"username":  "admin",
			"service":   "ssh",
			"status":    "FAILED",
		})
	}
	return records
}

func perimeterRecords(ip string, ports []int) []normalize.RawRecord {
	base := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	records := make([]normalize.RawRecord, 0, len(ports))
	for i, port := range ports {
		records = append(records, normalize.RawRecord{
			"timestamp":      base.Add(time.Duration(i) * time.Second).Format("2006-01-02 15:04:05"),
			"source_ip":      ip,
			"destination_ip": "10.0.0.1",
			"port":           fmt.Sprintf("%d", port),
			"protocol":       "TCP",
			"action":         "BLOCK",
		})
	}
	return records
}

func TestAnalyzer_EndToEndWithGeo(t *testing.T) {
	cfg := testAnalyzerConfig(true)
	hybrid := cache.NewHybrid(cache.NewMemoryTier(100), nil, cfg.Cache.TTL())
	resolver := geo.NewResolver(cfg.Geo, hybrid, &fixedProvider{countryCode: "CN"})
	a := New(cfg, resolver)

	perimeter := perimeterRecords("94.102.49.123", []int{22, 80, 443, 21, 25, 3389, 110, 143, 993, 995})
	auth := authRecords("203.0.113.5", 6)

	result := a.Run(context.Background(), perimeter, auth)
	require.NotNil(t, result)

	// One alert per detector.
	require.Len(t, result.Alerts, 2)
	kinds := map[model.AlertKind]model.Alert{}
	for _, alert := range result.Alerts {
		kinds[alert.Kind] = alert
	}
	assert.Equal(t, 6, kinds[model.AlertBruteForce].OccurrenceCount)
	assert.Equal(t, 10, kinds[model.AlertPortScan].OccurrenceCount)

	// Both origins enriched and classified HIGH.
	require.Len(t, result.Locations, 2)
	require.Len(t, result.Risks, 2)
	assert.Equal(t, model.TierHigh, result.Risks["203.0.113.5"].Tier)
	assert.Equal(t, 150, result.Risks["203.0.113.5"].Score)
	assert.Equal(t, model.TierHigh, result.Risks["94.102.49.123"].Tier)
	assert.Equal(t, 200, result.Risks["94.102.49.123"].Score)
	assert.True(t, result.Risks["203.0.113.5"].HighRiskCountry)

	// Geo summary covers both resolved origins.
	assert.Equal(t, []string{"203.0.113.5", "94.102.49.123"}, result.GeoSummary.HighRiskOrigins)
	assert.InDelta(t, 1.0, result.GeoSummary.Concentration, 1e-9)

	// Run accounting.
	assert.Equal(t, 10, result.Stats.PerimeterEvents)
	assert.Equal(t, 6, result.Stats.AuthEvents)
	assert.Equal(t, 0, result.Stats.SkippedRecords)
	assert.Equal(t, 2, result.Stats.SuspectIPs)
	assert.Equal(t, 0, result.Stats.UnresolvedLookups)
	assert.NotEmpty(t, result.Stats.RunID)
	assert.Equal(t, 6, result.AccessCounts["203.0.113.5"])
	assert.Equal(t, 10, result.AccessCounts["94.102.49.123"])
}

func TestAnalyzer_GeoDisabled(t *testing.T) {
	cfg := testAnalyzerConfig(false)
	a := New(cfg, nil)

	result := a.Run(context.Background(), nil, authRecords("203.0.113.5", 6))

	require.Len(t, result.Alerts, 1)
	assert.Empty(t, result.Locations)
	require.Len(t, result.Risks, 1)
	assert.Equal(t, model.TierHigh, result.Risks["203.0.113.5"].Tier)
	assert.False(t, result.Risks["203.0.113.5"].HighRiskCountry)
}

func TestAnalyzer_BadRowsAreSkippedNotFatal(t *testing.T) {
	cfg := testAnalyzerConfig(false)
	a := New(cfg, nil)

	auth := authRecords("203.0.113.5", 6)
	auth = append(auth, normalize.RawRecord{"timestamp": "garbage", "source_ip": "203.0.113.5", "username": "x", "service": "ssh", "status": "FAILED"})
	auth = append(auth, normalize.RawRecord{"source_ip": "203.0.113.5"})

	result := a.Run(context.Background(), nil, auth)

	assert.Equal(t, 6, result.Stats.AuthEvents)
	assert.Equal(t, 2, result.Stats.SkippedRecords)
	assert.Len(t, result.Warnings, 2)
	require.Len(t, result.Alerts, 1, "valid rows still produce the alert")
}

func TestAnalyzer_QuietBatchProducesNoAlerts(t *testing.T) {
	cfg := testAnalyzerConfig(false)
	a := New(cfg, nil)

	result := a.Run(context.Background(), perimeterRecords("94.102.49.123", []int{22, 80}), authRecords("203.0.113.5", 2))

	assert.Empty(t, result.Alerts)
	assert.Empty(t, result.Risks)
	assert.Equal(t, 0, result.Stats.SuspectIPs)
	assert.Equal(t, 2, result.AccessCounts["203.0.113.5"])
}
