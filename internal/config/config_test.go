package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.BruteForce.Threshold)
	assert.Equal(t, 1, cfg.BruteForce.WindowMinutes)
	assert.Equal(t, 10, cfg.PortScan.Threshold)
	assert.Equal(t, 1, cfg.PortScan.WindowMinutes)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, 5, cfg.Geo.Workers)
	assert.Contains(t, cfg.Geo.HighRiskCountries, "CN")
	assert.Equal(t, 100, cfg.Risk.HighThreshold)
	assert.Equal(t, 50, cfg.Risk.MediumThreshold)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BRUTE_FORCE_THRESHOLD", "8")
	t.Setenv("GEO_HIGH_RISK_COUNTRIES", "AA, BB")
	t.Setenv("CACHE_DISTRIBUTED_ENABLED", "true")

	cfg := LoadConfig()
	assert.Equal(t, 8, cfg.BruteForce.Threshold)
	assert.Equal(t, []string{"AA", "BB"}, cfg.Geo.HighRiskCountries)
	assert.True(t, cfg.Cache.DistributedEnabled)
}

func TestValidate_RejectsBadThresholds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero brute force threshold", func(c *Config) { c.BruteForce.Threshold = 0 }},
		{"negative brute force window", func(c *Config) { c.BruteForce.WindowMinutes = -1 }},
		{"zero port scan threshold", func(c *Config) { c.PortScan.Threshold = 0 }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTLSeconds = 0 }},
		{"zero cache capacity", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"inverted risk cutoffs", func(c *Config) { c.Risk.MediumThreshold = 200 }},
		{"zero geo workers", func(c *Config) { c.Geo.Workers = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := LoadConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWindowHelpers(t *testing.T) {
	cfg := DetectionConfig{Threshold: 5, WindowMinutes: 2}
	assert.Equal(t, "2m0s", cfg.Window().String())
}
