// Package risk maps detection evidence to a per-origin severity score and
// tier. Classification is a pure function of the alerts: more evidence can
// never lower a tier.
package risk

import (
	"threat-analyzer/internal/config"
	"threat-analyzer/internal/model"
)

// Classifier holds the configured weights and tier cutoffs.
type Classifier struct {
	cfg      config.RiskConfig
	highRisk map[string]bool
}

func NewClassifier(cfg config.RiskConfig, highRiskCountries []string) *Classifier {
	highRisk := make(map[string]bool, len(highRiskCountries))
	for _, cc := range highRiskCountries {
		highRisk[cc] = true
	}
	return &Classifier{cfg: cfg, highRisk: highRisk}
}

// Classify computes score = sum(weight(kind) * occurrenceCount) over the
// origin's alerts and maps it onto a tier. The geographic record only
// annotates the result; it does not feed the score.
func (c *Classifier) Classify(ip string, alerts []model.Alert, location *model.GeoRecord) model.RiskResult {
	score := 0
	for _, alert := range alerts {
		score += c.weight(alert.Kind) * alert.OccurrenceCount
	}

	result := model.RiskResult{
		IP:     ip,
		Score:  score,
		Tier:   c.tierFor(score),
		Alerts: alerts,
	}
	if location != nil && c.highRisk[location.CountryCode] {
		result.HighRiskCountry = true
	}
	return result
}

// ClassifyAll groups alerts by origin and classifies each one.
func (c *Classifier) ClassifyAll(alerts []model.Alert, locations map[string]*model.GeoRecord) map[string]model.RiskResult {
	byOrigin := make(map[string][]model.Alert)
	for _, alert := range alerts {
		byOrigin[alert.OriginIP] = append(byOrigin[alert.OriginIP], alert)
	}

	results := make(map[string]model.RiskResult, len(byOrigin))
	for ip, originAlerts := range byOrigin {
		results[ip] = c.Classify(ip, originAlerts, locations[ip])
	}
	return results
}

func (c *Classifier) weight(kind model.AlertKind) int {
	switch kind {
	case model.AlertBruteForce:
		return c.cfg.BruteForceWeight
	case model.AlertPortScan:
		return c.cfg.PortScanWeight
	default:
		return 0
	}
}

func (c *Classifier) tierFor(score int) model.RiskTier {
	switch {
	case score >= c.cfg.HighThreshold:
		return model.TierHigh
	case score >= c.cfg.MediumThreshold:
		return model.TierMedium
	default:
		return model.TierLow
	}
}
