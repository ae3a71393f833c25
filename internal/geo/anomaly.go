package geo

import (
	"sort"

	"threat-analyzer/internal/model"
)

// AnalyzePatterns flags origins whose country is in the configured
// high-risk set and computes the run-level concentration signal: the
// fraction of resolved public origins that fall in that set.
func AnalyzePatterns(locations map[string]*model.GeoRecord, highRiskCountries []string) model.GeoSummary {
	highRisk := make(map[string]bool, len(highRiskCountries))
	for _, cc := range highRiskCountries {
		highRisk[cc] = true
	}

	summary := model.GeoSummary{
		CountryCounts: make(map[string]int),
	}

	resolved := 0
	for ip, record := range locations {
		if record == nil || record.IsPrivate {
			continue
		}
		resolved++
		summary.CountryCounts[record.Country]++
		if highRisk[record.CountryCode] {
			summary.HighRiskOrigins = append(summary.HighRiskOrigins, ip)
		}
	}

	sort.Strings(summary.HighRiskOrigins)
	if resolved > 0 {
		summary.Concentration = float64(len(summary.HighRiskOrigins)) / float64(resolved)
	}
	return summary
}
