// Package analyzer orchestrates one bounded-batch analysis run: normalize
// both feeds, run the detectors, enrich suspect origins geographically, and
// classify per-origin risk. Detection is single-threaded and deterministic;
// geographic resolution is the only concurrent stage.
package analyzer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threat-analyzer/internal/config"
	"threat-analyzer/internal/detect"
	"threat-analyzer/internal/geo"
	"threat-analyzer/internal/model"
	"threat-analyzer/internal/normalize"
	"threat-analyzer/internal/risk"
	"threat-analyzer/internal/util"
)

// Result is everything one run exposes to the report/API layer.
type Result struct {
	Alerts        []model.Alert               `json:"alerts"`
	Locations     map[string]*model.GeoRecord `json:"locations"`
	Risks         map[string]model.RiskResult `json:"risks"`
	GeoSummary    model.GeoSummary            `json:"geo_summary"`
	AccessCounts  map[string]int              `json:"access_counts"`
	Stats         model.AnalysisStats         `json:"stats"`
	ResolverStats model.ResolverStats         `json:"resolver_stats"`
	Warnings      []string                    `json:"warnings,omitempty"`
}

// Analyzer wires the detection pipeline together. The resolver (and its
// cache) may be shared across runs; everything else is run-scoped. A single
// Analyzer must not be driven by two overlapping runs.
type Analyzer struct {
	cfg        *config.Config
	bruteForce *detect.BruteForceDetector
	portScan   *detect.PortScanDetector
	resolver   *geo.Resolver
	classifier *risk.Classifier
}

func New(cfg *config.Config, resolver *geo.Resolver) *Analyzer {
	return &Analyzer{
		cfg:        cfg,
		bruteForce: detect.NewBruteForceDetector(cfg.BruteForce),
		portScan:   detect.NewPortScanDetector(cfg.PortScan),
		resolver:   resolver,
		classifier: risk.NewClassifier(cfg.Risk, cfg.Geo.HighRiskCountries),
	}
}

// Run analyzes one batch. Partial results always win over aborting: rows
// that fail to parse are skipped, and geographic failures leave origins
// unresolved without suppressing their alerts.
func (a *Analyzer) Run(ctx context.Context, perimeter, auth []normalize.RawRecord) *Result {
	started := time.Now()
	runID := uuid.NewString()

	util.Info("analysis run started",
		zap.String("run_id", runID),
		zap.Int("perimeter_records", len(perimeter)),
		zap.Int("auth_records", len(auth)),
	)

	perimeterEvents, perimeterReport := normalize.Normalize(perimeter, model.KindPerimeter)
	authEvents, authReport := normalize.Normalize(auth, model.KindAuth)

	alerts := a.bruteForce.Detect(authEvents)
	alerts = append(alerts, a.portScan.Detect(perimeterEvents)...)

	accessCounts := countAccess(perimeterEvents, authEvents)

	var locations map[string]*model.GeoRecord
	var summary model.GeoSummary
	unresolved := 0
	if a.cfg.Geo.Enabled && a.resolver != nil {
		locations = a.resolver.ResolveAll(ctx, suspectOrigins(alerts))
		for _, record := range locations {
			if record == nil {
				unresolved++
			}
		}
		summary = geo.AnalyzePatterns(locations, a.cfg.Geo.HighRiskCountries)
	} else {
		locations = make(map[string]*model.GeoRecord)
		summary = model.GeoSummary{CountryCounts: map[string]int{}}
	}

	risks := a.classifier.ClassifyAll(alerts, locations)

	finished := time.Now()
	result := &Result{
		Alerts:       alerts,
		Locations:    locations,
		Risks:        risks,
		GeoSummary:   summary,
		AccessCounts: accessCounts,
		Warnings:     append(perimeterReport.Warnings, authReport.Warnings...),
		Stats: model.AnalysisStats{
			RunID:             runID,
			PerimeterEvents:   perimeterReport.Processed,
			AuthEvents:        authReport.Processed,
			SkippedRecords:    perimeterReport.Skipped + authReport.Skipped,
			SuspectIPs:        len(risks),
			UnresolvedLookups: unresolved,
			StartedAt:         started,
			FinishedAt:        finished,
			Duration:          finished.Sub(started),
		},
	}
	if a.resolver != nil {
		result.ResolverStats = a.resolver.Stats()
	}

	util.Info("analysis run finished",
		zap.String("run_id", runID),
		zap.Int("alerts", len(alerts)),
		zap.Int("suspect_ips", len(risks)),
		zap.Int("unresolved_lookups", unresolved),
		zap.Duration("duration", result.Stats.Duration),
	)
	return result
}

// suspectOrigins is the distinct set of alert origins, in alert order.
func suspectOrigins(alerts []model.Alert) []string {
	seen := make(map[string]bool)
	var origins []string
	for _, alert := range alerts {
		if seen[alert.OriginIP] {
			continue
		}
		seen[alert.OriginIP] = true
		origins = append(origins, alert.OriginIP)
	}
	return origins
}

func countAccess(feeds ...[]model.NormalizedEvent) map[string]int {
	counts := make(map[string]int)
	for _, events := range feeds {
		for _, ev := range events {
			counts[ev.SourceIP]++
		}
	}
	return counts
}
