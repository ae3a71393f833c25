// Package detect builds the two threat detectors on top of the windowed
// aggregator. Each detector consumes one normalized feed and emits at most
// one alert per origin per pass.
package detect

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threat-analyzer/internal/config"
	"threat-analyzer/internal/model"
	"threat-analyzer/internal/util"
	"threat-analyzer/internal/window"
)

// BruteForceDetector flags repeated failed authentication attempts per origin.
type BruteForceDetector struct {
	cfg config.DetectionConfig
}

func NewBruteForceDetector(cfg config.DetectionConfig) *BruteForceDetector {
	return &BruteForceDetector{cfg: cfg}
}

// Detect runs the detector over normalized auth events. The occurrence count
// is the number of failed attempts inside the detected window, not the
// origin's lifetime total.
func (d *BruteForceDetector) Detect(events []model.NormalizedEvent) []model.Alert {
	var entries []window.Entry[model.NormalizedEvent]
	for _, ev := range events {
		if ev.Kind != model.KindAuth || ev.Action != model.ActionFailed {
			continue
		}
		entries = append(entries, window.Entry[model.NormalizedEvent]{
			Key:       ev.SourceIP,
			Timestamp: ev.Timestamp,
			Payload:   ev,
		})
	}

	detections := window.FirstCrossing(entries, d.cfg.Window(), d.cfg.Threshold)

	alerts := make([]model.Alert, 0, len(detections))
	for _, det := range detections {
		alert := model.Alert{
			ID:              uuid.NewString(),
			Kind:            model.AlertBruteForce,
			OriginIP:        det.Key,
			WindowStart:     det.WindowStart,
			WindowEnd:       det.WindowEnd,
			OccurrenceCount: det.Count,
			Usernames:       distinctStrings(det.Evidence, func(e model.NormalizedEvent) string { return e.Username }),
			Services:        distinctStrings(det.Evidence, func(e model.NormalizedEvent) string { return e.Service }),
		}
		alerts = append(alerts, alert)

		util.Warn("brute force detected",
			zap.String("origin_ip", alert.OriginIP),
			zap.Int("attempts", alert.OccurrenceCount),
			zap.Strings("usernames", alert.Usernames),
			zap.Strings("services", alert.Services),
		)
	}
	return alerts
}

func distinctStrings(events []model.NormalizedEvent, field func(model.NormalizedEvent) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range events {
		v := field(ev)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
