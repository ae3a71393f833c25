package detect

import (
	"sort"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threat-analyzer/internal/config"
	"threat-analyzer/internal/model"
	"threat-analyzer/internal/util"
	"threat-analyzer/internal/window"
)

// PortScanDetector flags an origin contacting many distinct destination
// ports quickly. The counted quantity is distinct ports, not raw events:
// repeated hits to the same port inside the window count once.
type PortScanDetector struct {
	cfg config.DetectionConfig
}

func NewPortScanDetector(cfg config.DetectionConfig) *PortScanDetector {
	return &PortScanDetector{cfg: cfg}
}

// Detect runs the detector over normalized perimeter events with a blocked
// or denied action.
func (d *PortScanDetector) Detect(events []model.NormalizedEvent) []model.Alert {
	var entries []window.Entry[model.NormalizedEvent]
	for _, ev := range events {
		if ev.Kind != model.KindPerimeter {
			continue
		}
		if ev.Action != model.ActionBlock && ev.Action != model.ActionDeny {
			continue
		}
		entries = append(entries, window.Entry[model.NormalizedEvent]{
			Key:       ev.SourceIP,
			Timestamp: ev.Timestamp,
			Payload:   ev,
		})
	}

	detections := window.FirstCrossingDistinct(entries, d.cfg.Window(), d.cfg.Threshold,
		func(e model.NormalizedEvent) string { return strconv.Itoa(e.DestPort) })

	alerts := make([]model.Alert, 0, len(detections))
	for _, det := range detections {
		alert := model.Alert{
			ID:              uuid.NewString(),
			Kind:            model.AlertPortScan,
			OriginIP:        det.Key,
			WindowStart:     det.WindowStart,
			WindowEnd:       det.WindowEnd,
			OccurrenceCount: det.Count,
			Ports:           distinctPorts(det.Evidence),
			Protocols:       distinctStrings(det.Evidence, func(e model.NormalizedEvent) string { return e.Protocol }),
		}
		alerts = append(alerts, alert)

		util.Warn("port scan detected",
			zap.String("origin_ip", alert.OriginIP),
			zap.Int("distinct_ports", alert.OccurrenceCount),
			zap.Strings("protocols", alert.Protocols),
		)
	}
	return alerts
}

func distinctPorts(events []model.NormalizedEvent) []int {
	seen := make(map[int]bool)
	var out []int
	for _, ev := range events {
		if seen[ev.DestPort] {
			continue
		}
		seen[ev.DestPort] = true
		out = append(out, ev.DestPort)
	}
	sort.Ints(out)
	return out
}
