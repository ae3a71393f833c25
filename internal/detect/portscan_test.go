package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threat-analyzer/internal/config"
	"threat-analyzer/internal/model"
)

func perimeterEvent(ip string, offset time.Duration, port int, action model.Action) model.NormalizedEvent {
	return model.NormalizedEvent{
		Timestamp: base.Add(offset),
		SourceIP:  ip,
		DestIP:    "10.0.0.1",
		DestPort:  port,
		Protocol:  "TCP",
		Action:    action,
		Kind:      model.KindPerimeter,
	}
}

func TestPortScan_TenDistinctPorts(t *testing.T) {
	detector := NewPortScanDetector(config.DetectionConfig{Threshold: 10, WindowMinutes: 1})

	ports := []int{22, 80, 443, 21, 25, 3389, 110, 143, 993, 995}
	var events []model.NormalizedEvent
	for i, port := range ports {
		events = append(events, perimeterEvent("94.102.49.123", time.Duration(i)*time.Second, port, model.ActionBlock))
	}

	alerts := detector.Detect(events)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, model.AlertPortScan, alert.Kind)
	assert.Equal(t, "94.102.49.123", alert.OriginIP)
	assert.Equal(t, 10, alert.OccurrenceCount)
	assert.Equal(t, []int{21, 22, 25, 80, 110, 143, 443, 993, 995, 3389}, alert.Ports)
	assert.Equal(t, []string{"TCP"}, alert.Protocols)
}

func TestPortScan_RepeatPortDoesNotCount(t *testing.T) {
	detector := NewPortScanDetector(config.DetectionConfig{Threshold: 10, WindowMinutes: 1})

	// Nine distinct ports plus two repeat hits: eleven events, no alert.
	ports := []int{22, 80, 443, 21, 25, 3389, 110, 143, 993}
	var events []model.NormalizedEvent
	for i, port := range ports {
		events = append(events, perimeterEvent("94.102.49.123", time.Duration(i)*time.Second, port, model.ActionBlock))
	}
	events = append(events, perimeterEvent("94.102.49.123", 9*time.Second, 22, model.ActionBlock))
	events = append(events, perimeterEvent("94.102.49.123", 10*time.Second, 80, model.ActionDeny))

	assert.Empty(t, detector.Detect(events))
}

func TestPortScan_EleventhHitToSeenPortChangesNothing(t *testing.T) {
	detector := NewPortScanDetector(config.DetectionConfig{Threshold: 10, WindowMinutes: 1})

	ports := []int{22, 80, 443, 21, 25, 3389, 110, 143, 993, 995}
	var events []model.NormalizedEvent
	for i, port := range ports {
		events = append(events, perimeterEvent("94.102.49.123", time.Duration(i)*time.Second, port, model.ActionBlock))
	}
	// Eleventh event repeats a seen port after the crossing.
	events = append(events, perimeterEvent("94.102.49.123", 10*time.Second, 22, model.ActionBlock))

	alerts := detector.Detect(events)
	require.Len(t, alerts, 1)
	assert.Equal(t, 10, alerts[0].OccurrenceCount)
	assert.Len(t, alerts[0].Ports, 10)
}

func TestPortScan_AllowedTrafficIgnored(t *testing.T) {
	detector := NewPortScanDetector(config.DetectionConfig{Threshold: 3, WindowMinutes: 1})

	var events []model.NormalizedEvent
	for i, port := range []int{22, 80, 443} {
		events = append(events, perimeterEvent("94.102.49.123", time.Duration(i)*time.Second, port, model.ActionAllow))
	}

	assert.Empty(t, detector.Detect(events))
}

func TestPortScan_BlockAndDenyBothCount(t *testing.T) {
	detector := NewPortScanDetector(config.DetectionConfig{Threshold: 3, WindowMinutes: 1})

	events := []model.NormalizedEvent{
		perimeterEvent("94.102.49.123", 0, 22, model.ActionBlock),
		perimeterEvent("94.102.49.123", time.Second, 80, model.ActionDeny),
		perimeterEvent("94.102.49.123", 2*time.Second, 443, model.ActionBlock),
	}

	alerts := detector.Detect(events)
	require.Len(t, alerts, 1)
	assert.Equal(t, 3, alerts[0].OccurrenceCount)
}

func TestPortScan_SlowScanOutsideWindow(t *testing.T) {
	detector := NewPortScanDetector(config.DetectionConfig{Threshold: 3, WindowMinutes: 1})

	events := []model.NormalizedEvent{
		perimeterEvent("94.102.49.123", 0, 22, model.ActionBlock),
		perimeterEvent("94.102.49.123", 2*time.Minute, 80, model.ActionBlock),
		perimeterEvent("94.102.49.123", 4*time.Minute, 443, model.ActionBlock),
	}

	assert.Empty(t, detector.Detect(events))
}
