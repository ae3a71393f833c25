// Package normalize turns heterogeneous raw records from the two supported
// feeds into the single internal event shape. Bad rows are skipped with a
// recorded warning; they never abort the batch.
package normalize

import (
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"threat-analyzer/internal/model"
	"threat-analyzer/internal/util"
)

// RawRecord is one row as read by the ingestion layer (CSV column map or
// flattened JSON object). The core never touches files itself.
type RawRecord map[string]string

// Report accounts for what happened to a batch during normalization.
type Report struct {
	Processed int
	Skipped   int
	Warnings  []string
}

// Timestamp layouts accepted from the source systems, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
}

var requiredColumns = map[model.EventKind][]string{
	model.KindPerimeter: {"timestamp", "source_ip", "destination_ip", "port", "protocol", "action"},
	model.KindAuth:      {"timestamp", "source_ip", "username", "service"},
}

// Normalize converts records of one kind into events, preserving input order.
// Output order matching input order is required for deterministic window
// computation downstream.
func Normalize(records []RawRecord, kind model.EventKind) ([]model.NormalizedEvent, Report) {
	events := make([]model.NormalizedEvent, 0, len(records))
	report := Report{}

	for i, rec := range records {
		event, reason := normalizeOne(rec, kind)
		if reason != "" {
			report.Skipped++
			report.Warnings = append(report.Warnings, reason)
			util.Warn("record skipped",
				zap.String("kind", string(kind)),
				zap.Int("row", i),
				zap.String("reason", reason),
			)
			continue
		}
		events = append(events, event)
		report.Processed++
	}

	return events, report
}

func normalizeOne(rec RawRecord, kind model.EventKind) (model.NormalizedEvent, string) {
	for _, col := range requiredColumns[kind] {
		if strings.TrimSpace(rec[col]) == "" {
			return model.NormalizedEvent{}, "missing required field: " + col
		}
	}

	ts, ok := ParseTimestamp(rec["timestamp"])
	if !ok {
		return model.NormalizedEvent{}, "unparseable timestamp: " + rec["timestamp"]
	}

	sourceIP := CleanIP(rec["source_ip"])
	if sourceIP == "" {
		return model.NormalizedEvent{}, "invalid source IP: " + rec["source_ip"]
	}

	event := model.NormalizedEvent{
		Timestamp: ts,
		SourceIP:  sourceIP,
		Kind:      kind,
	}

	switch kind {
	case model.KindPerimeter:
		action, ok := parseAction(rec["action"])
		if !ok {
			return model.NormalizedEvent{}, "unknown action: " + rec["action"]
		}
		port, err := strconv.Atoi(strings.TrimSpace(rec["port"]))
		if err != nil || port < 0 || port > 65535 {
			return model.NormalizedEvent{}, "invalid port: " + rec["port"]
		}
		event.Action = action
		event.DestPort = port
		event.DestIP = CleanIP(rec["destination_ip"])
		event.Protocol = strings.ToUpper(strings.TrimSpace(rec["protocol"]))

	case model.KindAuth:
		// Auth feeds write the outcome to either `status` or `action`.
		raw := rec["status"]
		if strings.TrimSpace(raw) == "" {
			raw = rec["action"]
		}
		action, ok := parseAction(raw)
		if !ok {
			return model.NormalizedEvent{}, "unknown auth status: " + raw
		}
		event.Action = action
		event.Username = strings.TrimSpace(rec["username"])
		event.Service = strings.TrimSpace(rec["service"])
		event.DestIP = CleanIP(rec["destination_ip"])
	}

	return event, ""
}

// ParseTimestamp tries each supported layout and reports whether any matched.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// CleanIP trims and validates an IPv4 literal, returning "" when invalid.
func CleanIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ip := net.ParseIP(raw)
	if ip == nil || ip.To4() == nil {
		return ""
	}
	return ip.String()
}

func parseAction(raw string) (model.Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ALLOW":
		return model.ActionAllow, true
	case "BLOCK":
		return model.ActionBlock, true
	case "DENY":
		return model.ActionDeny, true
	case "FAIL", "FAILED":
		return model.ActionFailed, true
	case "SUCCESS":
		return model.ActionSuccess, true
	default:
		return "", false
	}
}
