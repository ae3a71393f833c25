// Package report turns analysis results into exports and fans alerts out to
// the configured downstream sinks. Everything here is best-effort: a sink
// or export failure never fails the run that produced the result.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"threat-analyzer/internal/analyzer"
	"threat-analyzer/internal/config"
	"threat-analyzer/internal/model"
	"threat-analyzer/internal/util"
)

const timestampLayout = "2006-01-02 15:04:05"

// Exporter writes suspect-IP reports to disk.
type Exporter struct {
	cfg config.ExportConfig
}

func NewExporter(cfg config.ExportConfig) *Exporter {
	return &Exporter{cfg: cfg}
}

// WriteCSV exports one row per alert with the origin's evidence summary.
// Returns the path actually written.
func (e *Exporter) WriteCSV(result *analyzer.Result, filename string) (string, error) {
	path, err := e.preparePath(filename)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"ip", "alert_type", "occurrences", "first_detection", "last_detection", "affected_services", "targeted_users"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, alert := range result.Alerts {
		row := []string{
			alert.OriginIP,
			string(alert.Kind),
			strconv.Itoa(alert.OccurrenceCount),
			alert.WindowStart.Format(timestampLayout),
			alert.WindowEnd.Format(timestampLayout),
			servicesColumn(alert),
			strings.Join(alert.Usernames, ", "),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}

	util.Info("suspect IPs exported",
		zap.String("path", path),
		zap.Int("alerts", len(result.Alerts)),
	)
	return path, nil
}

// WriteJSON exports the full result document.
func (e *Exporter) WriteJSON(result *analyzer.Result, filename string) (string, error) {
	path, err := e.preparePath(filename)
	if err != nil {
		return "", err
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	util.Info("result exported", zap.String("path", path))
	return path, nil
}

func (e *Exporter) preparePath(filename string) (string, error) {
	if err := os.MkdirAll(e.cfg.Directory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	if e.cfg.AutoTimestamp {
		filename = timestampedFilename(filename)
	}
	return filepath.Join(e.cfg.Directory, filename), nil
}

// timestampedFilename inserts a timestamp before the extension,
// e.g. suspect_ips.csv -> suspect_ips_20250101_120000.csv.
func timestampedFilename(base string) string {
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%s%s", name, time.Now().Format("20060102_150405"), ext)
}

func servicesColumn(alert model.Alert) string {
	if alert.Kind == model.AlertPortScan {
		return fmt.Sprintf("%d ports", len(alert.Ports))
	}
	return strings.Join(alert.Services, ", ")
}
