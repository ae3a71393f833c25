package report

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"threat-analyzer/internal/analyzer"
	"threat-analyzer/internal/client"
	"threat-analyzer/internal/model"
	"threat-analyzer/internal/util"
)

// Dispatcher fans emitted alerts out to the configured sinks. Any sink may
// be nil (disabled). Sink failures are logged and counted, never returned:
// downstream availability must not decide whether an analysis run succeeds.
type Dispatcher struct {
	kafka      *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	elastic    *client.ESClient
}

func NewDispatcher(kafka *client.KafkaProducer, clickhouse *client.ClickHouseClient, elastic *client.ESClient) *Dispatcher {
	return &Dispatcher{
		kafka:      kafka,
		clickhouse: clickhouse,
		elastic:    elastic,
	}
}

// alertDocument is the wire shape shared by the Kafka and Elasticsearch
// sinks: the alert plus its run's enrichment for that origin.
type alertDocument struct {
	model.Alert
	RunID    string            `json:"run_id"`
	Location *model.GeoRecord  `json:"location,omitempty"`
	Risk     *model.RiskResult `json:"risk,omitempty"`
}

// Publish sends every alert in the result to each enabled sink. Returns the
// number of alerts that reached at least one sink.
func (d *Dispatcher) Publish(ctx context.Context, result *analyzer.Result) int {
	if len(result.Alerts) == 0 {
		return 0
	}

	delivered := 0
	for _, alert := range result.Alerts {
		doc := alertDocument{
			Alert: alert,
			RunID: result.Stats.RunID,
		}
		if loc, ok := result.Locations[alert.OriginIP]; ok {
			doc.Location = loc
		}
		if r, ok := result.Risks[alert.OriginIP]; ok {
			doc.Risk = &r
		}

		payload, err := json.Marshal(doc)
		if err != nil {
			util.Error("failed to marshal alert", zap.String("alert_id", alert.ID), zap.Error(err))
			continue
		}

		reached := false
		if d.kafka != nil {
			if err := d.kafka.Publish(ctx, alert.OriginIP, payload); err != nil {
				util.Error("kafka publish failed", zap.String("alert_id", alert.ID), zap.Error(err))
			} else {
				reached = true
			}
		}
		if d.elastic != nil {
			if err := d.elastic.IndexDocument(ctx, alert.ID, payload); err != nil {
				util.Error("elasticsearch index failed", zap.String("alert_id", alert.ID), zap.Error(err))
			} else {
				reached = true
			}
		}
		if reached {
			delivered++
		}
	}

	if d.clickhouse != nil {
		if err := d.archiveAlerts(ctx, result); err != nil {
			util.Error("clickhouse archive failed", zap.Error(err))
		} else {
			delivered = len(result.Alerts)
		}
	}

	util.Info("alerts dispatched",
		zap.String("run_id", result.Stats.RunID),
		zap.Int("alerts", len(result.Alerts)),
		zap.Int("delivered", delivered),
	)
	return delivered
}

// archiveAlerts batch-inserts the run's alerts into the archive table.
func (d *Dispatcher) archiveAlerts(ctx context.Context, result *analyzer.Result) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (id, run_id, kind, origin_ip, window_start, window_end, occurrence_count, country_code, risk_tier, risk_score)",
		d.clickhouse.Table(),
	)
	batch, err := d.clickhouse.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, alert := range result.Alerts {
		countryCode := ""
		if loc := result.Locations[alert.OriginIP]; loc != nil {
			countryCode = loc.CountryCode
		}
		tier, score := "", 0
		if r, ok := result.Risks[alert.OriginIP]; ok {
			tier, score = string(r.Tier), r.Score
		}
		if err := batch.Append(
			alert.ID,
			result.Stats.RunID,
			string(alert.Kind),
			alert.OriginIP,
			alert.WindowStart,
			alert.WindowEnd,
			uint32(alert.OccurrenceCount),
			countryCode,
			tier,
			uint32(score),
		); err != nil {
			return fmt.Errorf("failed to append alert %s: %w", alert.ID, err)
		}
	}
	return batch.Send()
}
