package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// MetricReader — минимальный срез данных, который нужен инструментам.
// Реализуется postgres-репозиторием.
type MetricReader interface {
	GetOrgSeries(ctx context.Context, orgID, metricID string, since time.Time) (*domain.MetricSeries, error)
}

// EmissionsTool считает суммарные выбросы организации за окно и тренд
// к предыдущему окну. Read-only: апрувов не требует.
type EmissionsTool struct {
	metrics MetricReader
}

func NewEmissionsTool(metrics MetricReader) *EmissionsTool {
	return &EmissionsTool{metrics: metrics}
}

func (t *EmissionsTool) Name() string        { return "compute_emissions" }
func (t *EmissionsTool) ReadOnly() bool      { return true }
func (t *EmissionsTool) Description() string {
	return "Total emissions for an organization over a window of months, with trend vs the previous window."
}

func (t *EmissionsTool) Schema() Schema {
	return Schema{Params: map[string]ParamSpec{
		"organization_id": {Type: "string", Required: true},
		"metric_id":       {Type: "string", Required: false, Description: "defaults to emissions.total"},
		"months":          {Type: "integer", Required: false, Description: "window size, defaults to 12"},
	}}
}

func (t *EmissionsTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	orgID := args["organization_id"].(string)

	metricID := "emissions.total"
	if v, ok := args["metric_id"].(string); ok && v != "" {
		metricID = v
	}
	months := 12
	if v, ok := args["months"].(float64); ok && v > 0 {
		months = int(v)
	}

	// Читаем два окна сразу: текущее и предыдущее, для тренда
	since := time.Now().AddDate(0, -2*months, 0)
	series, err := t.metrics.GetOrgSeries(ctx, orgID, metricID, since)
	if err != nil {
		return nil, fmt.Errorf("emissions: failed to load series: %w", err)
	}
	if len(series.Points) == 0 {
		return map[string]any{
			"total": 0.0, "data_points": 0,
			"note": "no emissions data reported for this window",
		}, nil
	}

	cutoff := time.Now().AddDate(0, -months, 0)
	var current, previous float64
	var currentN int
	for _, p := range series.Points {
		if p.Date.After(cutoff) {
			current += p.Value
			currentN++
		} else {
			previous += p.Value
		}
	}

	out := map[string]any{
		"metric_id":   metricID,
		"total":       current,
		"data_points": currentN,
	}
	if previous > 0 {
		out["trend_pct"] = (current - previous) / previous * 100
	}
	return out, nil
}
