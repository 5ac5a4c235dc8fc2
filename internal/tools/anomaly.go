package tools

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// ThresholdSource отдает порог аномальности с учетом накопленных learnings:
// уверенные наблюдения «здесь сезонные пики — норма» поднимают порог.
type ThresholdSource interface {
	AnomalyThreshold(ctx context.Context, orgID string, base float64) float64
}

// AnomalyTool ищет выбросы в ряде метрики по z-score последних точек.
type AnomalyTool struct {
	metrics    MetricReader
	thresholds ThresholdSource
}

func NewAnomalyTool(metrics MetricReader, thresholds ThresholdSource) *AnomalyTool {
	return &AnomalyTool{metrics: metrics, thresholds: thresholds}
}

func (t *AnomalyTool) Name() string   { return "detect_anomalies" }
func (t *AnomalyTool) ReadOnly() bool { return true }
func (t *AnomalyTool) Description() string {
	return "Z-score anomaly scan over a metric series; the threshold is biased by accumulated learnings."
}

func (t *AnomalyTool) Schema() Schema {
	return Schema{Params: map[string]ParamSpec{
		"organization_id": {Type: "string", Required: true},
		"metric_id":       {Type: "string", Required: true},
		"window":          {Type: "integer", Required: false, Description: "history window in months, defaults to 24"},
	}}
}

func (t *AnomalyTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	orgID := args["organization_id"].(string)
	metricID := args["metric_id"].(string)

	window := 24
	if v, ok := args["window"].(float64); ok && v > 0 {
		window = int(v)
	}

	series, err := t.metrics.GetOrgSeries(ctx, orgID, metricID, time.Now().AddDate(0, -window, 0))
	if err != nil {
		return nil, fmt.Errorf("anomaly: failed to load series: %w", err)
	}
	if len(series.Points) < 6 {
		// Статистика на 5 точках — это гадание, честно говорим «мало данных»
		return map[string]any{"anomalies": []any{}, "note": "insufficient history for anomaly detection"}, nil
	}

	mean, std := meanStd(series)
	if std == 0 {
		return map[string]any{"anomalies": []any{}, "note": "series is constant"}, nil
	}

	threshold := t.thresholds.AnomalyThreshold(ctx, orgID, 3.0)

	anomalies := make([]map[string]any, 0)
	for _, p := range series.Points {
		z := (p.Value - mean) / std
		if math.Abs(z) >= threshold {
			anomalies = append(anomalies, map[string]any{
				"date":    p.Date.Format("2006-01"),
				"value":   p.Value,
				"z_score": z,
			})
		}
	}

	return map[string]any{
		"metric_id": metricID,
		"threshold": threshold,
		"mean":      mean,
		"anomalies": anomalies,
	}, nil
}

func meanStd(series *domain.MetricSeries) (float64, float64) {
	n := float64(len(series.Points))
	var sum float64
	for _, p := range series.Points {
		sum += p.Value
	}
	mean := sum / n

	var sq float64
	for _, p := range series.Points {
		d := p.Value - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}
