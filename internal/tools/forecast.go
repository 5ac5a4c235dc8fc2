package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// Forecaster — predict-интерфейс реестра моделей.
// Недоступность модели приходит как типизированный Forecast{Unavailable: true},
// никогда не как ошибка, роняющая задачу.
type Forecaster interface {
	Predict(ctx context.Context, orgID, siteID, metricID string, horizon int) (*domain.Forecast, error)
}

// ForecastTool отдает прогноз метрики. Если модель недоступна (штатный
// случай при недостатке данных), инструмент сам откатывается на
// статистический baseline — seasonal naive по истории.
type ForecastTool struct {
	forecaster Forecaster
	metrics    MetricReader
}

func NewForecastTool(forecaster Forecaster, metrics MetricReader) *ForecastTool {
	return &ForecastTool{forecaster: forecaster, metrics: metrics}
}

func (t *ForecastTool) Name() string   { return "get_forecast" }
func (t *ForecastTool) ReadOnly() bool { return true }
func (t *ForecastTool) Description() string {
	return "Forecast for a metric from the model registry, with a seasonal-naive statistical fallback."
}

func (t *ForecastTool) Schema() Schema {
	return Schema{Params: map[string]ParamSpec{
		"organization_id": {Type: "string", Required: true},
		"site_id":         {Type: "string", Required: false, Description: "empty = organization level"},
		"metric_id":       {Type: "string", Required: true},
		"horizon":         {Type: "integer", Required: false, Description: "months ahead, defaults to 12"},
	}}
}

func (t *ForecastTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	orgID := args["organization_id"].(string)
	metricID := args["metric_id"].(string)

	siteID := ""
	if v, ok := args["site_id"].(string); ok {
		siteID = v
	}
	horizon := 12
	if v, ok := args["horizon"].(float64); ok && v > 0 {
		horizon = int(v)
	}

	forecast, err := t.forecaster.Predict(ctx, orgID, siteID, metricID, horizon)
	if err != nil {
		return nil, fmt.Errorf("forecast: predict call failed: %w", err)
	}

	if forecast.Unavailable {
		// Fallback: модели нет — строим baseline из истории
		baseline, ok, berr := t.seasonalNaive(ctx, orgID, metricID, horizon)
		if berr != nil {
			return nil, fmt.Errorf("forecast: baseline fallback failed: %w", berr)
		}
		if !ok {
			return map[string]any{
				"unavailable": true,
				"reason":      forecast.Reason,
			}, nil
		}
		return map[string]any{
			"values":    baseline,
			"method":    "seasonal_naive",
			"metric_id": metricID,
			"note":      "model unavailable (" + forecast.Reason + "), statistical baseline used",
		}, nil
	}

	return map[string]any{
		"values":           forecast.Values,
		"confidence_lower": forecast.ConfidenceLower,
		"confidence_upper": forecast.ConfidenceUpper,
		"method":           forecast.ModelType,
		"metric_id":        metricID,
	}, nil
}

// seasonalNaive повторяет значение того же месяца год назад; без года
// истории деградирует до среднего последних точек.
func (t *ForecastTool) seasonalNaive(ctx context.Context, orgID, metricID string, horizon int) ([]float64, bool, error) {
	series, err := t.metrics.GetOrgSeries(ctx, orgID, metricID, time.Now().AddDate(-2, 0, 0))
	if err != nil {
		return nil, false, err
	}
	n := len(series.Points)
	if n < 4 {
		return nil, false, nil
	}

	out := make([]float64, horizon)
	if n >= 12 {
		for i := 0; i < horizon; i++ {
			out[i] = series.Points[n-12+(i%12)].Value
		}
		return out, true, nil
	}

	var sum float64
	for _, p := range series.Points[n-4:] {
		sum += p.Value
	}
	avg := sum / 4
	for i := range out {
		out[i] = avg
	}
	return out, true, nil
}
