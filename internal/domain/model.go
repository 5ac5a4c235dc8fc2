package domain

import (
	"encoding/json"
	"time"
)

// ModelStatus — состояние обученной модели в реестре.
// training -> active при успешной валидации, training -> failed при
// недостатке данных; failed не трогает предыдущую active-версию.
type ModelStatus string

const (
	ModelTraining ModelStatus = "training"
	ModelActive   ModelStatus = "active"
	ModelStale    ModelStatus = "stale"
	ModelFailed   ModelStatus = "failed"
)

// ModelRecord — версия предиктивной модели для тройки (org, site, metric).
// Перезаписывается только плановым переобучением; агенты читают через
// predict-интерфейс реестра и никогда не пишут сюда напрямую.
type ModelRecord struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	SiteID         string      `json:"site_id"`
	MetricID       string      `json:"metric_id"`
	ModelType      string      `json:"model_type"` // "prophet", "lstm", "baseline", ...
	Status         ModelStatus `json:"status"`

	AccuracyMetrics json.RawMessage `json:"accuracy_metrics,omitempty"` // MAE/MAPE и т.п. от сервиса обучения
	TrainedAt       time.Time       `json:"trained_at"`
	SampleCount     int             `json:"sample_count"`
}

// Forecast — ответ predict-интерфейса.
// Unavailable=true — это штатный, типизированный ответ «модели нет /
// данных мало», а не ошибка: вызывающий агент обязан иметь fallback.
type Forecast struct {
	Values          []float64 `json:"values"`
	ConfidenceLower []float64 `json:"confidence_lower"`
	ConfidenceUpper []float64 `json:"confidence_upper"`
	ModelType       string    `json:"model_type"`
	Unavailable     bool      `json:"unavailable"`
	Reason          string    `json:"reason,omitempty"` // "insufficient_data", "no_model"
}

// MetricPoint — точка исторического ряда (читается из store только-для-чтения).
type MetricPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// MetricSeries — исторический ряд одной метрики одного сайта.
type MetricSeries struct {
	OrganizationID string        `json:"organization_id"`
	SiteID         string        `json:"site_id"`
	MetricID       string        `json:"metric_id"`
	Points         []MetricPoint `json:"points"`
}
