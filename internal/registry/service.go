package registry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// ModelStore — срез репозитория, нужный predict-фасаду.
type ModelStore interface {
	GetActiveModel(ctx context.Context, orgID, siteID, metricID string) (*domain.ModelRecord, error)
}

// SeriesStore — история метрик для передачи сервису инференса.
type SeriesStore interface {
	GetSeries(ctx context.Context, orgID, siteID, metricID string, since time.Time) (*domain.MetricSeries, error)
	GetOrgSeries(ctx context.Context, orgID, metricID string, since time.Time) (*domain.MetricSeries, error)
}

// Service — predict-фасад реестра моделей, который видят агенты.
// Гарантия: Predict никогда не роняет задачу из-за отсутствия модели —
// это типизированный Forecast{Unavailable: true}.
type Service struct {
	models ModelStore
	series SeriesStore
	client *Client
	cfg    infra.InferenceConfig
	logger *zap.Logger
}

func NewService(models ModelStore, series SeriesStore, client *Client, cfg infra.InferenceConfig, logger *zap.Logger) *Service {
	return &Service{
		models: models,
		series: series,
		client: client,
		cfg:    cfg,
		logger: logger.Named("model-registry"),
	}
}

// Predict реализует tools.Forecaster.
func (s *Service) Predict(ctx context.Context, orgID, siteID, metricID string, horizon int) (*domain.Forecast, error) {
	if horizon <= 0 {
		horizon = s.cfg.Horizon
	}

	// 1. Обслуживаем только активную версию модели
	model, err := s.models.GetActiveModel(ctx, orgID, siteID, metricID)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to resolve model: %w", err)
	}
	if model == nil {
		return &domain.Forecast{Unavailable: true, Reason: "no_model"}, nil
	}

	// 2. История для инференса (сервис строит прогноз по ряду)
	hist, err := s.loadSeries(ctx, orgID, siteID, metricID)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to load history: %w", err)
	}
	if len(hist.Points) < s.cfg.MinSamplesFor(model.ModelType) {
		// Данных стало меньше порога — это штатный ответ, не ошибка
		return &domain.Forecast{Unavailable: true, Reason: "insufficient_data"}, nil
	}

	resp, err := s.client.Predict(ctx, PredictRequest{
		OrganizationID: orgID,
		SiteID:         siteID,
		MetricID:       metricID,
		ModelType:      model.ModelType,
		Horizon:        horizon,
		HistoricalData: toPayload(hist),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: predict failed: %w", err)
	}
	if resp.InsufficientData {
		return &domain.Forecast{Unavailable: true, Reason: "insufficient_data"}, nil
	}

	return &domain.Forecast{
		Values:          resp.Forecasted,
		ConfidenceLower: resp.ConfidenceLower,
		ConfidenceUpper: resp.ConfidenceUpper,
		ModelType:       resp.Method,
	}, nil
}

func (s *Service) loadSeries(ctx context.Context, orgID, siteID, metricID string) (*domain.MetricSeries, error) {
	since := time.Now().AddDate(-3, 0, 0)
	if siteID == "" {
		return s.series.GetOrgSeries(ctx, orgID, metricID, since)
	}
	return s.series.GetSeries(ctx, orgID, siteID, metricID, since)
}
