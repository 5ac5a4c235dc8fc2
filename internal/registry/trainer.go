package registry

/*
Файл trainer.go — оркестрация планового переобучения моделей.

Семантика: training -> active только после успешной валидации новой версии;
недостаток данных — ожидаемый исход (логируется, новая модель не создается,
прежняя active остается обслуживаемой). Отмена цикла возможна только между
рядами, не посреди обучения одного ряда (best-effort).
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// TrainerStore — запись версий моделей.
type TrainerStore interface {
	InsertModel(ctx context.Context, m *domain.ModelRecord) error
	ActivateModel(ctx context.Context, m *domain.ModelRecord) error
	FailModel(ctx context.Context, id, reason string) error
}

// TenantReader — обход тенантов и их рядов.
type TenantReader interface {
	ListActiveOrganizations(ctx context.Context) ([]string, error)
	ListSeriesKeys(ctx context.Context, orgID string) ([][2]string, error)
	GetSeries(ctx context.Context, orgID, siteID, metricID string, since time.Time) (*domain.MetricSeries, error)
}

// TrainReport — итог одного цикла для CLI и логов.
type TrainReport struct {
	Trained int
	Skipped int // insufficient data — штатный исход
	Failed  int
}

type Trainer struct {
	store  TrainerStore
	reader TenantReader
	client *Client
	cfg    infra.InferenceConfig
	logger *zap.Logger
}

func NewTrainer(store TrainerStore, reader TenantReader, client *Client, cfg infra.InferenceConfig, logger *zap.Logger) *Trainer {
	return &Trainer{
		store:  store,
		reader: reader,
		client: client,
		cfg:    cfg,
		logger: logger.Named("trainer"),
	}
}

// RunCycle обучает по одной версии на каждую тройку (org, site, metric).
func (t *Trainer) RunCycle(ctx context.Context, modelType string) (*TrainReport, error) {
	if modelType == "" {
		modelType = "prophet"
	}

	orgs, err := t.reader.ListActiveOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("trainer: failed to list organizations: %w", err)
	}

	report := &TrainReport{}
	for _, orgID := range orgs {
		keys, err := t.reader.ListSeriesKeys(ctx, orgID)
		if err != nil {
			// Один тенант не валит весь цикл
			t.logger.Error("failed to list series keys", zap.String("org", orgID), zap.Error(err))
			report.Failed++
			continue
		}

		for _, key := range keys {
			// Точка отмены: между рядами, не внутри обучения
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			default:
			}

			t.trainOne(ctx, orgID, key[0], key[1], modelType, report)
		}
	}

	t.logger.Info("training cycle finished",
		zap.Int("trained", report.Trained),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (t *Trainer) trainOne(ctx context.Context, orgID, siteID, metricID, modelType string, report *TrainReport) {
	series, err := t.reader.GetSeries(ctx, orgID, siteID, metricID, time.Now().AddDate(-3, 0, 0))
	if err != nil {
		t.logger.Error("failed to load series", zap.String("org", orgID), zap.String("metric", metricID), zap.Error(err))
		report.Failed++
		return
	}

	// 1. Недостаток данных — ожидаемо: просто не создаем новую версию
	minSamples := t.cfg.MinSamplesFor(modelType)
	if len(series.Points) < minSamples {
		t.logger.Info("insufficient data, skipping",
			zap.String("org", orgID), zap.String("site", siteID), zap.String("metric", metricID),
			zap.Int("points", len(series.Points)), zap.Int("required", minSamples))
		report.Skipped++
		return
	}

	// 2. Регистрируем версию в статусе training
	record := &domain.ModelRecord{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		SiteID:         siteID,
		MetricID:       metricID,
		ModelType:      modelType,
		SampleCount:    len(series.Points),
	}
	if err := t.store.InsertModel(ctx, record); err != nil {
		t.logger.Error("failed to register model version", zap.Error(err))
		report.Failed++
		return
	}

	// 3. Обучение во внешнем сервисе
	resp, err := t.client.Train(ctx, TrainRequest{
		OrganizationID: orgID,
		SiteID:         siteID,
		MetricID:       metricID,
		ModelType:      modelType,
		HistoricalData: toPayload(series),
	})
	if err != nil {
		_ = t.store.FailModel(ctx, record.ID, err.Error())
		t.logger.Error("training call failed", zap.String("model", record.ID), zap.Error(err))
		report.Failed++
		return
	}

	// 4. Сервис сам решил, что данных мало — прежняя active не трогается
	if resp.InsufficientData {
		_ = t.store.FailModel(ctx, record.ID, "insufficient_data")
		t.logger.Info("service reported insufficient data",
			zap.String("org", orgID), zap.String("metric", metricID))
		report.Skipped++
		return
	}

	// 5. Валидация не пройдена — это failed, но не фатально для цикла
	if !resp.Validated {
		_ = t.store.FailModel(ctx, record.ID, resp.Reason)
		report.Failed++
		return
	}

	// 6. Валидация пройдена: swap active
	record.AccuracyMetrics = resp.AccuracyMetrics
	if err := t.store.ActivateModel(ctx, record); err != nil {
		t.logger.Error("failed to activate model", zap.String("model", record.ID), zap.Error(err))
		report.Failed++
		return
	}
	report.Trained++
}
