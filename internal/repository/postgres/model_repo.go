package postgres

/*
Файл model_repo.go — реестр моделей (таблица ml_models).

Жизненный цикл версии: training -> active | failed. Активация выполняется
в транзакции: прежняя active-версия той же тройки (org, site, metric)
помечается stale, и только затем новая становится active. Провал обучения
(failed) прежнюю active-версию не трогает — она продолжает обслуживать predict.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// InsertModel регистрирует новую версию в статусе training.
func (r *Repo) InsertModel(ctx context.Context, m *domain.ModelRecord) error {
	query := `
		INSERT INTO ml_models (id, organization_id, site_id, metric_id, model_type, status, sample_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 'training', $6, NOW())`

	_, err := r.pool.Exec(ctx, query, m.ID, m.OrganizationID, m.SiteID, m.MetricID, m.ModelType, m.SampleCount)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert model record: %w", err)
	}
	return nil
}

// ActivateModel валидация пройдена: старая active уходит в stale, новая становится active.
func (r *Repo) ActivateModel(ctx context.Context, m *domain.ModelRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Сдвигаем прежнюю активную версию
	_, err = tx.Exec(ctx, `
		UPDATE ml_models SET status = 'stale'
		WHERE organization_id = $1 AND site_id = $2 AND metric_id = $3
		  AND model_type = $4 AND status = 'active' AND id <> $5`,
		m.OrganizationID, m.SiteID, m.MetricID, m.ModelType, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to stale previous model: %w", err)
	}

	// 2. Активируем новую
	tag, err := tx.Exec(ctx, `
		UPDATE ml_models
		SET status = 'active', accuracy_metrics = $1, trained_at = NOW()
		WHERE id = $2 AND status = 'training'`,
		m.AccuracyMetrics, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to activate model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: model %s not in training state", m.ID)
	}

	return tx.Commit(ctx)
}

// FailModel фиксирует провал обучения. Прежняя active-версия не затрагивается.
func (r *Repo) FailModel(ctx context.Context, id, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE ml_models SET status = 'failed', failure_reason = $1 WHERE id = $2 AND status = 'training'`,
		reason, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark model failed: %w", err)
	}
	return nil
}

// GetActiveModel возвращает обслуживаемую версию для тройки (org, site, metric).
// Отсутствие модели — штатная ситуация (nil, nil), не ошибка.
func (r *Repo) GetActiveModel(ctx context.Context, orgID, siteID, metricID string) (*domain.ModelRecord, error) {
	query := `
		SELECT id, organization_id, site_id, metric_id, model_type, status, accuracy_metrics, trained_at, sample_count
		FROM ml_models
		WHERE organization_id = $1 AND site_id = $2 AND metric_id = $3 AND status = 'active'
		ORDER BY trained_at DESC LIMIT 1`

	var m domain.ModelRecord
	err := r.pool.QueryRow(ctx, query, orgID, siteID, metricID).Scan(
		&m.ID, &m.OrganizationID, &m.SiteID, &m.MetricID, &m.ModelType,
		&m.Status, &m.AccuracyMetrics, &m.TrainedAt, &m.SampleCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to fetch active model: %w", err)
	}
	return &m, nil
}

// CountActiveModels — для дашборда.
func (r *Repo) CountActiveModels(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ml_models WHERE status = 'active'`).Scan(&n)
	return n, err
}
