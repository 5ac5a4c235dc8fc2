package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// GetGlobalStats — агрегаты для дашборда Console API.
func (r *Repo) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	d := &domain.GlobalStats{}

	// 1. Задачи за последние сутки
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM agent_tasks
		WHERE finished_at > NOW() - INTERVAL '24 hours'`).Scan(&d.TasksCompleted24h, &d.TasksFailed24h)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate task stats: %w", err)
	}

	// 2. Очередь HITL
	if d.PendingApprovals, err = r.CountPendingApprovals(ctx); err != nil {
		return nil, fmt.Errorf("postgres: failed to count pending approvals: %w", err)
	}

	// 3. Активные модели и проактивные сообщения
	if d.ActiveModels, err = r.CountActiveModels(ctx); err != nil {
		return nil, fmt.Errorf("postgres: failed to count active models: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE created_at > NOW() - INTERVAL '24 hours'`).Scan(&d.TriggersFired24h)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to count proactive messages: %w", err)
	}

	return d, nil
}

// GetWatermark читает последний обработанный момент планировщика.
// Пустая строка = первый запуск.
func (r *Repo) GetWatermark(ctx context.Context, key string) (time.Time, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT value FROM orchestrator_kv WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Нет строки — планировщик еще не тикал
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("postgres: failed to read watermark: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: corrupt watermark %q: %w", raw, err)
	}
	return t, nil
}

// SetWatermark сохраняет момент успешного тика (upsert).
func (r *Repo) SetWatermark(ctx context.Context, key string, t time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orchestrator_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("postgres: failed to set watermark: %w", err)
	}
	return nil
}
