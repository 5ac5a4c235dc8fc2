package postgres

/*
Файл task_repo.go содержит очередь задач агентов (таблица agent_tasks).

Две ключевые гарантии живут здесь:
- Идемпотентность тика: EnqueueUnique вставляет по детерминированному ID
  с ON CONFLICT DO NOTHING — повторный тик не продублирует диспетчеризацию.
- Exactly-once потребление: ClaimDue переводит pending -> executing через
  FOR UPDATE SKIP LOCKED, так что два воркера не заберут одну задачу.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// EnqueueUnique вставляет задачу, если ее там еще нет.
// Возвращает true, если запись действительно создана этой вставкой.
func (r *Repo) EnqueueUnique(ctx context.Context, t *domain.Task) (bool, error) {
	query := `
		INSERT INTO agent_tasks
			(id, organization_id, agent_type, type, priority, data, deadline, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, NOW())
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		t.ID, t.OrganizationID, t.AgentType, t.Type, t.Priority,
		t.Data, t.Deadline, t.ScheduledAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to enqueue task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimDue атомарно забирает до limit готовых задач инстанса агента.
// Порядок: critical > high > medium > low, при равенстве — раньше запланированная.
func (r *Repo) ClaimDue(ctx context.Context, orgID, agentType string, now time.Time, limit int) ([]*domain.Task, error) {
	query := `
		UPDATE agent_tasks SET status = 'executing', started_at = NOW()
		WHERE id IN (
			SELECT id FROM agent_tasks
			WHERE organization_id = $1 AND agent_type = $2
			  AND status = 'pending' AND scheduled_at <= $3
			ORDER BY
				CASE priority
					WHEN 'critical' THEN 3
					WHEN 'high' THEN 2
					WHEN 'medium' THEN 1
					ELSE 0
				END DESC,
				scheduled_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, organization_id, agent_type, type, priority, data, deadline, status, scheduled_at, created_at`

	rows, err := r.pool.Query(ctx, query, orgID, agentType, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to claim tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(
			&t.ID, &t.OrganizationID, &t.AgentType, &t.Type, &t.Priority,
			&t.Data, &t.Deadline, &t.Status, &t.ScheduledAt, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return tasks, nil
}

// FinishTask фиксирует терминальный статус задачи и ее результат.
func (r *Repo) FinishTask(ctx context.Context, taskID string, result *domain.TaskResult) error {
	status := domain.TaskCompleted
	if !result.Success {
		status = domain.TaskFailed
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal task result: %w", err)
	}

	query := `
		UPDATE agent_tasks
		SET status = $1, result = $2, finished_at = NOW()
		WHERE id = $3 AND status = 'executing'`

	tag, err := r.pool.Exec(ctx, query, status, payload, taskID)
	if err != nil {
		return fmt.Errorf("postgres: failed to finish task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: task %s not executing or not found", taskID)
	}
	return nil
}

// ReleaseStale возвращает подвисшие executing-задачи остановленного инстанса
// обратно в pending (вызывается при старте инстанса).
// Возраст меряется от started_at — момента захвата в ClaimDue, не от
// постановки в очередь: давно созданная, но только что взятая задача не
// считается подвисшей. olderThan обязан превышать самое долгое легитимное
// выполнение (парковка на board-approval), иначе живая задача исполнится
// повторно и продублирует side effects.
func (r *Repo) ReleaseStale(ctx context.Context, orgID, agentType string, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE agent_tasks SET status = 'pending', started_at = NULL
		WHERE organization_id = $1 AND agent_type = $2
		  AND status = 'executing' AND started_at < NOW() - $3::interval`

	tag, err := r.pool.Exec(ctx, query, orgID, agentType, olderThan)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to release stale tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}
