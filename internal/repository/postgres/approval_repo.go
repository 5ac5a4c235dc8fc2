package postgres

/*
Файл approval_repo.go содержит реализацию методов для механизма Human-in-the-loop
(таблица agent_approvals). Заявка получает ровно одну резолюцию: все переходы
выполняются условным UPDATE ... WHERE status = 'PENDING', что исключает
Double Decision и гонку «оператор против таймера истечения».
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// CreateApproval создает запись, выполнение действия приостановлено до резолюции.
// ExpiresAt с нулевым временем пишется как NULL — такие заявки не истекают сами.
func (r *Repo) CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	var expires *time.Time
	if !app.ExpiresAt.IsZero() {
		expires = &app.ExpiresAt
	}

	query := `
		INSERT INTO agent_approvals
			(id, task_id, agent_type, organization_id, level, action_type, payload, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), $9)`

	_, err := r.pool.Exec(ctx, query,
		app.ID, app.TaskID, app.AgentType, app.OrganizationID,
		app.Level, app.ActionType, app.Payload, app.Status, expires,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

// GetApprovalByID — детали заявки для анализа оператором.
func (r *Repo) GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	query := `
		SELECT id, task_id, agent_type, organization_id, level, action_type, payload, status,
		       reviewer_id, comment, created_at, expires_at, updated_at
		FROM agent_approvals WHERE id = $1`

	return r.scanApproval(r.pool.QueryRow(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repo) scanApproval(row rowScanner) (*domain.ApprovalRequest, error) {
	var app domain.ApprovalRequest
	var reviewerID, comment sql.NullString // Для NULL из БД
	var expires sql.NullTime

	err := row.Scan(
		&app.ID, &app.TaskID, &app.AgentType, &app.OrganizationID,
		&app.Level, &app.ActionType, &app.Payload, &app.Status,
		&reviewerID, &comment, &app.CreatedAt, &expires, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("approval not found: %w", err)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if reviewerID.Valid {
		val := reviewerID.String
		app.ReviewerID = &val
	}
	if comment.Valid {
		val := comment.String
		app.Comment = &val
	}
	if expires.Valid {
		app.ExpiresAt = expires.Time
	}
	return &app, nil
}

// FindApprovals — выборка очереди заявок (Decision Queue) по статусу.
func (r *Repo) FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	query := `
		SELECT id, task_id, agent_type, organization_id, level, action_type, payload, status,
		       reviewer_id, comment, created_at, expires_at, updated_at
		FROM agent_approvals`

	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		app, err := r.scanApproval(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, app)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// DecideApproval атомарно фиксирует резолюцию заявки.
// Условие WHERE status = 'PENDING' отсекает повторные решения; возвращаем
// task_id — он нужен для публикации сигнала пробуждения в Redis.
func (r *Repo) DecideApproval(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (string, error) {
	var taskID string
	query := `
		UPDATE agent_approvals
		SET status = $1, reviewer_id = $2, comment = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'PENDING'
		RETURNING task_id`

	err := r.pool.QueryRow(ctx, query, status, reviewerID, comment, id).Scan(&taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо ID неверный, либо решение уже было принято ранее
			return "", domain.ErrAlreadyProcessed
		}
		return "", fmt.Errorf("postgres: failed to update approval status: %w", err)
	}
	return taskID, nil
}

// ExpireApproval переводит конкретную заявку в EXPIRED, если она все еще PENDING.
// Возвращает финальный статус: если гонку выиграл оператор, вернется его решение.
func (r *Repo) ExpireApproval(ctx context.Context, id string) (domain.ApprovalStatus, error) {
	query := `
		UPDATE agent_approvals
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return "", fmt.Errorf("postgres: failed to expire approval: %w", err)
	}

	var status domain.ApprovalStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM agent_approvals WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("postgres: failed to read approval status: %w", err)
	}
	return status, nil
}

// SweepExpired — страховочный обход: гасит заявки, чей дедлайн прошел,
// а владеющий воркер не дожил до своего таймера (рестарт процесса).
func (r *Repo) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE agent_approvals
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE status = 'PENDING' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING id`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to sweep expired approvals: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan approval id error: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountPendingApprovals — для дашборда и gauge-метрики.
func (r *Repo) CountPendingApprovals(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agent_approvals WHERE status = 'PENDING'`).Scan(&n)
	return n, err
}
