package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// InsertLearnings дописывает наблюдения в таблицу agent_learnings.
// Таблица append-only: ни UPDATE, ни DELETE здесь не существует.
func (r *Repo) InsertLearnings(ctx context.Context, orgID, agentType string, learnings []domain.Learning) error {
	if len(learnings) == 0 {
		return nil
	}

	batchQuery := `
		INSERT INTO agent_learnings (id, organization_id, agent_type, pattern, confidence, applicable_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`

	for _, l := range learnings {
		id := l.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := r.pool.Exec(ctx, batchQuery, id, orgID, agentType, l.Pattern, l.Confidence, l.ApplicableTo); err != nil {
			return fmt.Errorf("postgres: failed to insert learning: %w", err)
		}
	}
	return nil
}

// FindLearnings возвращает накопленные наблюдения по теме (элементу applicable_to),
// свежие первыми. Читается агентами для смещения решений будущих задач.
func (r *Repo) FindLearnings(ctx context.Context, orgID, topic string, limit int) ([]domain.Learning, error) {
	query := `
		SELECT id, organization_id, agent_type, pattern, confidence, applicable_to, created_at
		FROM agent_learnings
		WHERE organization_id = $1 AND $2 = ANY(applicable_to)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, orgID, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query learnings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Learning, 0)
	for rows.Next() {
		var l domain.Learning
		if err := rows.Scan(&l.ID, &l.OrganizationID, &l.AgentType, &l.Pattern, &l.Confidence, &l.ApplicableTo, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan learning: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
