package postgres

import (
	"context"
	"fmt"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// InsertMessage пишет проактивное сообщение в Conversation Sink (таблица messages).
// Вызывается строго после успешного захвата cooldown-окна в Redis.
func (r *Repo) InsertMessage(ctx context.Context, m *domain.ProactiveMessage) error {
	query := `
		INSERT INTO messages (id, organization_id, agent_type, rule_name, title, body, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.OrganizationID, m.AgentType, m.RuleName, m.Title, m.Body, m.Severity,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert proactive message: %w", err)
	}
	return nil
}

// ListMessages — лента проактивных сообщений тенанта для Console API.
func (r *Repo) ListMessages(ctx context.Context, orgID string, limit int) ([]*domain.ProactiveMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, organization_id, agent_type, rule_name, title, body, severity, created_at
		FROM messages
		WHERE ($1 = '' OR organization_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query messages: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.ProactiveMessage, 0)
	for rows.Next() {
		var m domain.ProactiveMessage
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.AgentType, &m.RuleName,
			&m.Title, &m.Body, &m.Severity, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
