package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blipee-dev/blipee-orchestrator/internal/audit"
)

// WriteBatch сохраняет пачку событий аудита действий за один INSERT.
// Динамическая сборка placeholders — чтобы не делать N сетевых раундов.
func (r *Repo) WriteBatch(ctx context.Context, events []audit.ActionEvent) error {
	if len(events) == 0 {
		return nil
	}

	const numFields = 10
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10)

		detail, _ := json.Marshal(e.Detail)

		vals = append(vals,
			e.ID, e.TaskID, e.OrganizationID, e.AgentType, e.ActionType,
			e.Status, e.ApprovalID, detail, e.DurationMs, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO action_audit (id, task_id, organization_id, agent_type, action_type, status, approval_id, detail, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}

// ListActions — чтение следа для Console API, с фильтрами по тенанту и агенту.
func (r *Repo) ListActions(ctx context.Context, orgID, agentType string, limit int) ([]audit.ActionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, task_id, organization_id, agent_type, action_type, status, approval_id, detail, duration_ms, timestamp
		FROM action_audit
		WHERE ($1 = '' OR organization_id = $1)
		  AND ($2 = '' OR agent_type = $2)
		ORDER BY timestamp DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, orgID, agentType, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit log: %w", err)
	}
	defer rows.Close()

	events := make([]audit.ActionEvent, 0)
	for rows.Next() {
		var e audit.ActionEvent
		var detail []byte
		if err := rows.Scan(
			&e.ID, &e.TaskID, &e.OrganizationID, &e.AgentType, &e.ActionType,
			&e.Status, &e.ApprovalID, &detail, &e.DurationMs, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit event: %w", err)
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Detail)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
