package audit

import "time"

// ActionEvent — одна запись аудиторского следа действий агентов.
// По этому следу проверяется инвариант обратимости: у каждого события
// с action-типом необратимого действия заполнен ApprovalID.
type ActionEvent struct {
	ID             string                 `json:"id"`              // UUID события
	TaskID         string                 `json:"task_id"`         // В рамках какой задачи
	OrganizationID string                 `json:"organization_id"` // Чей тенант
	AgentType      string                 `json:"agent_type"`      // Кто делал
	ActionType     string                 `json:"action_type"`     // Что сделал (или tool:имя)

	Status     string                 `json:"status"`      // "executed", "blocked_denied", "blocked_expired", "failed"
	ApprovalID string                 `json:"approval_id"` // Пусто для обратимых/read-only действий
	Detail     map[string]interface{} `json:"detail"`

	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}
