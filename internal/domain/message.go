package domain

import "time"

// ProactiveMessage — side effect сработавшего триггера: одно unsolicited
// сообщение пользователю в Conversation Sink. Инвариант: не более одного
// сообщения на тройку (agent, rule, tenant) внутри окна cooldown.
type ProactiveMessage struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	AgentType      string    `json:"agent_type"`
	RuleName       string    `json:"rule_name"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Severity       string    `json:"severity"` // "info", "warning", "critical"
	CreatedAt      time.Time `json:"created_at"`
}
