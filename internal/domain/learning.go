package domain

import "time"

// Learning — накопленное наблюдение агента (паттерн + уверенность).
// Append-only: записи никогда не мутируются, только добавляются в
// Knowledge Store и читаются будущими выполнениями задач.
type Learning struct {
	ID             string    `json:"id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	AgentType      string    `json:"agent_type,omitempty"`
	Pattern        string    `json:"pattern"`
	Confidence     float64   `json:"confidence"` // [0,1]
	ApplicableTo   []string  `json:"applicable_to"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}
