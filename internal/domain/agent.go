package domain

import "time"

// InstanceState — жизненный цикл запущенного инстанса агента.
// Единственный писатель состояния — Agent Manager.
type InstanceState string

const (
	InstanceCreated InstanceState = "created"
	InstanceRunning InstanceState = "running"
	InstancePaused  InstanceState = "paused"
	InstanceStopped InstanceState = "stopped"
)

// Capability — что агент умеет делать и на каких правах.
type Capability struct {
	Name                string   `json:"name"`
	RequiredPermissions []string `json:"required_permissions"`
	MaxAutonomyLevel    int      `json:"max_autonomy_level"` // 1..5
}

// AgentDefinition — статическое описание типа агента.
// Неизменяемо после деплоя; загружается при старте Agent Manager.
type AgentDefinition struct {
	ID           string        `json:"id"` // Тег типа: "carbon_hunter", "compliance_guardian", ...
	Capabilities []Capability  `json:"capabilities"`
	RunInterval  time.Duration `json:"run_interval"`
}

// AgentInstance — один работающий агент, привязанный к одному тенанту.
// Снэпшот для Console API и мониторинга; живое состояние держит менеджер.
type AgentInstance struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	AgentType      string        `json:"agent_type"`
	State          InstanceState `json:"state"`

	StartedAt   time.Time `json:"started_at"`
	LastSuccess time.Time `json:"last_success"` // Последняя успешно выполненная задача
	Restarts24h int       `json:"restarts_24h"`
	Healthy     bool      `json:"healthy"`
}
