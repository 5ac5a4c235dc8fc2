package domain

// GlobalStats — агрегаты для дашборда Console API.
type GlobalStats struct {
	RunningAgents     int `json:"running_agents"`
	UnhealthyAgents   int `json:"unhealthy_agents"`
	PendingApprovals  int `json:"pending_approvals"`
	TasksCompleted24h int `json:"tasks_completed_24h"`
	TasksFailed24h    int `json:"tasks_failed_24h"`
	TriggersFired24h  int `json:"triggers_fired_24h"`
	ActiveModels      int `json:"active_models"`
}
