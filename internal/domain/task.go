package domain

import (
	"encoding/json"
	"time"
)

// TaskStatus — жизненный цикл задачи в таблице agent_tasks.
// Задача потребляется ровно один раз: pending -> executing -> completed/failed.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskExecuting TaskStatus = "executing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskPriority определяет порядок диспетчеризации внутри одного инстанса агента.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Rank возвращает числовой вес приоритета (critical > high > medium > low).
// Используется и в ORDER BY на стороне БД, и при сортировке в памяти.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Task — единица запланированной работы агента.
// Создается Task Scheduler'ом или Trigger Evaluator'ом, ID детерминирован
// (uuid5 от org+agent+type+время слота), что дает идемпотентность тика.
type Task struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	AgentType      string          `json:"agent_type"`
	Type           string          `json:"type"`
	Priority       TaskPriority    `json:"priority"`
	Data           json.RawMessage `json:"data,omitempty"`
	Deadline       *time.Time      `json:"deadline,omitempty"`

	Status      TaskStatus `json:"status"`
	ScheduledAt time.Time  `json:"scheduled_at"` // Слот расписания, к которому привязана задача
	CreatedAt   time.Time  `json:"created_at"`
}

// ExecutedAction — зафиксированное действие агента с реальным side effect.
// Инвариант: Reversible=false допустимо только после решения APPROVED
// по соответствующему Approval Request (проверяется в Runtime, виден в аудите).
type ExecutedAction struct {
	Type         string `json:"type"`
	Description  string `json:"description"`
	Impact       string `json:"impact"`
	Reversible   bool   `json:"reversible"`
	RollbackPlan string `json:"rollback_plan,omitempty"`
	ApprovalID   string `json:"approval_id,omitempty"` // Заполнен для необратимых действий
}

// TaskResult — итог одного выполнения задачи.
// Success=false ставится только если к моменту обрыва цикла нет
// ни одного пригодного результата; частичный результат — это успех.
type TaskResult struct {
	TaskID    string           `json:"task_id"`
	Success   bool             `json:"success"`
	Actions   []ExecutedAction `json:"actions"`
	Insights  []string         `json:"insights"`
	NextSteps []string         `json:"next_steps"`
	Learnings []Learning       `json:"learnings"`

	ToolRounds int           `json:"tool_rounds"` // Сколько round-trip'ов реально израсходовано
	Duration   time.Duration `json:"duration"`
}
