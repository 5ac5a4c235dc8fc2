package agent

import (
	"context"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/scheduler"
	"github.com/blipee-dev/blipee-orchestrator/internal/tools"
)

// ProposedAction — действие с side effect, которое агент хочет совершить.
// Классификацию уровня подписи и прогон через Approval System делает Runtime;
// поведение только декларирует намерение и его свойства.
type ProposedAction struct {
	Type            string
	Description     string
	Impact          string
	FinancialImpact float64
	Reversible      bool
	RollbackPlan    string
	Category        string // operational | strategic | communication
	Payload         string // Что именно будет сделано — уходит ревьюеру
}

// Plan — результат одного reasoning-раунда поведения.
// Либо ToolCalls (нужны еще наблюдения), либо Done с финальными полями.
type Plan struct {
	ToolCalls []tools.Request

	Actions   []ProposedAction
	Insights  []string
	NextSteps []string
	Learnings []domain.Learning
	Done      bool
}

// PlanInput — контекст раунда: задача и все накопленные наблюдения.
type PlanInput struct {
	Task         *domain.Task
	Observations []tools.Observation
	Round        int // 1-based
}

// Behavior — доменная логика одного типа агента.
// Реализации не трогают БД и Redis напрямую: мир виден только через
// инструменты, мутируется только через ProposedAction.
type Behavior interface {
	Definition() domain.AgentDefinition

	// Schedule — строки расписания для Task Scheduler.
	Schedule() []scheduler.TaskSpec

	// Plan вызывается Runtime'ом по разу на round-trip, пока не Done
	// или не исчерпан бюджет раундов.
	Plan(ctx context.Context, in PlanInput) (*Plan, error)
}

// findObservation — последнее удачное наблюдение инструмента в раунде.
func findObservation(observations []tools.Observation, tool string) *tools.Observation {
	for idx := len(observations) - 1; idx >= 0; idx-- {
		if observations[idx].Tool == tool && observations[idx].Err == "" {
			return &observations[idx]
		}
	}
	return nil
}

// numField достает число из данных наблюдения (JSON-числа — float64).
func numField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key].(float64)
	return v, ok
}
