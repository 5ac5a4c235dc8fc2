package agent

/*
Файл runtime.go — исполнитель одной задачи: bounded tool-цикл.

Контракт цикла:
  - Жесткий потолок round-trip'ов (конфиг, дефолт 6): поведение, не успевшее
    закончить, получает частичный результат, а не вечный цикл.
  - Ошибка инструмента — наблюдение, не исключение: агент видит ее и может
    пойти другим путем. Два последовательных отказа ОДНОГО инструмента
    выключают его до конца задачи.
  - Невалидные аргументы (SchemaError) — тоже наблюдение: агент чинит вызов
    сам, в рамках того же бюджета раундов.
  - Необратимое действие исполняется только после APPROVED; DENIED и EXPIRED
    не валят задачу — она завершается успешно с insight о блокировке.
*/

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/audit"
	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
	"github.com/blipee-dev/blipee-orchestrator/internal/tools"
)

// Approver — worker-сторона Approval System.
type Approver interface {
	RequestAndWait(ctx context.Context, req *domain.ApprovalRequest) (domain.ApprovalStatus, error)
}

// LevelClassifier — таблица решений уровня подписи.
type LevelClassifier interface {
	Level(actionType string, financialImpact float64, reversible bool, category string) domain.ApprovalLevel
}

type Runtime struct {
	registry   *tools.Registry
	classifier LevelClassifier
	approver   Approver
	trail      audit.Auditor
	cfg        infra.AgentsConfig
	metrics    *infra.Metrics
	logger     *zap.Logger
}

func NewRuntime(registry *tools.Registry, classifier LevelClassifier, approver Approver, trail audit.Auditor, cfg infra.AgentsConfig, metrics *infra.Metrics, logger *zap.Logger) *Runtime {
	return &Runtime{
		registry:   registry,
		classifier: classifier,
		approver:   approver,
		trail:      trail,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.Named("runtime"),
	}
}

// ExecuteTask гоняет tool-цикл поведения до Done или исчерпания бюджета.
// Возвращаемый TaskResult всегда пригоден для FinishTask, даже при ошибке.
func (r *Runtime) ExecuteTask(ctx context.Context, behavior Behavior, task *domain.Task) *domain.TaskResult {
	start := time.Now()
	log := r.logger.With(
		zap.String("task_id", task.ID),
		zap.String("agent_type", task.AgentType),
		zap.String("task_type", task.Type),
		zap.String("org", task.OrganizationID))

	result := &domain.TaskResult{TaskID: task.ID, Success: true}

	maxRounds := r.cfg.MaxToolRoundtrips
	if maxRounds <= 0 {
		maxRounds = 6
	}

	var observations []tools.Observation
	// Счетчик последовательных отказов по инструментам
	failStreak := make(map[string]int)

	for round := 1; round <= maxRounds; round++ {
		result.ToolRounds = round

		plan, err := behavior.Plan(ctx, PlanInput{Task: task, Observations: observations, Round: round})
		if err != nil {
			// Частичный результат — это успех; полное отсутствие — failure
			log.Error("behavior planning failed", zap.Int("round", round), zap.Error(err))
			if len(result.Actions) == 0 && len(result.Insights) == 0 {
				result.Success = false
				result.Insights = append(result.Insights, "planning failed: "+err.Error())
			}
			break
		}

		result.Insights = append(result.Insights, plan.Insights...)
		result.NextSteps = append(result.NextSteps, plan.NextSteps...)
		result.Learnings = append(result.Learnings, plan.Learnings...)

		for i := range plan.Actions {
			r.executeAction(ctx, task, &plan.Actions[i], result, log)
		}

		if plan.Done {
			break
		}
		if len(plan.ToolCalls) == 0 {
			// Ни Done, ни вызовов — поведению нечего сказать, крутиться незачем
			break
		}
		if round == maxRounds {
			log.Warn("tool round budget exhausted", zap.Int("rounds", maxRounds))
			// Бюджет сгорел впустую — ни действий, ни инсайтов — это failure;
			// любой частичный результат остается успехом
			if len(result.Actions) == 0 && len(result.Insights) == 0 {
				result.Success = false
			}
			result.Insights = append(result.Insights, "tool round budget exhausted, partial result")
			break
		}

		observations = r.callTools(ctx, plan.ToolCalls, failStreak, log)

		select {
		case <-ctx.Done():
			result.Insights = append(result.Insights, "task interrupted: "+ctx.Err().Error())
			result.Duration = time.Since(start)
			return result
		default:
		}
	}

	result.Duration = time.Since(start)
	return result
}

// callTools исполняет один раунд вызовов и возвращает наблюдения.
func (r *Runtime) callTools(ctx context.Context, calls []tools.Request, failStreak map[string]int, log *zap.Logger) []tools.Observation {
	observations := make([]tools.Observation, 0, len(calls))

	for _, call := range calls {
		obs := tools.Observation{Tool: call.Tool}

		if failStreak[call.Tool] >= 2 {
			// Инструмент выключен до конца задачи
			obs.Err = fmt.Sprintf("tool %s disabled after consecutive failures", call.Tool)
			observations = append(observations, obs)
			continue
		}

		tool, err := r.registry.Get(call.Tool)
		if err != nil {
			obs.Err = err.Error()
			obs.SchemaInvalid = true // Неизвестный инструмент — ошибка контракта, агент может исправиться
			r.metrics.ToolCallsTotal.WithLabelValues(call.Tool, "schema_invalid").Inc()
			observations = append(observations, obs)
			continue
		}

		if err := tools.ValidateArgs(tool, call.Args); err != nil {
			var schemaErr *tools.SchemaError
			if errors.As(err, &schemaErr) {
				obs.SchemaInvalid = true
			}
			obs.Err = err.Error()
			r.metrics.ToolCallsTotal.WithLabelValues(call.Tool, "schema_invalid").Inc()
			log.Debug("tool call rejected by schema", zap.String("tool", call.Tool), zap.String("problems", err.Error()))
			observations = append(observations, obs)
			continue
		}

		data, err := tool.Execute(ctx, call.Args)
		if err != nil {
			failStreak[call.Tool]++
			obs.Err = err.Error()
			r.metrics.ToolCallsTotal.WithLabelValues(call.Tool, "error").Inc()
			log.Warn("tool execution failed",
				zap.String("tool", call.Tool),
				zap.Int("streak", failStreak[call.Tool]),
				zap.Error(err))
			observations = append(observations, obs)
			continue
		}

		failStreak[call.Tool] = 0
		obs.Data = data
		r.metrics.ToolCallsTotal.WithLabelValues(call.Tool, "ok").Inc()
		observations = append(observations, obs)
	}
	return observations
}

// executeAction фиксирует действие, прогнав его через Approval System при
// необходимости. Заблокированное действие не попадает в result.Actions.
func (r *Runtime) executeAction(ctx context.Context, task *domain.Task, action *ProposedAction, result *domain.TaskResult, log *zap.Logger) {
	started := time.Now()
	level := r.classifier.Level(action.Type, action.FinancialImpact, action.Reversible, action.Category)

	executed := domain.ExecutedAction{
		Type:         action.Type,
		Description:  action.Description,
		Impact:       action.Impact,
		Reversible:   action.Reversible,
		RollbackPlan: action.RollbackPlan,
	}

	if level != domain.LevelNone {
		req := &domain.ApprovalRequest{
			TaskID:         task.ID,
			AgentType:      task.AgentType,
			OrganizationID: task.OrganizationID,
			Level:          level,
			ActionType:     action.Type,
			Payload:        action.Payload,
		}
		status, err := r.approver.RequestAndWait(ctx, req)
		if err != nil {
			log.Error("approval flow failed", zap.String("action", action.Type), zap.Error(err))
			result.Insights = append(result.Insights,
				fmt.Sprintf("action %s not executed: approval flow error", action.Type))
			r.auditAction(task, action, req.ID, "failed", started)
			return
		}

		req.Status = status
		if !req.Granted() {
			// DENIED и EXPIRED равнозначны; задача остается успешной
			log.Info("action blocked by approval decision",
				zap.String("action", action.Type),
				zap.String("status", string(status)))
			result.Insights = append(result.Insights,
				fmt.Sprintf("action %s blocked: approval %s", action.Type, status))
			r.auditAction(task, action, req.ID, "blocked_"+strings.ToLower(string(status)), started)
			return
		}
		executed.ApprovalID = req.ID
	}

	result.Actions = append(result.Actions, executed)
	r.auditAction(task, action, executed.ApprovalID, "executed", started)
	log.Info("action executed",
		zap.String("action", action.Type),
		zap.String("level", string(level)),
		zap.Bool("reversible", action.Reversible))
}

func (r *Runtime) auditAction(task *domain.Task, action *ProposedAction, approvalID, status string, started time.Time) {
	r.trail.Log(audit.ActionEvent{
		ID:             uuid.New().String(),
		TaskID:         task.ID,
		OrganizationID: task.OrganizationID,
		AgentType:      task.AgentType,
		ActionType:     action.Type,
		Status:         status,
		ApprovalID:     approvalID,
		Detail: map[string]interface{}{
			"description":      action.Description,
			"impact":           action.Impact,
			"financial_impact": action.FinancialImpact,
			"reversible":       action.Reversible,
		},
		DurationMs: time.Since(started).Milliseconds(),
	})
}
