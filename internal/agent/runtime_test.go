package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/audit"
	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
	"github.com/blipee-dev/blipee-orchestrator/internal/scheduler"
	"github.com/blipee-dev/blipee-orchestrator/internal/tools"
)

// --- фейки ---

type fakeBehavior struct {
	def  domain.AgentDefinition
	plan func(in PlanInput) (*Plan, error)
}

func (b *fakeBehavior) Definition() domain.AgentDefinition { return b.def }
func (b *fakeBehavior) Schedule() []scheduler.TaskSpec     { return nil }
func (b *fakeBehavior) Plan(_ context.Context, in PlanInput) (*Plan, error) {
	return b.plan(in)
}

type fakeApprover struct {
	status   domain.ApprovalStatus
	requests []*domain.ApprovalRequest
}

func (a *fakeApprover) RequestAndWait(_ context.Context, req *domain.ApprovalRequest) (domain.ApprovalStatus, error) {
	req.ID = "appr-1"
	a.requests = append(a.requests, req)
	return a.status, nil
}

type fakeClassifier struct{ level domain.ApprovalLevel }

func (c *fakeClassifier) Level(string, float64, bool, string) domain.ApprovalLevel {
	return c.level
}

type fakeTrail struct{ events []audit.ActionEvent }

func (t *fakeTrail) Log(e audit.ActionEvent) { t.events = append(t.events, e) }

type fakeTool struct {
	name    string
	execute func(args map[string]any) (map[string]any, error)
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool" }
func (t *fakeTool) ReadOnly() bool      { return true }
func (t *fakeTool) Schema() tools.Schema {
	return tools.Schema{Params: map[string]tools.ParamSpec{
		"organization_id": {Type: "string", Required: true},
	}}
}
func (t *fakeTool) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	return t.execute(args)
}

func newTestRuntime(t *testing.T, classifier LevelClassifier, approver Approver, trail audit.Auditor, testTools ...tools.Tool) *Runtime {
	t.Helper()
	reg := tools.NewRegistry()
	for _, tool := range testTools {
		require.NoError(t, reg.Register(tool))
	}
	cfg := infra.AgentsConfig{MaxToolRoundtrips: 3, MaxConcurrentTasks: 2}
	return NewRuntime(reg, classifier, approver, trail, cfg, infra.NewMetrics(nil), zap.NewNop())
}

func testTask() *domain.Task {
	return &domain.Task{
		ID:             "task-1",
		OrganizationID: "org-1",
		AgentType:      "carbon_hunter",
		Type:           "emissions_scan",
		Priority:       domain.PriorityMedium,
		ScheduledAt:    time.Now(),
	}
}

// --- тесты ---

func TestRoundBudgetExhaustedWithoutResultIsFailure(t *testing.T) {
	rounds := 0
	behavior := &fakeBehavior{plan: func(in PlanInput) (*Plan, error) {
		rounds++
		// Поведение никогда не заканчивает само и ничего не производит
		return &Plan{ToolCalls: []tools.Request{
			{Tool: "probe", Args: map[string]any{"organization_id": "org-1"}},
		}}, nil
	}}
	tool := &fakeTool{name: "probe", execute: func(map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}}
	rt := newTestRuntime(t, &fakeClassifier{level: domain.LevelNone}, &fakeApprover{}, &fakeTrail{}, tool)

	result := rt.ExecuteTask(context.Background(), behavior, testTask())

	assert.Equal(t, 3, rounds)
	assert.Equal(t, 3, result.ToolRounds)
	// Все раунды сожжены на вызовы, пригодного результата нет
	assert.False(t, result.Success)
	assert.Contains(t, result.Insights[len(result.Insights)-1], "budget exhausted")
}

func TestRoundBudgetExhaustedWithInsightsStaysSuccessful(t *testing.T) {
	behavior := &fakeBehavior{plan: func(in PlanInput) (*Plan, error) {
		// Каждый раунд приносит инсайт, но поведение не успевает закончить
		return &Plan{
			Insights: []string{fmt.Sprintf("observation from round %d", in.Round)},
			ToolCalls: []tools.Request{
				{Tool: "probe", Args: map[string]any{"organization_id": "org-1"}},
			},
		}, nil
	}}
	tool := &fakeTool{name: "probe", execute: func(map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}}
	rt := newTestRuntime(t, &fakeClassifier{level: domain.LevelNone}, &fakeApprover{}, &fakeTrail{}, tool)

	result := rt.ExecuteTask(context.Background(), behavior, testTask())

	// Частичный результат — это успех, пусть и с урезанными инсайтами
	assert.True(t, result.Success)
	assert.Len(t, result.Insights, 4) // 3 раунда + пометка об исчерпании бюджета
	assert.Contains(t, result.Insights[3], "budget exhausted")
}

func TestSchemaViolationReturnsObservation(t *testing.T) {
	var secondRoundObs []tools.Observation
	behavior := &fakeBehavior{plan: func(in PlanInput) (*Plan, error) {
		switch in.Round {
		case 1:
			// Невалидный вызов: нет organization_id, лишний параметр
			return &Plan{ToolCalls: []tools.Request{
				{Tool: "probe", Args: map[string]any{"bogus": 1}},
			}}, nil
		default:
			secondRoundObs = in.Observations
			return &Plan{Done: true, Insights: []string{"corrected"}}, nil
		}
	}}
	tool := &fakeTool{name: "probe", execute: func(map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}}
	rt := newTestRuntime(t, &fakeClassifier{level: domain.LevelNone}, &fakeApprover{}, &fakeTrail{}, tool)

	result := rt.ExecuteTask(context.Background(), behavior, testTask())

	require.True(t, result.Success)
	require.Len(t, secondRoundObs, 1)
	assert.True(t, secondRoundObs[0].SchemaInvalid)
	assert.Contains(t, secondRoundObs[0].Err, "missing required param")
	assert.Contains(t, secondRoundObs[0].Err, "unknown param")
}

func TestConsecutiveToolFailuresDisableTool(t *testing.T) {
	calls := 0
	tool := &fakeTool{name: "probe", execute: func(map[string]any) (map[string]any, error) {
		calls++
		return nil, errors.New("backend down")
	}}

	// Раунды 1-3 зовут инструмент, раунд 4 читает наблюдения третьего вызова
	var lastObs []tools.Observation
	behavior := &fakeBehavior{plan: func(in PlanInput) (*Plan, error) {
		if in.Round == 4 {
			lastObs = in.Observations
			return &Plan{Done: true, Insights: []string{"gave up on probe"}}, nil
		}
		return &Plan{ToolCalls: []tools.Request{
			{Tool: "probe", Args: map[string]any{"organization_id": "org-1"}},
		}}, nil
	}}

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tool))
	cfg := infra.AgentsConfig{MaxToolRoundtrips: 4, MaxConcurrentTasks: 2}
	rt := NewRuntime(reg, &fakeClassifier{level: domain.LevelNone}, &fakeApprover{}, &fakeTrail{}, cfg, infra.NewMetrics(nil), zap.NewNop())

	rt.ExecuteTask(context.Background(), behavior, testTask())

	// Два реальных отказа, третий вызов срезан выключателем
	assert.Equal(t, 2, calls)
	require.Len(t, lastObs, 1)
	assert.Contains(t, lastObs[0].Err, "disabled after consecutive failures")
}

func TestDeniedApprovalKeepsTaskSuccessful(t *testing.T) {
	behavior := &fakeBehavior{plan: func(in PlanInput) (*Plan, error) {
		return &Plan{
			Done: true,
			Actions: []ProposedAction{{
				Type:        "purchase_carbon_offsets",
				Description: "buy offsets",
				Reversible:  false,
			}},
		}, nil
	}}
	approver := &fakeApprover{status: domain.ApprovalDenied}
	trail := &fakeTrail{}
	rt := newTestRuntime(t, &fakeClassifier{level: domain.LevelSupervisor}, approver, trail)

	result := rt.ExecuteTask(context.Background(), behavior, testTask())

	assert.True(t, result.Success, "denied approval must not fail the task")
	assert.Empty(t, result.Actions)
	require.Len(t, result.Insights, 1)
	assert.Contains(t, result.Insights[0], "blocked")

	require.Len(t, approver.requests, 1)
	assert.Equal(t, domain.LevelSupervisor, approver.requests[0].Level)
	require.Len(t, trail.events, 1)
	assert.Equal(t, "blocked_denied", trail.events[0].Status)
}

func TestApprovedIrreversibleActionCarriesApprovalID(t *testing.T) {
	behavior := &fakeBehavior{plan: func(in PlanInput) (*Plan, error) {
		return &Plan{
			Done: true,
			Actions: []ProposedAction{{
				Type:       "file_regulatory_report",
				Reversible: false,
			}},
		}, nil
	}}
	trail := &fakeTrail{}
	rt := newTestRuntime(t, &fakeClassifier{level: domain.LevelExecutive}, &fakeApprover{status: domain.ApprovalApproved}, trail)

	result := rt.ExecuteTask(context.Background(), behavior, testTask())

	require.Len(t, result.Actions, 1)
	// Инвариант: необратимое действие без ApprovalID не существует
	assert.Equal(t, "appr-1", result.Actions[0].ApprovalID)
	assert.False(t, result.Actions[0].Reversible)
	require.Len(t, trail.events, 1)
	assert.Equal(t, "executed", trail.events[0].Status)
	assert.Equal(t, "appr-1", trail.events[0].ApprovalID)
}

func TestReversibleActionSkipsApproval(t *testing.T) {
	behavior := &fakeBehavior{plan: func(in PlanInput) (*Plan, error) {
		return &Plan{
			Done:    true,
			Actions: []ProposedAction{{Type: "publish_monthly_brief", Reversible: true}},
		}, nil
	}}
	approver := &fakeApprover{}
	rt := newTestRuntime(t, &fakeClassifier{level: domain.LevelNone}, approver, &fakeTrail{})

	result := rt.ExecuteTask(context.Background(), behavior, testTask())

	require.Len(t, result.Actions, 1)
	assert.Empty(t, result.Actions[0].ApprovalID)
	assert.Empty(t, approver.requests)
}
