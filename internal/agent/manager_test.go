package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

type fakeQueue struct{}

func (fakeQueue) ClaimDue(context.Context, string, string, time.Time, int) ([]*domain.Task, error) {
	return nil, nil
}
func (fakeQueue) FinishTask(context.Context, string, *domain.TaskResult) error { return nil }
func (fakeQueue) ReleaseStale(context.Context, string, string, time.Duration) (int64, error) {
	return 0, nil
}

type fakeSink struct{}

func (fakeSink) Append(context.Context, string, string, []domain.Learning) {}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	idle := &fakeBehavior{
		// Длинный интервал: диспетчерский цикл в тесте не тикает
		def: domain.AgentDefinition{ID: "carbon_hunter", RunInterval: time.Hour},
		plan: func(PlanInput) (*Plan, error) {
			return &Plan{Done: true}, nil
		},
	}
	rt := newTestRuntime(t, &fakeClassifier{}, &fakeApprover{}, &fakeTrail{})
	cfg := infra.AgentsConfig{ShutdownGrace: 100 * time.Millisecond}
	return NewManager(map[string]Behavior{"carbon_hunter": idle}, rt, fakeQueue{}, fakeSink{}, nil, cfg, infra.NewMetrics(nil), zap.NewNop())
}

func TestStartAgentIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	defer m.StopAll()
	ctx := context.Background()

	require.NoError(t, m.StartAgent(ctx, "org-1", "carbon_hunter"))
	require.NoError(t, m.StartAgent(ctx, "org-1", "carbon_hunter"))

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "org-1:carbon_hunter", list[0].ID)
	assert.Equal(t, domain.InstanceRunning, list[0].State)
}

func TestStartAgentUnknownType(t *testing.T) {
	m := newTestManager(t)
	err := m.StartAgent(context.Background(), "org-1", "mystery_agent")
	assert.ErrorContains(t, err, "unknown agent type")
}

func TestStopAgentIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Остановка несуществующего инстанса — тихий no-op
	m.StopAgent("org-1", "carbon_hunter")

	require.NoError(t, m.StartAgent(ctx, "org-1", "carbon_hunter"))
	m.StopAgent("org-1", "carbon_hunter")
	m.StopAgent("org-1", "carbon_hunter")
	assert.Empty(t, m.List())
}

func TestListIsSorted(t *testing.T) {
	m := newTestManager(t)
	defer m.StopAll()
	ctx := context.Background()

	require.NoError(t, m.StartAgent(ctx, "org-b", "carbon_hunter"))
	require.NoError(t, m.StartAgent(ctx, "org-a", "carbon_hunter"))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "org-a:carbon_hunter", list[0].ID)
	assert.Equal(t, "org-b:carbon_hunter", list[1].ID)
}

func TestRestartStormGuardQuarantines(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := instanceKey("org-1", "carbon_hunter")

	require.NoError(t, m.StartAgent(ctx, "org-1", "carbon_hunter"))
	now := time.Now()

	// Три рестарта в суточном окне — предел терпения супервизора
	for n := 0; n < 3; n++ {
		m.mu.Lock()
		inst := m.instances[key]
		m.mu.Unlock()
		require.NotNil(t, inst)
		m.restartInstance(ctx, key, inst, now)
	}
	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Restarts24h)

	// Четвертый срыв выбивает storm guard: инстанс останавливается насовсем
	m.mu.Lock()
	inst := m.instances[key]
	m.mu.Unlock()
	m.restartInstance(ctx, key, inst, now)
	assert.Empty(t, m.List())

	// Массовый подъем карантин не снимает
	m.StartAll(ctx, []string{"org-1"})
	assert.Empty(t, m.List())

	// Адресный запуск (команда оператора) — снимает
	require.NoError(t, m.StartAgent(ctx, "org-1", "carbon_hunter"))
	require.Len(t, m.List(), 1)
	m.StopAll()
}

func TestStopAllDrainsEverything(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartAgent(ctx, "org-1", "carbon_hunter"))
	require.NoError(t, m.StartAgent(ctx, "org-2", "carbon_hunter"))

	m.StopAll()
	assert.Empty(t, m.List())
}
