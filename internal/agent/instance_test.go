package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

type recordingQueue struct {
	fakeQueue
	releasedOlderThan time.Duration
}

func (q *recordingQueue) ReleaseStale(_ context.Context, _, _ string, olderThan time.Duration) (int64, error) {
	q.releasedOlderThan = olderThan
	return 0, nil
}

func newIdleInstance(t *testing.T, queue TaskQueue, cfg infra.AgentsConfig) *Instance {
	t.Helper()
	behavior := &fakeBehavior{
		def: domain.AgentDefinition{ID: "carbon_hunter", RunInterval: time.Hour},
		plan: func(PlanInput) (*Plan, error) {
			return &Plan{Done: true}, nil
		},
	}
	rt := newTestRuntime(t, &fakeClassifier{}, &fakeApprover{}, &fakeTrail{})
	return NewInstance("org-1", behavior, rt, queue, fakeSink{}, cfg, infra.NewMetrics(nil), zap.NewNop())
}

// Окно ReleaseStale не должно совпадать с grace остановки: задача может
// легитимно висеть в executing дольше часа, пока ждет approval.
func TestStartReleasesStaleWithConfiguredGrace(t *testing.T) {
	queue := &recordingQueue{}
	cfg := infra.AgentsConfig{
		ShutdownGrace:  100 * time.Millisecond,
		StaleTaskGrace: 6 * time.Hour,
	}
	inst := newIdleInstance(t, queue, cfg)

	inst.Start(context.Background())
	inst.Stop()

	assert.Equal(t, 6*time.Hour, queue.releasedOlderThan)
}

func TestStartReleasesStaleWithDefaultGrace(t *testing.T) {
	queue := &recordingQueue{}
	inst := newIdleInstance(t, queue, infra.AgentsConfig{ShutdownGrace: 100 * time.Millisecond})

	inst.Start(context.Background())
	inst.Stop()

	// Дефолт держится выше самого долгого approval TTL
	assert.Equal(t, 2*time.Hour, queue.releasedOlderThan)
}
