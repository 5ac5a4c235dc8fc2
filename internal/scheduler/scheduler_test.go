package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// fakeStore — память вместо Postgres: дедупликация по ID как в EnqueueUnique.
type fakeStore struct {
	tasks      map[string]*domain.Task
	watermark  time.Time
	orgs       []string
	enqueueErr error
}

func newFakeStore(orgs ...string) *fakeStore {
	return &fakeStore{tasks: make(map[string]*domain.Task), orgs: orgs}
}

func (s *fakeStore) EnqueueUnique(_ context.Context, t *domain.Task) (bool, error) {
	if s.enqueueErr != nil {
		return false, s.enqueueErr
	}
	if _, exists := s.tasks[t.ID]; exists {
		return false, nil
	}
	s.tasks[t.ID] = t
	return true, nil
}

func (s *fakeStore) GetWatermark(context.Context, string) (time.Time, error) {
	return s.watermark, nil
}

func (s *fakeStore) SetWatermark(_ context.Context, _ string, t time.Time) error {
	s.watermark = t
	return nil
}

func (s *fakeStore) ListActiveOrganizations(context.Context) ([]string, error) {
	return s.orgs, nil
}

func newTestScheduler(t *testing.T, store Store) *Scheduler {
	t.Helper()
	specs := map[string][]TaskSpec{
		"carbon_hunter": {
			{Type: "emissions_scan", Priority: domain.PriorityMedium, Cadence: Hourly()},
		},
	}
	s, err := New(store, nil, specs, infra.SchedulerConfig{TickInterval: time.Minute, Timezone: "UTC"}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestTickCreatesDueTasks(t *testing.T) {
	store := newFakeStore("org-1", "org-2")
	store.watermark = ts("2026-03-10T13:30:00Z")
	s := newTestScheduler(t, store)

	created, err := s.Tick(context.Background(), ts("2026-03-10T14:05:00Z"))
	require.NoError(t, err)
	assert.Equal(t, 2, created) // По слоту на каждый тенант
	assert.Equal(t, ts("2026-03-10T14:05:00Z"), store.watermark)
}

func TestTickIsIdempotent(t *testing.T) {
	store := newFakeStore("org-1")
	store.watermark = ts("2026-03-10T13:30:00Z")
	s := newTestScheduler(t, store)
	now := ts("2026-03-10T14:05:00Z")

	created, err := s.Tick(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	// Повторный тик по тому же моменту: watermark не пускает, а даже при
	// сбросе watermark детерминированный ID уперся бы в дедупликацию
	store.watermark = ts("2026-03-10T13:30:00Z")
	created, err = s.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, store.tasks, 1)
}

func TestTickFailClosedKeepsWatermark(t *testing.T) {
	store := newFakeStore("org-1")
	store.watermark = ts("2026-03-10T13:30:00Z")
	store.enqueueErr = errors.New("db down")
	s := newTestScheduler(t, store)

	_, err := s.Tick(context.Background(), ts("2026-03-10T14:05:00Z"))
	require.Error(t, err)
	// Watermark не сдвинут — следующий тик переиграет слот
	assert.Equal(t, ts("2026-03-10T13:30:00Z"), store.watermark)
}

func TestTaskIDDeterministic(t *testing.T) {
	slot := ts("2026-03-10T14:00:00Z")
	a := taskID("org-1", "carbon_hunter", "emissions_scan", slot)
	b := taskID("org-1", "carbon_hunter", "emissions_scan", slot)
	c := taskID("org-2", "carbon_hunter", "emissions_scan", slot)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
