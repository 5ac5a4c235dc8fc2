package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// fakeCaller подменяет HTTP-транспорт: отдает канированные ответы сервиса.
type fakeCaller struct {
	trainResp TrainResponse
	calls     int
}

func (f *fakeCaller) Call(_ context.Context, path string, _ []byte) ([]byte, error) {
	f.calls++
	return json.Marshal(f.trainResp)
}

type fakeTrainerStore struct {
	inserted  []*domain.ModelRecord
	activated []*domain.ModelRecord
	failed    map[string]string
}

func newFakeTrainerStore() *fakeTrainerStore {
	return &fakeTrainerStore{failed: make(map[string]string)}
}

func (s *fakeTrainerStore) InsertModel(_ context.Context, m *domain.ModelRecord) error {
	s.inserted = append(s.inserted, m)
	return nil
}

func (s *fakeTrainerStore) ActivateModel(_ context.Context, m *domain.ModelRecord) error {
	s.activated = append(s.activated, m)
	return nil
}

func (s *fakeTrainerStore) FailModel(_ context.Context, id, reason string) error {
	s.failed[id] = reason
	return nil
}

type fakeReader struct{ points int }

func (r *fakeReader) ListActiveOrganizations(context.Context) ([]string, error) {
	return []string{"org-1"}, nil
}

func (r *fakeReader) ListSeriesKeys(context.Context, string) ([][2]string, error) {
	return [][2]string{{"site-1", "emissions.total"}}, nil
}

func (r *fakeReader) GetSeries(context.Context, string, string, string, time.Time) (*domain.MetricSeries, error) {
	s := &domain.MetricSeries{}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < r.points; i++ {
		s.Points = append(s.Points, domain.MetricPoint{Date: base.AddDate(0, i, 0), Value: 100})
	}
	return s, nil
}

func newTestTrainer(store TrainerStore, reader TenantReader, caller Caller) *Trainer {
	return NewTrainer(store, reader, NewClient(caller), infra.InferenceConfig{}, zap.NewNop())
}

func TestInsufficientDataSkipsWithoutNewVersion(t *testing.T) {
	store := newFakeTrainerStore()
	caller := &fakeCaller{}
	// 5 точек при пороге 12 — обучение даже не начинается
	trainer := newTestTrainer(store, &fakeReader{points: 5}, caller)

	report, err := trainer.RunCycle(context.Background(), "prophet")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Trained)
	assert.Zero(t, report.Failed)
	// Ни одной новой версии: прежняя active остается как есть
	assert.Empty(t, store.inserted)
	assert.Zero(t, caller.calls)
}

func TestValidatedTrainingActivatesVersion(t *testing.T) {
	store := newFakeTrainerStore()
	caller := &fakeCaller{trainResp: TrainResponse{Validated: true}}
	trainer := newTestTrainer(store, &fakeReader{points: 24}, caller)

	report, err := trainer.RunCycle(context.Background(), "prophet")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Trained)
	require.Len(t, store.inserted, 1)
	require.Len(t, store.activated, 1)
	assert.Equal(t, store.inserted[0].ID, store.activated[0].ID)
	assert.Equal(t, 24, store.inserted[0].SampleCount)
}

func TestFailedValidationNeverActivates(t *testing.T) {
	store := newFakeTrainerStore()
	caller := &fakeCaller{trainResp: TrainResponse{Validated: false, Reason: "mape too high"}}
	trainer := newTestTrainer(store, &fakeReader{points: 24}, caller)

	report, err := trainer.RunCycle(context.Background(), "prophet")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	// Версия зарегистрирована, помечена failed, active не тронута
	require.Len(t, store.inserted, 1)
	assert.Empty(t, store.activated)
	assert.Equal(t, "mape too high", store.failed[store.inserted[0].ID])
}

func TestServiceReportedInsufficientDataIsSkip(t *testing.T) {
	store := newFakeTrainerStore()
	caller := &fakeCaller{trainResp: TrainResponse{InsufficientData: true}}
	trainer := newTestTrainer(store, &fakeReader{points: 24}, caller)

	report, err := trainer.RunCycle(context.Background(), "prophet")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Empty(t, store.activated)
}
