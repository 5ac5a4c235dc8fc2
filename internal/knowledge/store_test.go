package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

type fakeLearningRepo struct {
	learnings []domain.Learning
	appended  []domain.Learning
}

func (r *fakeLearningRepo) InsertLearnings(_ context.Context, _, _ string, ls []domain.Learning) error {
	r.appended = append(r.appended, ls...)
	return nil
}

func (r *fakeLearningRepo) FindLearnings(context.Context, string, string, int) ([]domain.Learning, error) {
	return r.learnings, nil
}

func TestAnomalyThresholdDefaultsToBase(t *testing.T) {
	store := NewStore(&fakeLearningRepo{}, zap.NewNop())
	assert.Equal(t, 3.0, store.AnomalyThreshold(context.Background(), "org-1", 3.0))
}

func TestAnomalyThresholdRaisedBySeasonalLearnings(t *testing.T) {
	repo := &fakeLearningRepo{learnings: []domain.Learning{
		{Pattern: "seasonal_spikes_normal", Confidence: 0.8},
		{Pattern: "seasonal_spikes_normal", Confidence: 0.6},
	}}
	store := NewStore(repo, zap.NewNop())

	got := store.AnomalyThreshold(context.Background(), "org-1", 3.0)
	assert.Greater(t, got, 3.0)
}

func TestAnomalyThresholdLoweredByMissedIncidents(t *testing.T) {
	repo := &fakeLearningRepo{learnings: []domain.Learning{
		{Pattern: "missed_incidents", Confidence: 0.9},
	}}
	store := NewStore(repo, zap.NewNop())

	got := store.AnomalyThreshold(context.Background(), "org-1", 3.0)
	assert.Less(t, got, 3.0)
}

func TestAnomalyThresholdClamped(t *testing.T) {
	low := &fakeLearningRepo{learnings: []domain.Learning{
		{Pattern: "missed_incidents", Confidence: 1},
	}}
	store := NewStore(low, zap.NewNop())
	assert.GreaterOrEqual(t, store.AnomalyThreshold(context.Background(), "org-1", 1.8), 1.5)

	high := &fakeLearningRepo{learnings: []domain.Learning{
		{Pattern: "seasonal_spikes_normal", Confidence: 1},
	}}
	store = NewStore(high, zap.NewNop())
	assert.LessOrEqual(t, store.AnomalyThreshold(context.Background(), "org-1", 4.9), 5.0)
}

func TestAppendIgnoresEmptyBatch(t *testing.T) {
	repo := &fakeLearningRepo{}
	store := NewStore(repo, zap.NewNop())

	store.Append(context.Background(), "org-1", "carbon_hunter", nil)
	assert.Empty(t, repo.appended)

	store.Append(context.Background(), "org-1", "carbon_hunter", []domain.Learning{
		{Pattern: "seasonal_spikes_normal", Confidence: 0.5},
	})
	assert.Len(t, repo.appended, 1)
}
