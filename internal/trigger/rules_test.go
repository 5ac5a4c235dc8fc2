package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

type fakeMetrics struct {
	series     *domain.MetricSeries
	lastPeriod time.Time
}

func (f *fakeMetrics) GetOrgSeries(context.Context, string, string, time.Time) (*domain.MetricSeries, error) {
	return f.series, nil
}

func (f *fakeMetrics) LastReportedPeriod(context.Context, string) (time.Time, error) {
	return f.lastPeriod, nil
}

type staticThreshold struct{ value float64 }

func (s *staticThreshold) AnomalyThreshold(_ context.Context, _ string, base float64) float64 {
	if s.value > 0 {
		return s.value
	}
	return base
}

func monthlySeries(values ...float64) *domain.MetricSeries {
	s := &domain.MetricSeries{OrganizationID: "org-1", MetricID: "total_emissions"}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		s.Points = append(s.Points, domain.MetricPoint{Date: base.AddDate(0, i, 0), Value: v})
	}
	return s
}

func TestEmissionsSpikeFiresOnOutlier(t *testing.T) {
	// Стабильный ряд с резким последним месяцем
	rule := &EmissionsSpikeRule{
		Metrics:    &fakeMetrics{series: monthlySeries(100, 102, 98, 101, 99, 100, 103, 97, 100, 300)},
		Thresholds: &staticThreshold{},
	}

	firing, err := rule.Evaluate(context.Background(), "org-1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, firing)
	assert.Equal(t, "critical", firing.Severity)
	assert.Contains(t, firing.Title, "spike")
}

func TestEmissionsSpikeQuietOnStableSeries(t *testing.T) {
	rule := &EmissionsSpikeRule{
		Metrics:    &fakeMetrics{series: monthlySeries(100, 102, 98, 101, 99, 100, 103, 97, 100, 101)},
		Thresholds: &staticThreshold{},
	}

	firing, err := rule.Evaluate(context.Background(), "org-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, firing)
}

func TestEmissionsSpikeRespectsLearnedThreshold(t *testing.T) {
	series := monthlySeries(100, 102, 98, 101, 99, 100, 103, 97, 100, 160)

	// С базовым порогом 3.0 этот всплеск сработал бы
	base := &EmissionsSpikeRule{Metrics: &fakeMetrics{series: series}, Thresholds: &staticThreshold{}}
	firing, err := base.Evaluate(context.Background(), "org-1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, firing)

	// Накопленные наблюдения подняли порог — тот же ряд уже норма
	raised := &EmissionsSpikeRule{Metrics: &fakeMetrics{series: series}, Thresholds: &staticThreshold{value: 50}}
	firing, err = raised.Evaluate(context.Background(), "org-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, firing)
}

func TestEmissionsSpikeNeedsHistory(t *testing.T) {
	rule := &EmissionsSpikeRule{
		Metrics:    &fakeMetrics{series: monthlySeries(100, 300)},
		Thresholds: &staticThreshold{},
	}

	firing, err := rule.Evaluate(context.Background(), "org-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, firing, "short history must not fire")
}

func TestDataGapRule(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// Свежие данные — тишина
	fresh := &DataGapRule{Metrics: &fakeMetrics{lastPeriod: now.AddDate(0, -1, 0)}}
	firing, err := fresh.Evaluate(context.Background(), "org-1", now)
	require.NoError(t, err)
	assert.Nil(t, firing)

	// Данные старше 45 суток — предупреждение
	stale := &DataGapRule{Metrics: &fakeMetrics{lastPeriod: now.AddDate(0, -3, 0)}}
	firing, err = stale.Evaluate(context.Background(), "org-1", now)
	require.NoError(t, err)
	require.NotNil(t, firing)
	assert.Equal(t, "warning", firing.Severity)

	// Данных не было вообще — onboarding, не дыра
	empty := &DataGapRule{Metrics: &fakeMetrics{lastPeriod: time.Unix(0, 0)}}
	firing, err = empty.Evaluate(context.Background(), "org-1", now)
	require.NoError(t, err)
	assert.Nil(t, firing)
}

func TestComplianceDeadlineRule(t *testing.T) {
	rule := &ComplianceDeadlineRule{}

	// За 20 дней до дедлайна CSRD (30 апреля) — предупреждение
	firing, err := rule.Evaluate(context.Background(), "org-1", time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, firing)
	assert.Contains(t, firing.Title, "CSRD")
	assert.Equal(t, "warning", firing.Severity)

	// За 3 дня — critical
	firing, err = rule.Evaluate(context.Background(), "org-1", time.Date(2026, 4, 27, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, firing)
	assert.Equal(t, "critical", firing.Severity)

	// Вдали от всех дедлайнов — тишина
	firing, err = rule.Evaluate(context.Background(), "org-1", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, firing)
}
