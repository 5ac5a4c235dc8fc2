package trigger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// MetricReader — чтение рядов и последнего отчетного периода тенанта.
type MetricReader interface {
	GetOrgSeries(ctx context.Context, orgID, metricID string, since time.Time) (*domain.MetricSeries, error)
	LastReportedPeriod(ctx context.Context, orgID string) (time.Time, error)
}

// ThresholdSource — подстройка порога аномалий по накопленным наблюдениям.
type ThresholdSource interface {
	AnomalyThreshold(ctx context.Context, orgID string, base float64) float64
}

// ---- carbon_hunter: всплеск выбросов ----

const (
	spikeBaseThreshold = 3.0
	spikeMinPoints     = 6
)

// EmissionsSpikeRule — z-score последнего месяца против предыстории.
// Порог подстраивается Knowledge Store'ом тенанта.
type EmissionsSpikeRule struct {
	Metrics    MetricReader
	Thresholds ThresholdSource
	MetricID   string
}

func (r *EmissionsSpikeRule) Name() string      { return "emissions_spike" }
func (r *EmissionsSpikeRule) AgentType() string { return "carbon_hunter" }

func (r *EmissionsSpikeRule) Evaluate(ctx context.Context, orgID string, now time.Time) (*Firing, error) {
	metricID := r.MetricID
	if metricID == "" {
		metricID = "total_emissions"
	}

	series, err := r.Metrics.GetOrgSeries(ctx, orgID, metricID, now.AddDate(-2, 0, 0))
	if err != nil {
		return nil, err
	}
	if len(series.Points) < spikeMinPoints {
		// Короткая история — z-score бессмысленен
		return nil, nil
	}

	last := series.Points[len(series.Points)-1]
	mean, std := meanStd(series.Points[:len(series.Points)-1])
	if std == 0 {
		return nil, nil
	}

	z := (last.Value - mean) / std
	threshold := r.Thresholds.AnomalyThreshold(ctx, orgID, spikeBaseThreshold)
	if z < threshold {
		return nil, nil
	}

	severity := "warning"
	if z >= threshold*1.5 {
		severity = "critical"
	}
	return &Firing{
		Title:    "Emissions spike detected",
		Body: fmt.Sprintf("Metric %s for %s is %.1f standard deviations above the historical mean (%.1f vs %.1f).",
			metricID, last.Date.Format("2006-01"), z, last.Value, mean),
		Severity: severity,
	}, nil
}

func meanStd(points []domain.MetricPoint) (float64, float64) {
	if len(points) == 0 {
		return 0, 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / float64(len(points))

	var variance float64
	for _, p := range points {
		variance += (p.Value - mean) * (p.Value - mean)
	}
	return mean, math.Sqrt(variance / float64(len(points)))
}

// ---- esg_advisor: дыра в данных ----

// DataGapRule срабатывает, когда тенант давно не загружал метрики.
type DataGapRule struct {
	Metrics MetricReader
	MaxLag  time.Duration // 0 = 45 суток
}

func (r *DataGapRule) Name() string      { return "data_gap" }
func (r *DataGapRule) AgentType() string { return "esg_advisor" }

func (r *DataGapRule) Evaluate(ctx context.Context, orgID string, now time.Time) (*Firing, error) {
	last, err := r.Metrics.LastReportedPeriod(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if last.IsZero() || last.Unix() == 0 {
		// Данных не было вообще — это onboarding, не дыра
		return nil, nil
	}

	maxLag := r.MaxLag
	if maxLag <= 0 {
		maxLag = 45 * 24 * time.Hour
	}
	lag := now.Sub(last)
	if lag < maxLag {
		return nil, nil
	}

	return &Firing{
		Title: "Sustainability data gap",
		Body: fmt.Sprintf("No metric values reported since %s (%d days ago). Forecasts and compliance checks are degrading.",
			last.Format("2006-01-02"), int(lag.Hours()/24)),
		Severity: "warning",
	}, nil
}

// ---- compliance_guardian: приближающийся дедлайн ----

// reportingDeadline — ежегодный дедлайн раскрытия по фреймворку.
type reportingDeadline struct {
	Framework string
	Month     time.Month
	Day       int
}

// Календарь раскрытий. Даты фиксированы регуляторами, конфигурировать нечего.
var reportingCalendar = []reportingDeadline{
	{Framework: "CDP", Month: time.July, Day: 31},
	{Framework: "CSRD", Month: time.April, Day: 30},
	{Framework: "GRI", Month: time.December, Day: 31},
}

// ComplianceDeadlineRule предупреждает за WarnWindow до ближайшего дедлайна.
type ComplianceDeadlineRule struct {
	WarnWindow time.Duration // 0 = 30 суток
}

func (r *ComplianceDeadlineRule) Name() string      { return "compliance_deadline" }
func (r *ComplianceDeadlineRule) AgentType() string { return "compliance_guardian" }

func (r *ComplianceDeadlineRule) Evaluate(ctx context.Context, orgID string, now time.Time) (*Firing, error) {
	window := r.WarnWindow
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}

	for _, d := range reportingCalendar {
		deadline := time.Date(now.Year(), d.Month, d.Day, 23, 59, 0, 0, now.Location())
		if deadline.Before(now) {
			deadline = deadline.AddDate(1, 0, 0)
		}
		until := deadline.Sub(now)
		if until > window {
			continue
		}

		severity := "warning"
		if until < 7*24*time.Hour {
			severity = "critical"
		}
		return &Firing{
			Title: fmt.Sprintf("%s reporting deadline approaching", d.Framework),
			Body: fmt.Sprintf("%s disclosure is due on %s (%d days left). Verify data completeness before submission.",
				d.Framework, deadline.Format("2006-01-02"), int(until.Hours()/24)),
			Severity: severity,
		}, nil
	}
	return nil, nil
}
