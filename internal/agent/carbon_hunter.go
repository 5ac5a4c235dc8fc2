package agent

/*
Файл carbon_hunter.go — агент-охотник за выбросами.

Сценарий задачи emissions_scan:
  раунд 1: читаем текущие выбросы и ищем аномалии;
  раунд 2: при аномалиях запрашиваем прогноз, чтобы оценить масштаб;
  раунд 3: фиксируем находки. Флаг аномалии обратим и проходит без подписи;
           закупка офсетов — финансовое необратимое действие, его судьбу
           решает Approval System.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/scheduler"
	"github.com/blipee-dev/blipee-orchestrator/internal/tools"
)

const offsetPricePerTon = 35.0 // USD/tCO2e, консервативная рыночная оценка

type CarbonHunter struct{}

func NewCarbonHunter() *CarbonHunter { return &CarbonHunter{} }

func (b *CarbonHunter) Definition() domain.AgentDefinition {
	return domain.AgentDefinition{
		ID:          "carbon_hunter",
		RunInterval: time.Minute,
		Capabilities: []domain.Capability{
			{Name: "emissions_monitoring", RequiredPermissions: []string{"metrics:read"}, MaxAutonomyLevel: 4},
			{Name: "offset_procurement", RequiredPermissions: []string{"procurement:write"}, MaxAutonomyLevel: 2},
		},
	}
}

func (b *CarbonHunter) Schedule() []scheduler.TaskSpec {
	return []scheduler.TaskSpec{
		{Type: "emissions_scan", Priority: domain.PriorityMedium, Cadence: scheduler.Hourly()},
		{Type: "daily_summary", Priority: domain.PriorityLow, Cadence: scheduler.DailyAt(6, 0)},
	}
}

func (b *CarbonHunter) Plan(ctx context.Context, in PlanInput) (*Plan, error) {
	orgID := in.Task.OrganizationID

	switch in.Round {
	case 1:
		return &Plan{ToolCalls: []tools.Request{
			{Tool: "compute_emissions", Args: map[string]any{"organization_id": orgID}},
			{Tool: "detect_anomalies", Args: map[string]any{"organization_id": orgID, "metric_id": "emissions.total"}},
		}}, nil

	case 2:
		anomalies := anomalyCount(in.Observations)
		if anomalies == 0 {
			return &Plan{
				Done:     true,
				Insights: []string{"no emission anomalies detected in the current window"},
			}, nil
		}
		// Аномалии есть — смотрим, куда идет траектория
		return &Plan{ToolCalls: []tools.Request{
			{Tool: "get_forecast", Args: map[string]any{"organization_id": orgID, "metric_id": "emissions.total", "horizon": float64(6)}},
		}}, nil

	default:
		return b.concludeScan(in), nil
	}
}

func (b *CarbonHunter) concludeScan(in PlanInput) *Plan {
	plan := &Plan{Done: true}
	anomalies := anomalyCount(in.Observations)
	if anomalies == 0 {
		plan.Insights = append(plan.Insights, "no emission anomalies detected in the current window")
		return plan
	}

	plan.Insights = append(plan.Insights,
		fmt.Sprintf("%d anomalous emission periods found in the last 24 months", anomalies))
	plan.Actions = append(plan.Actions, ProposedAction{
		Type:        "flag_emissions_anomaly",
		Description: fmt.Sprintf("Flag %d anomalous periods for sustainability team review", anomalies),
		Impact:      "anomalous periods marked in the dashboard",
		Reversible:  true,
		Category:    "operational",
		Payload:     fmt.Sprintf(`{"anomalies":%d,"metric":"emissions.total"}`, anomalies),
	})

	// Зимние аномалии — почти всегда отопительный сезон; копим это знание
	if time.Now().Month() == time.December || time.Now().Month() == time.January {
		plan.Learnings = append(plan.Learnings, domain.Learning{
			Pattern:      "seasonal_spikes_normal",
			Confidence:   0.6,
			ApplicableTo: []string{"anomaly_threshold"},
		})
	}

	// Прогноз подтверждает рост — предлагаем офсеты; сумма решает уровень подписи
	if overshoot := forecastOvershoot(in.Observations); overshoot > 0 {
		cost := overshoot * offsetPricePerTon
		plan.Actions = append(plan.Actions, ProposedAction{
			Type:            "purchase_carbon_offsets",
			Description:     fmt.Sprintf("Purchase %.0f tCO2e of verified offsets to cover the projected overshoot", overshoot),
			Impact:          fmt.Sprintf("estimated spend %.0f USD", cost),
			FinancialImpact: cost,
			Reversible:      false,
			RollbackPlan:    "resell unused credits on the voluntary market",
			Category:        "operational",
			Payload:         fmt.Sprintf(`{"volume_tons":%.0f,"estimated_cost_usd":%.0f}`, overshoot, cost),
		})
		plan.NextSteps = append(plan.NextSteps, "review offset vendor quotes before settlement")
	}
	return plan
}

// anomalyCount вытаскивает число аномалий из наблюдения detect_anomalies.
func anomalyCount(observations []tools.Observation) int {
	obs := findObservation(observations, "detect_anomalies")
	if obs == nil {
		return 0
	}
	items, ok := obs.Data["anomalies"].([]map[string]any)
	if ok {
		return len(items)
	}
	// После JSON round-trip срез приходит как []any
	if raw, ok := obs.Data["anomalies"].([]any); ok {
		return len(raw)
	}
	return 0
}

// forecastOvershoot — насколько прогнозная сумма превышает текущее окно.
func forecastOvershoot(observations []tools.Observation) float64 {
	forecast := findObservation(observations, "get_forecast")
	emissions := findObservation(observations, "compute_emissions")
	if forecast == nil || emissions == nil {
		return 0
	}

	current, ok := numField(emissions.Data, "total")
	if !ok || current <= 0 {
		return 0
	}

	var projected float64
	switch vals := forecast.Data["values"].(type) {
	case []float64:
		for _, v := range vals {
			projected += v
		}
	case []any:
		for _, v := range vals {
			if f, ok := v.(float64); ok {
				projected += f
			}
		}
	default:
		return 0
	}

	// Прогноз на 6 месяцев против годового окна: нормируем к году
	projected *= 2
	if projected <= current {
		return 0
	}
	return projected - current
}
