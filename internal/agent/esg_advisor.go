package agent

/*
Файл esg_advisor.go — советник по ESG-стратегии.

Ежемесячный обзор: траектория выбросов против прогноза, рекомендации.
Все его действия — коммуникационные и обратимые, поэтому агент почти
никогда не ходит в Approval System.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/scheduler"
	"github.com/blipee-dev/blipee-orchestrator/internal/tools"
)

type ESGAdvisor struct{}

func NewESGAdvisor() *ESGAdvisor { return &ESGAdvisor{} }

func (b *ESGAdvisor) Definition() domain.AgentDefinition {
	return domain.AgentDefinition{
		ID:          "esg_advisor",
		RunInterval: 10 * time.Minute,
		Capabilities: []domain.Capability{
			{Name: "strategy_advisory", RequiredPermissions: []string{"metrics:read", "reports:read"}, MaxAutonomyLevel: 5},
		},
	}
}

func (b *ESGAdvisor) Schedule() []scheduler.TaskSpec {
	return []scheduler.TaskSpec{
		{Type: "monthly_review", Priority: domain.PriorityMedium, Cadence: scheduler.MonthlyOn(1, 8, 0)},
	}
}

func (b *ESGAdvisor) Plan(ctx context.Context, in PlanInput) (*Plan, error) {
	orgID := in.Task.OrganizationID

	switch in.Round {
	case 1:
		return &Plan{ToolCalls: []tools.Request{
			{Tool: "compute_emissions", Args: map[string]any{"organization_id": orgID}},
			{Tool: "get_forecast", Args: map[string]any{"organization_id": orgID, "metric_id": "emissions.total", "horizon": float64(12)}},
		}}, nil

	default:
		return b.conclude(in), nil
	}
}

func (b *ESGAdvisor) conclude(in PlanInput) *Plan {
	plan := &Plan{Done: true}

	emissions := findObservation(in.Observations, "compute_emissions")
	forecast := findObservation(in.Observations, "get_forecast")

	if emissions == nil {
		plan.Insights = append(plan.Insights, "no emissions data available for the monthly review")
		return plan
	}

	total, _ := numField(emissions.Data, "total")
	trend, hasTrend := numField(emissions.Data, "trend_pct")

	switch {
	case hasTrend && trend < -5:
		plan.Insights = append(plan.Insights,
			fmt.Sprintf("emissions down %.1f%% year over year, trajectory on track", -trend))
	case hasTrend && trend > 5:
		plan.Insights = append(plan.Insights,
			fmt.Sprintf("emissions up %.1f%% year over year, reduction targets at risk", trend))
		plan.NextSteps = append(plan.NextSteps, "schedule an efficiency review with site operators")
	default:
		plan.Insights = append(plan.Insights,
			fmt.Sprintf("emissions flat at %.1f for the trailing year", total))
	}

	method := "unavailable"
	if forecast != nil {
		if m, ok := forecast.Data["method"].(string); ok {
			method = m
		}
	}
	plan.Insights = append(plan.Insights, "forecast method for this tenant: "+method)
	if method == "seasonal_naive" {
		// Модели еще нет — значит данных мало; совет очевидный, но полезный
		plan.NextSteps = append(plan.NextSteps, "accumulate at least 12 months of data to unlock model-based forecasts")
	}

	plan.Actions = append(plan.Actions, ProposedAction{
		Type:        "publish_monthly_brief",
		Description: "Publish the monthly ESG brief to the organization workspace",
		Impact:      "brief visible to all workspace members",
		Reversible:  true,
		Category:    "communication",
		Payload:     fmt.Sprintf(`{"total_emissions":%.1f,"forecast_method":%q}`, total, method),
	})
	return plan
}
