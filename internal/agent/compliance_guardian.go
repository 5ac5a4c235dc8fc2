package agent

/*
Файл compliance_guardian.go — агент регуляторной отчетности.

Еженедельный compliance_check: полнота данных, траектория к отчетному
периоду, подготовка черновика раскрытия. Черновик обратим; подача
официального отчета регулятору — нет, и всегда уходит на подпись.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/scheduler"
	"github.com/blipee-dev/blipee-orchestrator/internal/tools"
)

type ComplianceGuardian struct{}

func NewComplianceGuardian() *ComplianceGuardian { return &ComplianceGuardian{} }

func (b *ComplianceGuardian) Definition() domain.AgentDefinition {
	return domain.AgentDefinition{
		ID:          "compliance_guardian",
		RunInterval: 5 * time.Minute,
		Capabilities: []domain.Capability{
			{Name: "compliance_monitoring", RequiredPermissions: []string{"metrics:read"}, MaxAutonomyLevel: 4},
			{Name: "regulatory_filing", RequiredPermissions: []string{"reports:write"}, MaxAutonomyLevel: 1},
		},
	}
}

func (b *ComplianceGuardian) Schedule() []scheduler.TaskSpec {
	return []scheduler.TaskSpec{
		{Type: "compliance_check", Priority: domain.PriorityHigh, Cadence: scheduler.WeeklyOn(time.Monday, 7, 0)},
	}
}

func (b *ComplianceGuardian) Plan(ctx context.Context, in PlanInput) (*Plan, error) {
	orgID := in.Task.OrganizationID

	switch in.Round {
	case 1:
		return &Plan{ToolCalls: []tools.Request{
			{Tool: "compute_emissions", Args: map[string]any{"organization_id": orgID}},
			{Tool: "classify_risk", Args: map[string]any{
				"action_type": "file_regulatory_report",
				"reversible":  false,
				"category":    "strategic",
			}},
		}}, nil

	default:
		return b.conclude(in), nil
	}
}

func (b *ComplianceGuardian) conclude(in PlanInput) *Plan {
	plan := &Plan{Done: true}

	emissions := findObservation(in.Observations, "compute_emissions")
	if emissions == nil {
		plan.Insights = append(plan.Insights, "emissions data unavailable, compliance posture unknown")
		plan.NextSteps = append(plan.NextSteps, "investigate metric ingestion for this tenant")
		return plan
	}

	points, _ := numField(emissions.Data, "data_points")
	if points < 12 {
		plan.Insights = append(plan.Insights,
			fmt.Sprintf("reporting window has only %.0f months of data, disclosure would be incomplete", points))
		plan.NextSteps = append(plan.NextSteps, "request missing monthly data from site operators")
		plan.Learnings = append(plan.Learnings, domain.Learning{
			Pattern:      "missed_incidents",
			Confidence:   0.4,
			ApplicableTo: []string{"anomaly_threshold"},
		})
		return plan
	}

	total, _ := numField(emissions.Data, "total")
	plan.Insights = append(plan.Insights,
		fmt.Sprintf("reporting window complete: %.0f months, %.1f total emissions", points, total))

	plan.Actions = append(plan.Actions, ProposedAction{
		Type:        "prepare_disclosure_draft",
		Description: "Assemble the annual disclosure draft from the verified reporting window",
		Impact:      "draft available for review in the reports workspace",
		Reversible:  true,
		Category:    "communication",
		Payload:     fmt.Sprintf(`{"window_months":%.0f,"total_emissions":%.1f}`, points, total),
	})

	// Подача регулятору — всегда через подпись (strategic + необратимо)
	if trend, ok := numField(emissions.Data, "trend_pct"); ok {
		plan.Actions = append(plan.Actions, ProposedAction{
			Type:         "file_regulatory_report",
			Description:  fmt.Sprintf("Submit the annual disclosure (emissions trend %+.1f%%)", trend),
			Impact:       "official filing with the regulator, publicly visible",
			Reversible:   false,
			RollbackPlan: "file a corrective amendment through the regulator portal",
			Category:     "strategic",
			Payload:      fmt.Sprintf(`{"trend_pct":%.1f,"total_emissions":%.1f}`, trend, total),
		})
	}
	return plan
}
