package tools

import (
	"context"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// LevelClassifier — таблица решений Permission & Approval System.
// Реализуется approval.Classifier.
type LevelClassifier interface {
	Level(actionType string, financialImpact float64, reversible bool, category string) domain.ApprovalLevel
}

// RiskTool позволяет агенту заранее узнать, какой уровень подписи
// потребует задуманное действие, и спланировать задачу с учетом этого.
type RiskTool struct {
	classifier LevelClassifier
}

func NewRiskTool(classifier LevelClassifier) *RiskTool {
	return &RiskTool{classifier: classifier}
}

func (t *RiskTool) Name() string   { return "classify_risk" }
func (t *RiskTool) ReadOnly() bool { return true }
func (t *RiskTool) Description() string {
	return "Approval level a proposed action would require (none/supervisor/executive/board)."
}

func (t *RiskTool) Schema() Schema {
	return Schema{Params: map[string]ParamSpec{
		"action_type":      {Type: "string", Required: true},
		"financial_impact": {Type: "number", Required: false},
		"reversible":       {Type: "boolean", Required: true},
		"category":         {Type: "string", Required: false, Description: "operational|strategic|communication"},
	}}
}

func (t *RiskTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	actionType := args["action_type"].(string)
	reversible := args["reversible"].(bool)

	var financial float64
	if v, ok := args["financial_impact"].(float64); ok {
		financial = v
	}
	category := "operational"
	if v, ok := args["category"].(string); ok && v != "" {
		category = v
	}

	level := t.classifier.Level(actionType, financial, reversible, category)
	return map[string]any{
		"level":             string(level),
		"requires_approval": level != domain.LevelNone,
	}, nil
}
