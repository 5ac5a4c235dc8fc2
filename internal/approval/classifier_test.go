package approval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

func TestClassifierDecisionTable(t *testing.T) {
	c := NewClassifier(infra.ApprovalConfig{
		FinancialThreshold: 10_000,
		ExecutiveThreshold: 100_000,
	}, zap.NewNop())

	cases := []struct {
		financial  float64
		reversible bool
		category   string
		want       domain.ApprovalLevel
	}{
		// Крупная сумма + необратимость = board
		{150_000, false, "operational", domain.LevelBoard},
		{150_000, true, "operational", domain.LevelExecutive},
		// Средняя сумма
		{50_000, false, "operational", domain.LevelExecutive},
		{50_000, true, "operational", domain.LevelSupervisor},
		// Необратимость сама по себе требует supervisor
		{0, false, "operational", domain.LevelSupervisor},
		// Стратегическая категория — supervisor даже для обратимого
		{0, true, "strategic", domain.LevelSupervisor},
		// Мелкое обратимое операционное — автономно
		{500, true, "operational", domain.LevelNone},
		{0, true, "communication", domain.LevelNone},
		// Границы порогов — включительно
		{10_000, true, "operational", domain.LevelSupervisor},
		{100_000, true, "operational", domain.LevelExecutive},
		{100_000, false, "operational", domain.LevelBoard},
	}

	for _, tc := range cases {
		name := fmt.Sprintf("fin=%.0f rev=%v cat=%s", tc.financial, tc.reversible, tc.category)
		t.Run(name, func(t *testing.T) {
			got := c.Level("test_action", tc.financial, tc.reversible, tc.category)
			assert.Equal(t, tc.want, got)
		})
	}
}
