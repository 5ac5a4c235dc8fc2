package approval

import (
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// Classifier — таблица решений Permission & Approval System.
// Уровень подписи определяется комбинацией финансового порога, обратимости
// и категории действия; ничего не хардкодится по типам агентов.
type Classifier struct {
	cfg    infra.ApprovalConfig
	logger *zap.Logger
}

func NewClassifier(cfg infra.ApprovalConfig, logger *zap.Logger) *Classifier {
	return &Classifier{cfg: cfg, logger: logger.Named("risk-classifier")}
}

// Level реализует tools.LevelClassifier.
//
// Таблица (первое сработавшее правило выигрывает):
//
//	financial >= executive_threshold, необратимо  -> board
//	financial >= executive_threshold              -> executive
//	financial >= financial_threshold, необратимо  -> executive
//	financial >= financial_threshold              -> supervisor
//	необратимо (любая сумма)                      -> supervisor
//	strategic (любая сумма, обратимо)             -> supervisor
//	иначе                                         -> none
func (c *Classifier) Level(actionType string, financialImpact float64, reversible bool, category string) domain.ApprovalLevel {
	level := domain.LevelNone

	switch {
	case financialImpact >= c.cfg.ExecutiveThreshold && !reversible:
		level = domain.LevelBoard
	case financialImpact >= c.cfg.ExecutiveThreshold:
		level = domain.LevelExecutive
	case financialImpact >= c.cfg.FinancialThreshold && !reversible:
		level = domain.LevelExecutive
	case financialImpact >= c.cfg.FinancialThreshold:
		level = domain.LevelSupervisor
	case !reversible:
		level = domain.LevelSupervisor
	case category == "strategic":
		level = domain.LevelSupervisor
	}

	if level != domain.LevelNone {
		c.logger.Debug("approval required",
			zap.String("action_type", actionType),
			zap.Float64("financial_impact", financialImpact),
			zap.Bool("reversible", reversible),
			zap.String("category", category),
			zap.String("level", string(level)))
	}
	return level
}
