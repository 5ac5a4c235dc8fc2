package knowledge

import (
	"context"

	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// LearningRepo — персистентность наблюдений (append-only).
type LearningRepo interface {
	InsertLearnings(ctx context.Context, orgID, agentType string, learnings []domain.Learning) error
	FindLearnings(ctx context.Context, orgID, topic string, limit int) ([]domain.Learning, error)
}

// Store — Knowledge Store: копит confidence-scored наблюдения агентов
// и отдает их обратно как смещения для будущих решений.
type Store struct {
	repo   LearningRepo
	logger *zap.Logger
}

func NewStore(repo LearningRepo, logger *zap.Logger) *Store {
	return &Store{repo: repo, logger: logger.Named("knowledge")}
}

// Append дописывает наблюдения из TaskResult. Ошибка записи не должна
// портить успешный результат задачи — логируем и едем дальше.
func (s *Store) Append(ctx context.Context, orgID, agentType string, learnings []domain.Learning) {
	if len(learnings) == 0 {
		return
	}
	if err := s.repo.InsertLearnings(ctx, orgID, agentType, learnings); err != nil {
		s.logger.Error("failed to append learnings",
			zap.String("org", orgID),
			zap.String("agent_type", agentType),
			zap.Error(err))
		return
	}
	s.logger.Debug("learnings appended", zap.Int("count", len(learnings)))
}

// AnomalyThreshold реализует tools.ThresholdSource: уверенные наблюдения
// «сезонные пики — норма» поднимают базовый порог, «мы пропускали
// инциденты» — опускают. Вес — средняя confidence по теме.
func (s *Store) AnomalyThreshold(ctx context.Context, orgID string, base float64) float64 {
	learnings, err := s.repo.FindLearnings(ctx, orgID, "anomaly_threshold", 20)
	if err != nil || len(learnings) == 0 {
		return base
	}

	var raise, lower float64
	for _, l := range learnings {
		switch l.Pattern {
		case "seasonal_spikes_normal":
			raise += l.Confidence
		case "missed_incidents":
			lower += l.Confidence
		}
	}
	n := float64(len(learnings))

	adjusted := base + raise/n - lower/n
	// Держим порог в разумном коридоре
	if adjusted < 1.5 {
		adjusted = 1.5
	}
	if adjusted > 5 {
		adjusted = 5
	}
	return adjusted
}
