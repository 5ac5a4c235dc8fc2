package approval

/*
Файл service.go — worker-сторона механизма Human-in-the-loop.

Задача, уперевшаяся в необратимое действие, не занимает цикл инстанса:
горутина действия паркуется на select из трех исходов — сигнал решения
оператора (Redis Pub/Sub), таймер истечения уровня подписи, отмена контекста.
Таймер истечения разрешается условным UPDATE в Postgres: если гонку выиграл
оператор, мы честно читаем его решение.

Emergency override отдельной веткой не нужен: принудительное решение
оператора — это просто ранняя резолюция той же заявки тем же каналом.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// Store — срез репозитория заявок.
type Store interface {
	CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error
	ExpireApproval(ctx context.Context, id string) (domain.ApprovalStatus, error)
	GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	SweepExpired(ctx context.Context, now time.Time) ([]string, error)
	CountPendingApprovals(ctx context.Context) (int, error)
}

type Service struct {
	store   Store
	rdb     *redis.Client
	cfg     infra.ApprovalConfig
	metrics *infra.Metrics
	logger  *zap.Logger
}

func NewService(store Store, rdb *redis.Client, cfg infra.ApprovalConfig, metrics *infra.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		rdb:     rdb,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("approval"),
	}
}

// RequestAndWait создает заявку и паркует вызывающую горутину до резолюции.
// Возвращает финальный статус; EXPIRED для агента равнозначен DENIED.
func (s *Service) RequestAndWait(ctx context.Context, req *domain.ApprovalRequest) (domain.ApprovalStatus, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Status = domain.ApprovalPending

	ttl := s.cfg.TTLFor(string(req.Level))
	if ttl > 0 {
		req.ExpiresAt = time.Now().Add(ttl)
	}

	// 1. Подписка ДО вставки: иначе мгновенное решение оператора может
	// проскочить между INSERT и Subscribe
	channel := infra.ApprovalDecisionChannel(req.ID)
	pubsub := s.rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	// 2. Создаем заявку — с этого момента она видна в Console API
	if err := s.store.CreateApproval(ctx, req); err != nil {
		return "", fmt.Errorf("approval: failed to create request: %w", err)
	}
	s.metrics.ApprovalsPending.Inc()
	defer s.metrics.ApprovalsPending.Dec()

	s.logger.Info("approval requested, parking action",
		zap.String("approval_id", req.ID),
		zap.String("task_id", req.TaskID),
		zap.String("level", string(req.Level)))

	// 3. Таймер истечения. Board-уровень (ttl=0) ждет живого человека
	var expiry <-chan time.Time
	if ttl > 0 {
		timer := time.NewTimer(ttl)
		defer timer.Stop()
		expiry = timer.C
	}

	for {
		select {
		case msg, ok := <-pubsub.Channel():
			if !ok {
				// Подписка умерла — финальное слово за базой
				return s.readFinal(ctx, req.ID)
			}
			status := domain.ApprovalStatus(msg.Payload)
			s.resolved(status)
			return status, nil

		case <-expiry:
			// Условное EXPIRED: если оператор успел раньше, вернется его решение
			status, err := s.store.ExpireApproval(context.WithoutCancel(ctx), req.ID)
			if err != nil {
				return "", fmt.Errorf("approval: failed to expire request: %w", err)
			}
			s.resolved(status)
			return status, nil

		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (s *Service) readFinal(ctx context.Context, id string) (domain.ApprovalStatus, error) {
	app, err := s.store.GetApprovalByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("approval: failed to read final status: %w", err)
	}
	return app.Status, nil
}

func (s *Service) resolved(status domain.ApprovalStatus) {
	s.metrics.ApprovalsResolved.WithLabelValues(string(status)).Inc()
}

// RunSweeper — страховочный цикл: гасит просроченные PENDING-заявки,
// чьи воркеры не дожили до собственного таймера (рестарт процесса).
func (s *Service) RunSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ids, err := s.store.SweepExpired(ctx, time.Now())
			if err != nil {
				s.logger.Error("approval sweep failed", zap.Error(err))
				continue
			}
			for _, id := range ids {
				// Будим возможного ожидающего; если его нет — сигнал уйдет в пустоту
				s.rdb.Publish(ctx, infra.ApprovalDecisionChannel(id), string(domain.ApprovalExpired))
				s.resolved(domain.ApprovalExpired)
			}
			if len(ids) > 0 {
				s.logger.Info("expired stale approvals", zap.Int("count", len(ids)))
			}

		case <-ctx.Done():
			return
		}
	}
}
