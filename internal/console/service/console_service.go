package service

/*
Файл console_service.go — бизнес-логика Console API.

Консоль — отдельный процесс от воркера, поэтому все взаимодействие с живым
парком агентов идет через Redis: команды start/stop — Pub/Sub, состояние
парка — снэпшот, который воркер обновляет каждый health-цикл.

Решение по заявке — две ступени: атомарный условный UPDATE в Postgres
(отсекает Double Decision), затем сигнал пробуждения запаркованной горутине
воркера в персональный канал заявки.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/audit"
	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra/auth"
)

// Repository описывает требования консоли к хранилищу.
type Repository interface {
	GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)
	DecideApproval(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (string, error)
	GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error)
	ListActions(ctx context.Context, orgID, agentType string, limit int) ([]audit.ActionEvent, error)
	ListMessages(ctx context.Context, orgID string, limit int) ([]*domain.ProactiveMessage, error)
}

type ConsoleService struct {
	*auth.BaseValidator
	repo   Repository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewConsoleService(rdb *redis.Client, repo Repository, validator *auth.BaseValidator, logger *zap.Logger) *ConsoleService {
	return &ConsoleService{
		BaseValidator: validator,
		repo:          repo,
		rdb:           rdb,
		logger:        logger.Named("console-service"),
	}
}

// DecideApproval фиксирует решение оператора и будит запаркованное действие.
func (s *ConsoleService) DecideApproval(ctx context.Context, approvalID string, approved bool, reviewerID, comment string) error {
	status := domain.ApprovalDenied
	if approved {
		status = domain.ApprovalApproved
	}

	// 1. Проверка конечного автомата: уже резолвленная заявка отклоняется
	// с внятной ошибкой. Гонку двух операторов все равно решает условный
	// UPDATE ниже — здесь только ранний и читаемый отказ.
	current, err := s.repo.GetApprovalByID(ctx, approvalID)
	if err != nil {
		return fmt.Errorf("console: approval lookup failed: %w", err)
	}
	if err := current.CanTransitionTo(status); err != nil {
		return err
	}

	// 2. Атомарная резолюция: WHERE status = 'PENDING' отсекает повторы
	taskID, err := s.repo.DecideApproval(ctx, approvalID, status, reviewerID, comment)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			return err
		}
		s.logger.Error("failed to persist approval decision",
			zap.String("approval_id", approvalID),
			zap.String("reviewer_id", reviewerID),
			zap.Error(err))
		return fmt.Errorf("console: decision not persisted: %w", err)
	}

	// 3. Сигнал пробуждения. Если Redis недоступен, горутина воркера
	// дорешает судьбу заявки по своему таймеру истечения (Fail-Safe)
	chanName := infra.ApprovalDecisionChannel(approvalID)
	if err := s.rdb.Publish(ctx, chanName, string(status)).Err(); err != nil {
		s.logger.Error("decision saved but wake signal not delivered",
			zap.String("approval_id", approvalID),
			zap.String("task_id", taskID),
			zap.Error(err))
		return fmt.Errorf("console: wake signal failure: %w", err)
	}

	s.logger.Info("approval decision processed",
		zap.String("approval_id", approvalID),
		zap.String("task_id", taskID),
		zap.String("reviewer", reviewerID),
		zap.String("result", string(status)))
	return nil
}

func (s *ConsoleService) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	return s.repo.GetApprovalByID(ctx, id)
}

func (s *ConsoleService) GetApprovals(ctx context.Context, status string) ([]*domain.ApprovalRequest, error) {
	// Статусы в БД — в верхнем регистре
	return s.repo.FindApprovals(ctx, domain.ApprovalStatus(strings.ToUpper(status)))
}

// ListAgents читает снэпшот парка, опубликованный воркером.
// Отсутствие ключа = воркер лежит или еще не прошел первый health-цикл.
func (s *ConsoleService) ListAgents(ctx context.Context) ([]domain.AgentInstance, error) {
	raw, err := s.rdb.Get(ctx, infra.RedisKeyInstanceSnapshot).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.AgentInstance{}, nil
		}
		return nil, fmt.Errorf("console: failed to read instance snapshot: %w", err)
	}

	var instances []domain.AgentInstance
	if err := json.Unmarshal(raw, &instances); err != nil {
		return nil, fmt.Errorf("console: corrupt instance snapshot: %w", err)
	}
	return instances, nil
}

// StartAgent / StopAgent транслируют команду менеджеру воркера.
func (s *ConsoleService) StartAgent(ctx context.Context, orgID, agentType string) error {
	return s.publishControl(ctx, orgID, agentType, "start")
}

func (s *ConsoleService) StopAgent(ctx context.Context, orgID, agentType string) error {
	return s.publishControl(ctx, orgID, agentType, "stop")
}

func (s *ConsoleService) publishControl(ctx context.Context, orgID, agentType, cmd string) error {
	payload := fmt.Sprintf("%s:%s:%s", orgID, agentType, cmd)
	if err := s.rdb.Publish(ctx, infra.RedisChanAgentControl, payload).Err(); err != nil {
		s.logger.Error("control signal delivery failed",
			zap.String("payload", payload), zap.Error(err))
		return fmt.Errorf("console: control signal failure: %w", err)
	}
	s.logger.Info("agent control signal sent", zap.String("payload", payload))
	return nil
}

// GetGlobalStats — агрегаты из Postgres, обогащенные живым снэпшотом парка.
func (s *ConsoleService) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	stats, err := s.repo.GetGlobalStats(ctx)
	if err != nil {
		return nil, err
	}

	instances, err := s.ListAgents(ctx)
	if err != nil {
		// Снэпшот — best-effort: без него отдаем хотя бы данные из БД
		s.logger.Warn("instance snapshot unavailable for dashboard", zap.Error(err))
		return stats, nil
	}
	for _, inst := range instances {
		if inst.State == domain.InstanceRunning {
			stats.RunningAgents++
		}
		if !inst.Healthy {
			stats.UnhealthyAgents++
		}
	}
	return stats, nil
}

// FetchAuditLog — след действий агентов с фильтрами.
func (s *ConsoleService) FetchAuditLog(ctx context.Context, orgID, agentType string) ([]audit.ActionEvent, error) {
	events, err := s.repo.ListActions(ctx, orgID, agentType, 100)
	if err != nil {
		return nil, fmt.Errorf("console: failed to fetch audit log: %w", err)
	}
	return events, nil
}

// ListMessages — лента проактивных сообщений.
func (s *ConsoleService) ListMessages(ctx context.Context, orgID string) ([]*domain.ProactiveMessage, error) {
	return s.repo.ListMessages(ctx, orgID, 100)
}
