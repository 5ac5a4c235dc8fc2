package scheduler

/*
Файл scheduler.go — тик планировщика задач.

Идемпотентность устроена двумя слоями:
 1. ID задачи детерминирован (uuid5 от org+agent+type+слот), вставка идет
    через ON CONFLICT DO NOTHING — повторный тик по тем же слотам безвреден.
 2. Watermark сдвигается только после того, как ВСЕ вставки тика прошли.
    Ошибка посреди тика оставляет watermark на месте, следующий тик
    переигрывает слоты, а дедупликация по ID гасит повторы.

При нескольких воркерах тик исполняет один процесс: SET NX блокировка
в Redis на длину интервала тика. Блокировка — оптимизация, не гарантия
корректности; гарантию дает детерминированный ID.
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

const watermarkKey = "scheduler:watermark"

// TaskSpec — одна строка расписания типа агента.
type TaskSpec struct {
	Type     string
	Priority domain.TaskPriority
	Cadence  Cadence
}

// Store — персистентность планировщика: очередь и watermark.
type Store interface {
	EnqueueUnique(ctx context.Context, t *domain.Task) (bool, error)
	GetWatermark(ctx context.Context, key string) (time.Time, error)
	SetWatermark(ctx context.Context, key string, t time.Time) error
	ListActiveOrganizations(ctx context.Context) ([]string, error)
}

type Scheduler struct {
	store  Store
	rdb    *redis.Client
	specs  map[string][]TaskSpec // agent_type -> расписание
	cfg    infra.SchedulerConfig
	loc    *time.Location
	logger *zap.Logger
}

func New(store Store, rdb *redis.Client, specs map[string][]TaskSpec, cfg infra.SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("scheduler: bad timezone %q: %w", cfg.Timezone, err)
		}
	}
	return &Scheduler{
		store:  store,
		rdb:    rdb,
		specs:  specs,
		cfg:    cfg,
		loc:    loc,
		logger: logger.Named("scheduler"),
	}, nil
}

// Run крутит тики до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Tick(ctx, time.Now()); err != nil {
				// Fail-closed: watermark не сдвинут, следующий тик переиграет
				s.logger.Error("scheduler tick failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Tick обрабатывает слоты расписания в (watermark, now]. Возвращает число
// реально созданных задач (дубликаты по ID не считаются).
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	// 1. Один тик на весь парк воркеров
	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, infra.RedisKeySchedulerLock, "1", s.cfg.TickInterval).Result()
		if err != nil {
			return 0, fmt.Errorf("scheduler: failed to acquire tick lock: %w", err)
		}
		if !ok {
			s.logger.Debug("tick lock held elsewhere, skipping")
			return 0, nil
		}
	}

	watermark, err := s.store.GetWatermark(ctx, watermarkKey)
	if err != nil {
		return 0, err
	}

	orgs, err := s.store.ListActiveOrganizations(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: failed to list organizations: %w", err)
	}

	// 2. Все вставки тика — до сдвига watermark
	created := 0
	for _, orgID := range orgs {
		for agentType, specs := range s.specs {
			for _, spec := range specs {
				slot, due := spec.Cadence.Due(watermark, now, s.loc)
				if !due {
					continue
				}

				task := &domain.Task{
					ID:             taskID(orgID, agentType, spec.Type, slot),
					OrganizationID: orgID,
					AgentType:      agentType,
					Type:           spec.Type,
					Priority:       spec.Priority,
					ScheduledAt:    slot,
				}
				inserted, err := s.store.EnqueueUnique(ctx, task)
				if err != nil {
					return created, fmt.Errorf("scheduler: failed to enqueue %s/%s for %s: %w",
						agentType, spec.Type, orgID, err)
				}
				if inserted {
					created++
				}
			}
		}
	}

	// 3. Только теперь фиксируем прогресс
	if err := s.store.SetWatermark(ctx, watermarkKey, now); err != nil {
		return created, err
	}

	if created > 0 {
		s.logger.Info("scheduler tick", zap.Int("tasks_created", created),
			zap.Time("watermark", now))
	}
	return created, nil
}

// taskID — детерминированный идентификатор слота. Два воркера, посчитавшие
// один слот, получат один и тот же UUID и столкнутся на ON CONFLICT.
func taskID(orgID, agentType, taskType string, slot time.Time) string {
	seed := orgID + "|" + agentType + "|" + taskType + "|" + slot.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
