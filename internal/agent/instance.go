package agent

/*
Файл instance.go — один работающий агент одного тенанта.

Диспетчерский цикл короткий: по тику забираем готовые задачи (ClaimDue,
exactly-once на стороне БД) и раздаем их горутинам под семафором
max_concurrent_tasks. Задача, уткнувшаяся в approval, паркует только свою
горутину — цикл продолжает забирать остальные.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// TaskQueue — срез репозитория очереди задач.
type TaskQueue interface {
	ClaimDue(ctx context.Context, orgID, agentType string, now time.Time, limit int) ([]*domain.Task, error)
	FinishTask(ctx context.Context, taskID string, result *domain.TaskResult) error
	ReleaseStale(ctx context.Context, orgID, agentType string, olderThan time.Duration) (int64, error)
}

// LearningSink — куда уходят наблюдения из успешных результатов.
type LearningSink interface {
	Append(ctx context.Context, orgID, agentType string, learnings []domain.Learning)
}

type Instance struct {
	orgID    string
	behavior Behavior
	runtime  *Runtime
	queue    TaskQueue
	sink     LearningSink
	cfg      infra.AgentsConfig
	metrics  *infra.Metrics
	logger   *zap.Logger

	state       atomic.Value // domain.InstanceState
	startedAt   time.Time
	lastSuccess atomic.Int64 // unix nano; 0 = успехов еще не было

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    chan struct{}
}

func NewInstance(orgID string, behavior Behavior, runtime *Runtime, queue TaskQueue, sink LearningSink, cfg infra.AgentsConfig, metrics *infra.Metrics, logger *zap.Logger) *Instance {
	concurrency := cfg.MaxConcurrentTasks
	if concurrency <= 0 {
		concurrency = 4
	}
	inst := &Instance{
		orgID:    orgID,
		behavior: behavior,
		runtime:  runtime,
		queue:    queue,
		sink:     sink,
		cfg:      cfg,
		metrics:  metrics,
		sem:      make(chan struct{}, concurrency),
		logger: logger.Named("instance").With(
			zap.String("org", orgID),
			zap.String("agent_type", behavior.Definition().ID)),
	}
	inst.state.Store(domain.InstanceCreated)
	return inst
}

func (i *Instance) AgentType() string { return i.behavior.Definition().ID }

// Start запускает диспетчерский цикл. Повторный Start работающего
// инстанса — no-op (идемпотентность обеспечивает менеджер).
func (i *Instance) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.startedAt = time.Now()
	i.state.Store(domain.InstanceRunning)

	// Задачи, брошенные в executing умершим процессом, — обратно в pending.
	// Окно с запасом перекрывает самую долгую парковку на approval: задача,
	// честно ждущая резолюции в живом воркере, не должна быть перезапущена.
	grace := i.cfg.StaleTaskGrace
	if grace <= 0 {
		grace = 2 * time.Hour
	}
	if n, err := i.queue.ReleaseStale(runCtx, i.orgID, i.AgentType(), grace); err != nil {
		i.logger.Error("failed to release stale tasks", zap.Error(err))
	} else if n > 0 {
		i.logger.Info("released stale tasks", zap.Int64("count", n))
	}

	i.wg.Add(1)
	go i.dispatchLoop(runCtx)
	i.logger.Info("agent instance started")
}

// Stop гасит цикл и ждет завершения задач не дольше ShutdownGrace.
func (i *Instance) Stop() {
	if i.cancel != nil {
		i.cancel()
	}
	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	grace := i.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		i.logger.Warn("shutdown grace exceeded, abandoning in-flight tasks")
	}
	i.state.Store(domain.InstanceStopped)
	i.logger.Info("agent instance stopped")
}

func (i *Instance) dispatchLoop(ctx context.Context) {
	defer i.wg.Done()

	interval := i.behavior.Definition().RunInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.dispatchDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (i *Instance) dispatchDue(ctx context.Context) {
	tasks, err := i.queue.ClaimDue(ctx, i.orgID, i.AgentType(), time.Now(), cap(i.sem))
	if err != nil {
		i.logger.Error("failed to claim due tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		select {
		case i.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		i.wg.Add(1)
		go func(task *domain.Task) {
			defer i.wg.Done()
			defer func() { <-i.sem }()
			i.runTask(ctx, task)
		}(task)
	}
}

func (i *Instance) runTask(ctx context.Context, task *domain.Task) {
	result := i.runtime.ExecuteTask(ctx, i.behavior, task)

	status := "completed"
	if !result.Success {
		status = "failed"
	}
	i.metrics.TasksTotal.WithLabelValues(i.AgentType(), task.Type, status).Inc()
	i.metrics.TaskDuration.WithLabelValues(i.AgentType(), task.Type, status).Observe(result.Duration.Seconds())

	// Финализация не должна зависеть от отмены контекста инстанса
	finishCtx := context.WithoutCancel(ctx)
	if err := i.queue.FinishTask(finishCtx, task.ID, result); err != nil {
		i.logger.Error("failed to finish task", zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	if result.Success {
		i.lastSuccess.Store(time.Now().UnixNano())
		i.sink.Append(finishCtx, i.orgID, i.AgentType(), result.Learnings)
	}

	i.logger.Info("task finished",
		zap.String("task_id", task.ID),
		zap.String("task_type", task.Type),
		zap.Bool("success", result.Success),
		zap.Int("tool_rounds", result.ToolRounds),
		zap.Int("actions", len(result.Actions)),
		zap.Duration("duration", result.Duration))
}

// Healthy — lastSuccess в пределах 2x интервала запуска. Свежему инстансу
// дается такой же grace от момента старта.
func (i *Instance) Healthy(now time.Time) bool {
	window := 2 * i.behavior.Definition().RunInterval
	if window <= 0 {
		window = 2 * time.Minute
	}

	last := i.lastSuccess.Load()
	if last == 0 {
		return now.Sub(i.startedAt) < window
	}
	return now.Sub(time.Unix(0, last)) < window
}

// Snapshot — неизменяемый срез состояния для Console API.
func (i *Instance) Snapshot(now time.Time) domain.AgentInstance {
	var last time.Time
	if v := i.lastSuccess.Load(); v != 0 {
		last = time.Unix(0, v)
	}
	return domain.AgentInstance{
		ID:             i.orgID + ":" + i.AgentType(),
		OrganizationID: i.orgID,
		AgentType:      i.AgentType(),
		State:          i.state.Load().(domain.InstanceState),
		StartedAt:      i.startedAt,
		LastSuccess:    last,
		Healthy:        i.Healthy(now),
	}
}
