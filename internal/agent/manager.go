package agent

/*
Файл manager.go — супервизор парка инстансов.

Менеджер — единственный писатель состояния инстансов: Start/Stop идут через
его мьютекс, поэтому конкурентные команды из Console API не плодят дублей.
Health-цикл перезапускает залипшие инстансы, но со страховкой от restart
storm: больше max_restarts_24h рестартов за сутки — инстанс останавливается
насовсем до ручного вмешательства.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

type Manager struct {
	behaviors map[string]Behavior // agent_type -> поведение
	runtime   *Runtime
	queue     TaskQueue
	sink      LearningSink
	rdb       *redis.Client
	cfg       infra.AgentsConfig
	metrics   *infra.Metrics
	logger    *zap.Logger

	mu        sync.Mutex
	instances map[string]*Instance   // "{org}:{agentType}"
	restarts  map[string][]time.Time // Журнал рестартов для storm guard
	quarantined map[string]bool      // Выбиты storm guard'ом; StartAll их пропускает, снимает только StartAgent
}

func NewManager(behaviors map[string]Behavior, runtime *Runtime, queue TaskQueue, sink LearningSink, rdb *redis.Client, cfg infra.AgentsConfig, metrics *infra.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		behaviors:   behaviors,
		runtime:     runtime,
		queue:       queue,
		sink:        sink,
		rdb:         rdb,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger.Named("manager"),
		instances:   make(map[string]*Instance),
		restarts:    make(map[string][]time.Time),
		quarantined: make(map[string]bool),
	}
}

func instanceKey(orgID, agentType string) string {
	return orgID + ":" + agentType
}

// StartAgent идемпотентно запускает инстанс (org, agentType).
// Ручной запуск снимает карантин storm guard'а.
func (m *Manager) StartAgent(ctx context.Context, orgID, agentType string) error {
	behavior, ok := m.behaviors[agentType]
	if !ok {
		return fmt.Errorf("manager: unknown agent type %q", agentType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := instanceKey(orgID, agentType)
	if _, exists := m.instances[key]; exists {
		m.logger.Debug("agent already running", zap.String("key", key))
		return nil
	}

	delete(m.quarantined, key)

	inst := NewInstance(orgID, behavior, m.runtime, m.queue, m.sink, m.cfg, m.metrics, m.logger)
	inst.Start(ctx)
	m.instances[key] = inst
	return nil
}

// StopAgent идемпотентно останавливает инстанс.
func (m *Manager) StopAgent(orgID, agentType string) {
	m.mu.Lock()
	inst, ok := m.instances[instanceKey(orgID, agentType)]
	if ok {
		delete(m.instances, instanceKey(orgID, agentType))
	}
	m.mu.Unlock()

	if ok {
		// Stop вне мьютекса: дожидание grace не должно блокировать менеджер
		inst.Stop()
	}
}

// StartAll поднимает все типы агентов для всех активных тенантов.
// Выбитые storm guard'ом инстансы не трогает: карантин снимает только
// адресный StartAgent (ручная команда оператора).
func (m *Manager) StartAll(ctx context.Context, orgIDs []string) {
	for _, orgID := range orgIDs {
		for agentType := range m.behaviors {
			key := instanceKey(orgID, agentType)
			m.mu.Lock()
			skip := m.quarantined[key]
			m.mu.Unlock()
			if skip {
				m.logger.Warn("agent quarantined, skipping mass start", zap.String("key", key))
				continue
			}
			if err := m.StartAgent(ctx, orgID, agentType); err != nil {
				m.logger.Error("failed to start agent",
					zap.String("org", orgID), zap.String("agent_type", agentType), zap.Error(err))
			}
		}
	}
}

// StopAll — graceful остановка всего парка (shutdown процесса).
func (m *Manager) StopAll() {
	m.mu.Lock()
	instances := make([]*Instance, 0, len(m.instances))
	for key, inst := range m.instances {
		instances = append(instances, inst)
		delete(m.instances, key)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			inst.Stop()
		}(inst)
	}
	wg.Wait()
	m.logger.Info("all agent instances stopped", zap.Int("count", len(instances)))
}

// List — снэпшоты инстансов для Console API, в стабильном порядке.
func (m *Manager) List() []domain.AgentInstance {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]domain.AgentInstance, 0, len(m.instances))
	for key, inst := range m.instances {
		snap := inst.Snapshot(now)
		snap.Restarts24h = len(m.restarts[key])
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunHealthLoop — супервизорный цикл: рестарт залипших, storm guard.
func (m *Manager) RunHealthLoop(ctx context.Context) {
	interval := m.cfg.HealthInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkHealth(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) checkHealth(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	type unhealthy struct {
		key  string
		inst *Instance
	}
	var sick []unhealthy
	for key, inst := range m.instances {
		if !inst.Healthy(now) {
			sick = append(sick, unhealthy{key: key, inst: inst})
		}
	}
	m.mu.Unlock()

	for _, u := range sick {
		m.restartInstance(ctx, u.key, u.inst, now)
	}

	m.publishSnapshot(ctx)
}

// publishSnapshot выкладывает срез парка в Redis для Console API.
// TTL втрое больше интервала health-цикла: умерший воркер исчезает сам.
func (m *Manager) publishSnapshot(ctx context.Context) {
	snapshot := m.List()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		m.logger.Error("failed to marshal instance snapshot", zap.Error(err))
		return
	}

	interval := m.cfg.HealthInterval
	if interval <= 0 {
		interval = time.Minute
	}
	if err := m.rdb.Set(ctx, infra.RedisKeyInstanceSnapshot, payload, 3*interval).Err(); err != nil {
		m.logger.Warn("failed to publish instance snapshot", zap.Error(err))
	}
}

func (m *Manager) restartInstance(ctx context.Context, key string, inst *Instance, now time.Time) {
	m.mu.Lock()
	// Журнал рестартов: оставляем только последние сутки
	recent := m.restarts[key][:0]
	for _, t := range m.restarts[key] {
		if now.Sub(t) < 24*time.Hour {
			recent = append(recent, t)
		}
	}

	maxRestarts := m.cfg.MaxRestarts24h
	if maxRestarts <= 0 {
		maxRestarts = 3
	}
	if len(recent) >= maxRestarts {
		// Restart storm: что-то сломано системно, рестарты только размазывают ущерб
		m.restarts[key] = recent
		m.quarantined[key] = true
		delete(m.instances, key)
		m.mu.Unlock()

		inst.Stop()
		m.logger.Error("restart storm guard tripped, instance stopped until manual start",
			zap.String("key", key), zap.Int("restarts_24h", len(recent)))
		return
	}

	m.restarts[key] = append(recent, now)
	delete(m.instances, key)
	m.mu.Unlock()

	m.logger.Warn("unhealthy instance, restarting", zap.String("key", key))
	inst.Stop()
	m.metrics.InstanceRestarts.WithLabelValues(inst.AgentType()).Inc()

	orgID, agentType, _ := strings.Cut(key, ":")
	if err := m.StartAgent(ctx, orgID, agentType); err != nil {
		m.logger.Error("failed to restart instance", zap.String("key", key), zap.Error(err))
	}
}

// ListenControl — resilient-подписка на команды Console API.
// Формат сообщения: "{orgID}:{agentType}:start" / "{orgID}:{agentType}:stop".
func (m *Manager) ListenControl(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.consumeControl(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("control subscription lost, reconnecting",
				zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (m *Manager) consumeControl(ctx context.Context) error {
	pubsub := m.rdb.Subscribe(ctx, infra.RedisChanAgentControl)
	defer pubsub.Close()

	// Подтверждаем подписку до входа в цикл
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	for {
		select {
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return fmt.Errorf("control channel closed")
			}
			m.handleControl(ctx, msg.Payload)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) handleControl(ctx context.Context, payload string) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		m.logger.Warn("malformed control command", zap.String("payload", payload))
		return
	}
	orgID, agentType, cmd := parts[0], parts[1], parts[2]

	switch cmd {
	case "start":
		if err := m.StartAgent(ctx, orgID, agentType); err != nil {
			m.logger.Error("control start failed", zap.String("payload", payload), zap.Error(err))
		}
	case "stop":
		m.StopAgent(orgID, agentType)
	default:
		m.logger.Warn("unknown control command", zap.String("payload", payload))
	}
}
