package trigger

/*
Файл evaluator.go — проход проактивного триггер-движка.

Анти-спам инвариант «одно сообщение на (agent, rule, tenant) в окне cooldown»
держится на единственной атомарной операции: SET NX EX в Redis. Выигравший
ключ процесс — единственный, кто пишет сообщение в Conversation Sink; все
остальные срабатывания внутри окна подавляются. Порядок строгий: сначала
захват окна, потом запись сообщения — иначе гонка двух воркеров даст дубль.

Ошибки здесь fail-closed: упавшая оценка правила или недоступный Redis
означают «не отправлять», а не «отправить на всякий случай».
*/

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// MessageSink — запись проактивных сообщений.
type MessageSink interface {
	InsertMessage(ctx context.Context, m *domain.ProactiveMessage) error
}

// OrgLister — обход активных тенантов.
type OrgLister interface {
	ListActiveOrganizations(ctx context.Context) ([]string, error)
}

type Evaluator struct {
	orgs    OrgLister
	sink    MessageSink
	rdb     *redis.Client
	rules   []Rule
	cfg     infra.TriggerConfig
	metrics *infra.Metrics
	logger  *zap.Logger
}

func NewEvaluator(orgs OrgLister, sink MessageSink, rdb *redis.Client, rules []Rule, cfg infra.TriggerConfig, metrics *infra.Metrics, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		orgs:    orgs,
		sink:    sink,
		rdb:     rdb,
		rules:   rules,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("trigger"),
	}
}

// Run крутит проходы с интервалом pass_interval до отмены контекста.
func (e *Evaluator) Run(ctx context.Context) {
	interval := e.cfg.PassInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.RunPass(ctx, time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// RunPass оценивает все правила по всем тенантам. Возвращает число
// отправленных сообщений. Ошибка одного тенанта не валит проход.
func (e *Evaluator) RunPass(ctx context.Context, now time.Time) int {
	// Один проход на весь парк воркеров
	if e.rdb != nil {
		ok, err := e.rdb.SetNX(ctx, infra.RedisKeyTriggerLock, "1", e.cfg.PassInterval).Result()
		if err != nil {
			e.logger.Error("failed to acquire trigger pass lock", zap.Error(err))
			return 0
		}
		if !ok {
			return 0
		}
	}

	orgs, err := e.orgs.ListActiveOrganizations(ctx)
	if err != nil {
		e.logger.Error("failed to list organizations", zap.Error(err))
		return 0
	}

	fired := 0
	for _, orgID := range orgs {
		for _, rule := range e.rules {
			select {
			case <-ctx.Done():
				return fired
			default:
			}
			if e.evaluateOne(ctx, rule, orgID, now) {
				fired++
			}
		}
	}

	e.logger.Info("trigger pass finished",
		zap.Int("organizations", len(orgs)),
		zap.Int("rules", len(e.rules)),
		zap.Int("fired", fired))
	return fired
}

func (e *Evaluator) evaluateOne(ctx context.Context, rule Rule, orgID string, now time.Time) bool {
	log := e.logger.With(
		zap.String("rule", rule.Name()),
		zap.String("agent_type", rule.AgentType()),
		zap.String("org", orgID))

	firing, err := rule.Evaluate(ctx, orgID, now)
	if err != nil {
		// Fail-closed: ошибка оценки = не отправлять
		log.Error("rule evaluation failed", zap.Error(err))
		return false
	}
	if firing == nil {
		return false
	}

	// 1. Атомарный захват окна cooldown — единственный арбитр дублей
	cooldown := e.cooldownFor(rule.Name())
	won, err := e.rdb.SetNX(ctx, infra.CooldownKey(rule.AgentType(), rule.Name(), orgID), "1", cooldown).Result()
	if err != nil {
		log.Error("failed to acquire cooldown window", zap.Error(err))
		return false
	}
	if !won {
		e.metrics.TriggerSuppressed.WithLabelValues(rule.AgentType(), rule.Name()).Inc()
		log.Debug("trigger suppressed by cooldown")
		return false
	}

	// 2. Окно наше — пишем сообщение
	msg := &domain.ProactiveMessage{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		AgentType:      rule.AgentType(),
		RuleName:       rule.Name(),
		Title:          firing.Title,
		Body:           firing.Body,
		Severity:       firing.Severity,
	}
	if err := e.sink.InsertMessage(ctx, msg); err != nil {
		// Окно сгорело впустую — лучше пропущенное уведомление, чем дубль
		log.Error("failed to write proactive message", zap.Error(err))
		return false
	}

	e.metrics.TriggerFired.WithLabelValues(rule.AgentType(), rule.Name()).Inc()
	log.Info("proactive message sent",
		zap.String("severity", firing.Severity),
		zap.String("title", firing.Title))
	return true
}

func (e *Evaluator) cooldownFor(ruleName string) time.Duration {
	if d, ok := e.cfg.RuleCooldowns[ruleName]; ok && d > 0 {
		return d
	}
	if e.cfg.DefaultCooldown > 0 {
		return e.cfg.DefaultCooldown
	}
	return 24 * time.Hour
}
