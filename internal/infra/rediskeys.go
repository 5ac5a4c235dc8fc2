package infra

import "fmt"

const (
	// RedisNamespace — базовый префикс для изоляции данных проекта в Redis.
	RedisNamespace = "blipee"
)

// Ключи состояния (строки/сеты)
const (
	// RedisKeyCooldownPrefix + "{agent}:{rule}:{org}" — SET NX EX на окно cooldown.
	// Существование ключа = триггер в окне, повторный fire невозможен.
	RedisKeyCooldownPrefix = RedisNamespace + ":trigger:cooldown:"

	// RedisKeySchedulerLock — распределенная блокировка тика планировщика,
	// чтобы при нескольких воркерах тик исполнял только один.
	RedisKeySchedulerLock = RedisNamespace + ":scheduler:tick_lock"

	// RedisKeyTriggerLock — то же для прохода триггер-движка.
	RedisKeyTriggerLock = RedisNamespace + ":trigger:pass_lock"

	// RedisKeyInstanceSnapshot — JSON-снэпшот парка инстансов, который воркер
	// обновляет каждый health-цикл. Console API читает его вместо прямого
	// обращения к процессу воркера.
	RedisKeyInstanceSnapshot = RedisNamespace + ":agents:snapshot"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanApprovalDecisions — префикс каналов для трансляции решений
	// оператора (HITL). Полный канал: blipee:approvals:decision:{approvalID}.
	RedisChanApprovalDecisions = RedisNamespace + ":approvals"

	// RedisChanAgentControl — команды Console API менеджеру агентов:
	// "{orgID}:{agentType}:start" / "{orgID}:{agentType}:stop".
	RedisChanAgentControl = RedisNamespace + ":agents:control"
)

// ApprovalDecisionChannel — канал пробуждения запаркованного действия.
func ApprovalDecisionChannel(approvalID string) string {
	return fmt.Sprintf("%s:decision:%s", RedisChanApprovalDecisions, approvalID)
}

// CooldownKey — ключ окна cooldown для тройки (agent, rule, tenant).
func CooldownKey(agentType, ruleName, orgID string) string {
	return RedisKeyCooldownPrefix + agentType + ":" + ruleName + ":" + orgID
}
