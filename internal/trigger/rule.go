package trigger

import (
	"context"
	"time"
)

// Firing — результат сработавшего правила: заготовка проактивного сообщения.
type Firing struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "critical"
}

// Rule — одно проактивное правило, привязанное к типу агента.
// Evaluate возвращает nil при «не сработало»; ошибка трактуется fail-closed —
// сообщение не отправляется.
type Rule interface {
	Name() string
	AgentType() string
	Evaluate(ctx context.Context, orgID string, now time.Time) (*Firing, error)
}
