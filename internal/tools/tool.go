package tools

import "context"

// ParamSpec — описание одного параметра инструмента.
type ParamSpec struct {
	Type        string // "string", "number", "integer", "boolean"
	Required    bool
	Description string
}

// Schema — контракт аргументов инструмента. Валидируется до исполнения.
type Schema struct {
	Params map[string]ParamSpec
}

// Tool — именованная вызываемая функция, доступная агентам в tool-цикле.
// ReadOnly-инструменты полностью минуют Approval System; инструменты
// с side effect проходят через него в Runtime, не здесь.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	ReadOnly() bool
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Request — запрос агента на вызов инструмента в рамках одного round-trip.
type Request struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Observation — то, что возвращается в reasoning-контекст агента.
// Ошибка инструмента — это наблюдение, а не исключение: агент может
// попробовать альтернативный инструмент в следующем раунде.
type Observation struct {
	Tool string         `json:"tool"`
	Data map[string]any `json:"data,omitempty"`
	Err  string         `json:"error,omitempty"`

	// SchemaInvalid отличает «инструмент упал» от «агент вызвал его неправильно»:
	// второе исправляется самим агентом в рамках того же бюджета раундов.
	SchemaInvalid bool `json:"schema_invalid,omitempty"`
}
