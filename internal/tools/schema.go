package tools

import (
	"fmt"
	"strings"
)

// SchemaError — нарушение контракта аргументов. Никогда не всплывает за
// границу задачи: Runtime возвращает его агенту как Observation.
type SchemaError struct {
	Tool     string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tool %s: invalid arguments: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// ValidateArgs проверяет аргументы вызова против схемы инструмента.
// Собирает все проблемы разом, чтобы агент мог исправить вызов за один раунд.
func ValidateArgs(tool Tool, args map[string]any) error {
	schema := tool.Schema()
	var problems []string

	// 1. Обязательные параметры
	for name, spec := range schema.Params {
		val, ok := args[name]
		if !ok {
			if spec.Required {
				problems = append(problems, fmt.Sprintf("missing required param %q", name))
			}
			continue
		}
		if !typeMatches(spec.Type, val) {
			problems = append(problems, fmt.Sprintf("param %q: expected %s, got %T", name, spec.Type, val))
		}
	}

	// 2. Неизвестные параметры — тоже ошибка контракта
	for name := range args {
		if _, ok := schema.Params[name]; !ok {
			problems = append(problems, fmt.Sprintf("unknown param %q", name))
		}
	}

	if len(problems) > 0 {
		return &SchemaError{Tool: tool.Name(), Problems: problems}
	}
	return nil
}

func typeMatches(want string, val any) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "number":
		switch val.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := val.(type) {
		case int, int64:
			return true
		case float64:
			// JSON-числа приходят как float64
			return v == float64(int64(v))
		}
		return false
	default:
		return true
	}
}
