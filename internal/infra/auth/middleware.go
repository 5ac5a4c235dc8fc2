package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// TokenValidator — проверка токена оператора; реализуется ConsoleService
// через embedding BaseValidator.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Типизированные ключи контекста: строковые ключи из чужих пакетов
// не смогут случайно перетереть наши значения.
type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyScopes
)

// UserID возвращает идентификатор оператора из контекста запроса.
// Пустая строка = запрос не проходил через NewMiddleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

// Scopes возвращает права оператора из контекста запроса.
func Scopes(ctx context.Context) map[string]bool {
	scopes, _ := ctx.Value(ctxKeyScopes).(map[string]bool)
	return scopes
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ctxKeyScopes, claims.Scopes)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope пропускает только операторов с нужным правом.
// Роль admin покрывает все скоупы. Вешается ПОСЛЕ NewMiddleware.
func RequireScope(scope string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes := Scopes(r.Context())
			if !scopes["admin"] && !scopes[scope] {
				logger.Warn("scope denied",
					zap.String("user_id", UserID(r.Context())),
					zap.String("required_scope", scope))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
