// auth.go — middleware аутентификации по API-ключу.
// Ключ передаётся в заголовке X-API-Key и проверяется против
// таблицы выданных ключей через сервис KeyValidator.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/pixstore/internal/api/errors"
	"github.com/bigkaa/pixstore/internal/service"
)

// APIKeyHeader — заголовок с API-ключом.
const APIKeyHeader = "X-API-Key"

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// contextKeyOwner — метка владельца ключа в контексте запроса.
const contextKeyOwner contextKey = "api_key_owner"

// KeyValidator — проверка предъявленного API-ключа.
// Реализуется service.KeyValidator.
type KeyValidator interface {
	Validate(ctx context.Context, presented string) (owner string, err error)
}

// APIKeyAuth возвращает middleware, требующий действительный API-ключ.
// Недействительный, истёкший или отсутствующий ключ — 401 без деталей
// о причине отказа. Сбой хранилища ключей — 500, не 401.
func APIKeyAuth(validator KeyValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)

			owner, err := validator.Validate(r.Context(), presented)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					apierrors.Unauthorized(w, "Недействительный или отсутствующий API-ключ")
					return
				}
				logger.Error("Ошибка проверки API-ключа",
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Ошибка проверки API-ключа")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyOwner, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext возвращает метку владельца ключа из контекста запроса.
// Пустая строка — запрос не проходил через APIKeyAuth.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(contextKeyOwner).(string)
	return owner
}
