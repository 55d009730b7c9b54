// auth.go — проверка API-ключей (Key Validator).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/pixstore/internal/repository"
)

// ErrUnauthenticated — ключ отсутствует, неизвестен или истёк.
// Истёкший ключ неотличим для вызывающего кода от неизвестного —
// никакой информации о причине отказа наружу не уходит.
var ErrUnauthenticated = errors.New("недействительный или отсутствующий API-ключ")

// Prometheus-метрики кэша API-ключей.
var (
	keyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "px_key_cache_hits_total",
		Help: "Общее количество попаданий в кэш API-ключей.",
	})
	keyCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "px_key_cache_misses_total",
		Help: "Общее количество промахов кэша API-ключей.",
	})
)

// cachedKey — валидированный ключ в кэше. Срок действия
// перепроверяется при каждом попадании: ключ может истечь
// раньше, чем TTL кэша.
type cachedKey struct {
	owner     string
	expiresAt time.Time
}

// KeyValidator — сервис проверки API-ключей с LRU-кэшем
// положительных результатов.
type KeyValidator struct {
	keys   repository.ApiKeyRepository
	cache  *expirable.LRU[string, cachedKey]
	logger *slog.Logger
}

// NewKeyValidator создаёт сервис проверки API-ключей.
// cacheSize — максимальное количество записей в кэше,
// cacheTTL — время жизни записи после добавления.
func NewKeyValidator(keys repository.ApiKeyRepository, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *KeyValidator {
	return &KeyValidator{
		keys:   keys,
		cache:  expirable.NewLRU[string, cachedKey](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "key_validator")),
	}
}

// Validate проверяет предъявленный ключ против хранилища выданных ключей.
// Возвращает метку владельца ключа для атрибуции последующих записей.
//
// ErrUnauthenticated — пустой, неизвестный или истёкший ключ.
// Любая другая ошибка — сбой хранилища; она оборачивается и остаётся
// отличимой от отказа в аутентификации. Повторных попыток нет.
func (v *KeyValidator) Validate(ctx context.Context, presented string) (string, error) {
	if presented == "" {
		return "", ErrUnauthenticated
	}

	if cached, ok := v.cache.Get(presented); ok {
		keyCacheHitsTotal.Inc()
		if time.Now().UTC().Before(cached.expiresAt) {
			return cached.owner, nil
		}
		// Ключ истёк раньше TTL кэша
		v.cache.Remove(presented)
		return "", ErrUnauthenticated
	}
	keyCacheMissesTotal.Inc()

	key, err := v.keys.GetBySecret(ctx, presented)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("ошибка проверки API-ключа: %w", err)
	}

	if !key.Valid(time.Now().UTC()) {
		return "", ErrUnauthenticated
	}

	// Кэшируем только положительный результат
	v.cache.Add(presented, cachedKey{owner: key.KeyOwner, expiresAt: key.ExpiresAt})

	return key.KeyOwner, nil
}
