package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/pixstore/internal/domain/model"
)

// ApiKeyRepository — read-only доступ к таблице apikeys.
// Ключи создаются административно, вне сервиса; pixstore их
// никогда не изменяет и не удаляет.
type ApiKeyRepository interface {
	// GetBySecret возвращает ключ по секретному значению или ErrNotFound.
	GetBySecret(ctx context.Context, secret string) (*model.ApiKey, error)
}

// apiKeyRepo — реализация ApiKeyRepository через pgx.
type apiKeyRepo struct {
	db DBTX
}

// NewApiKeyRepository создаёт репозиторий API-ключей.
func NewApiKeyRepository(db DBTX) ApiKeyRepository {
	return &apiKeyRepo{db: db}
}

// GetBySecret возвращает ключ по секретному значению.
// Проверка срока действия выполняется в сервисном слое.
func (r *apiKeyRepo) GetBySecret(ctx context.Context, secret string) (*model.ApiKey, error) {
	query := `SELECT id, key_owner, apikey, expires_at FROM apikeys WHERE apikey = $1`

	k := &model.ApiKey{}
	err := r.db.QueryRow(ctx, query, secret).Scan(&k.ID, &k.KeyOwner, &k.Key, &k.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения API-ключа: %w", err)
	}
	return k, nil
}
