package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/pixstore/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
const fileColumns = `id, file_name, file_hash, file_type, file_size, uploader, upload_date`

// FileRepository — доступ к таблице files.
// Записи создаются при успешной загрузке и никогда не обновляются;
// удаление вне зоны ответственности сервиса.
type FileRepository interface {
	// Create вставляет новую запись файла.
	// Возвращает ErrConflict при нарушении уникальности
	// (гонка двух загрузок идентичного содержимого).
	Create(ctx context.Context, f *model.FileRecord) error
	// GetByID возвращает запись по идентификатору или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// GetIDByHash возвращает идентификатор записи с указанным
	// дайджестом содержимого или ErrNotFound.
	GetIDByHash(ctx context.Context, hash string) (string, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Create вставляет запись файла. Уникальность file_hash обеспечивается
// constraint'ом в БД — это закрывает гонку check-then-insert между
// конкурентными загрузками одинакового содержимого.
func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (id, file_name, file_hash, file_type, file_size, uploader, upload_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		f.ID, f.FileName, f.FileHash, int16(f.FileType), f.FileSize, f.Uploader, f.UploadDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким содержимым уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации файла: %w", err)
	}
	return nil
}

// GetByID возвращает запись файла по идентификатору или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)

	f := &model.FileRecord{}
	var fileType int16
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.FileName, &f.FileHash, &fileType, &f.FileSize, &f.Uploader, &f.UploadDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	f.FileType = model.MediaKind(fileType)
	return f, nil
}

// GetIDByHash возвращает идентификатор файла с указанным дайджестом.
// Используется при проверке дедупликации перед фиксацией нового blob.
func (r *fileRepo) GetIDByHash(ctx context.Context, hash string) (string, error) {
	query := `SELECT id FROM files WHERE file_hash = $1`

	var id string
	err := r.db.QueryRow(ctx, query, hash).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка поиска файла по дайджесту: %w", err)
	}
	return id, nil
}
