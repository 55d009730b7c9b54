// upload.go — сервис загрузки файлов: классификация содержимого,
// streaming-хэширование с лимитом размера, дедупликация по дайджесту
// и фиксация blob + записи метаданных.
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/pixstore/internal/api/errors"
	"github.com/bigkaa/pixstore/internal/domain/model"
	"github.com/bigkaa/pixstore/internal/repository"
	"github.com/bigkaa/pixstore/internal/storage/blobstore"
)

// OperationsTotal — счётчик файловых операций (upload/download, результат).
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "px_operations_total",
		Help: "Общее количество файловых операций",
	},
	[]string{"operation", "result"},
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла (тело запроса)
	Reader io.Reader
	// Uploader — метка владельца API-ключа
	Uploader string
}

// UploadResult — результат загрузки файла.
type UploadResult struct {
	Record *model.FileRecord
	// Ext — расширение, определённое по содержимому (без точки)
	Ext string
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
	// ExistingID — идентификатор ранее загруженного файла
	// (заполнен только для Code == ALREADY_EXISTS)
	ExistingID string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — оркестратор загрузки файлов.
type UploadService struct {
	store       *blobstore.BlobStore
	files       repository.FileRepository
	maxFileSize int64
	logger      *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	store *blobstore.BlobStore,
	files repository.FileRepository,
	maxFileSize int64,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		store:       store,
		files:       files,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "upload_service")),
	}
}

// Upload проводит загрузку через линейную последовательность этапов:
//
//  1. Классификация по префиксу потока (только изображения)
//  2. Streaming-приём с BLAKE3 и контролем лимита размера
//  3. Проверка дедупликации по дайджесту
//  4. Фиксация: атомарный rename blob + вставка записи метаданных
//
// Этапы не повторяются; отказ до фиксации не оставляет следов на диске.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*UploadResult, *UploadError) {
	// 1. Классификация по первым байтам потока.
	// bufio.Reader отдаёт префикс, не потребляя его: захэшированы
	// будут ровно те же байты, что и классифицированы.
	br := bufio.NewReaderSize(params.Reader, SniffLen)
	prefix, err := br.Peek(SniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Error("Ошибка чтения префикса потока", slog.String("error", err.Error()))
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения потока данных",
		}
	}

	cls, clsErr := Classify(prefix)
	if clsErr != nil {
		OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeUnsupportedMediaType,
			Message:    clsErr.Error(),
		}
	}

	// 2. Streaming-приём: BLAKE3 + подсчёт байт + лимит за один проход
	staged, err := s.store.Stage(br, s.maxFileSize)
	if err != nil {
		if errors.Is(err, blobstore.ErrTooLarge) {
			OperationsTotal.WithLabelValues("upload", "rejected").Inc()
			return nil, &UploadError{
				StatusCode: 400,
				Code:       apierrors.CodeFileTooLarge,
				Message:    fmt.Sprintf("Размер файла превышает максимум %d байт", s.maxFileSize),
			}
		}
		s.logger.Error("Ошибка приёма потока", slog.String("error", err.Error()))
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла на диск",
		}
	}

	// 3. Дедупликация: файл с тем же дайджестом уже загружен?
	existingID, err := s.files.GetIDByHash(ctx, staged.Digest)
	switch {
	case err == nil:
		s.store.Discard(staged)
		OperationsTotal.WithLabelValues("upload", "duplicate").Inc()
		return nil, s.alreadyExists(existingID)
	case !errors.Is(err, repository.ErrNotFound):
		s.store.Discard(staged)
		s.logger.Error("Ошибка проверки дедупликации",
			slog.String("digest", staged.Digest),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка проверки дубликатов",
		}
	}

	// 4. Фиксация: идентификатор, rename blob, вставка записи
	fileID := strings.ReplaceAll(uuid.New().String(), "-", "")
	fileName := fileID + "." + cls.Ext

	if err := s.store.Commit(staged, fileName); err != nil {
		s.logger.Error("Ошибка фиксации blob",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла на диск",
		}
	}

	record := &model.FileRecord{
		ID:         fileID,
		FileName:   fileName,
		FileHash:   staged.Digest,
		FileType:   cls.Kind,
		FileSize:   staged.Size,
		Uploader:   params.Uploader,
		UploadDate: time.Now().UTC(),
	}

	if err := s.files.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Проигравший гонку конкурентных загрузок одинакового
			// содержимого: убираем свой blob и отдаём id победителя.
			if rmErr := s.store.Remove(fileName); rmErr != nil {
				s.logger.Warn("Не удалось удалить blob проигравшей загрузки",
					slog.String("file_name", fileName),
					slog.String("error", rmErr.Error()),
				)
			}
			winnerID, lookupErr := s.files.GetIDByHash(ctx, staged.Digest)
			if lookupErr != nil {
				s.logger.Error("Конфликт дайджеста без существующей записи",
					slog.String("digest", staged.Digest),
					slog.String("error", lookupErr.Error()),
				)
				return nil, &UploadError{
					StatusCode: 500,
					Code:       apierrors.CodeInternalError,
					Message:    "Ошибка регистрации файла",
				}
			}
			OperationsTotal.WithLabelValues("upload", "duplicate").Inc()
			return nil, s.alreadyExists(winnerID)
		}

		// Blob уже на диске, запись не вставлена — внутренняя ошибка,
		// успех возвращать нельзя.
		s.logger.Error("Ошибка вставки записи файла (blob сохранён)",
			slog.String("file_id", fileID),
			slog.String("file_name", fileName),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка регистрации файла",
		}
	}

	OperationsTotal.WithLabelValues("upload", "success").Inc()

	s.logger.Info("Файл загружен",
		slog.String("file_id", fileID),
		slog.String("file_name", fileName),
		slog.Int64("size", staged.Size),
		slog.String("digest", staged.Digest),
		slog.String("type", cls.Kind.String()),
		slog.String("uploader", params.Uploader),
	)

	return &UploadResult{Record: record, Ext: cls.Ext}, nil
}

// alreadyExists формирует ошибку дедупликации с идентификатором
// ранее загруженного файла. Повторная отправка того же содержимого —
// отказ с указанием существующего id, а не тихий успех.
func (s *UploadService) alreadyExists(existingID string) *UploadError {
	return &UploadError{
		StatusCode: 400,
		Code:       apierrors.CodeAlreadyExists,
		Message:    fmt.Sprintf("Файл с таким содержимым уже существует, id=%s", existingID),
		ExistingID: existingID,
	}
}
