// download.go — сервис отдачи файлов по идентификатору.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	apierrors "github.com/bigkaa/pixstore/internal/api/errors"
	"github.com/bigkaa/pixstore/internal/repository"
	"github.com/bigkaa/pixstore/internal/storage/blobstore"
)

// DownloadError — ошибка отдачи файла с HTTP-кодом.
type DownloadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// DownloadService — сервис отдачи файлов.
type DownloadService struct {
	store  *blobstore.BlobStore
	files  repository.FileRepository
	logger *slog.Logger
}

// NewDownloadService создаёт сервис отдачи файлов.
func NewDownloadService(
	store *blobstore.BlobStore,
	files repository.FileRepository,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		store:  store,
		files:  files,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт файл клиенту через http.ServeContent.
// Поддерживает Range requests (206 Partial Content) и ETag (If-None-Match).
//
// Неизвестный id — NOT_FOUND. Запись есть, а blob на диске отсутствует —
// внутренняя ошибка консистентности хранилища, НЕ NOT_FOUND: вызывающий
// код должен отличать "никогда не существовал" от "хранилище повреждено".
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, fileID string) *DownloadError {
	record, err := s.files.GetByID(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &DownloadError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Файл %s не найден", fileID),
			}
		}
		s.logger.Error("Ошибка получения записи файла",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения метаданных",
		}
	}

	file, err := s.store.Open(record.FileName)
	if err != nil {
		s.logger.Error("Запись существует, blob отсутствует на диске",
			slog.String("file_id", fileID),
			slog.String("file_name", record.FileName),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Хранилище в неконсистентном состоянии",
		}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.logger.Error("Ошибка получения stat файла",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}

	w.Header().Set("Content-Type", contentTypeFor(record.FileName))
	w.Header().Set("ETag", fmt.Sprintf("\"%s\"", record.FileHash))
	w.Header().Set("Accept-Ranges", "bytes")

	// http.ServeContent автоматически обрабатывает Range requests,
	// If-None-Match (через ETag) и Content-Length. Статус перехватываем:
	// 304 и 416 не считаются отданными файлами.
	sc := &statusCapture{ResponseWriter: w, status: http.StatusOK}
	http.ServeContent(sc, r, record.FileName, stat.ModTime(), file)

	switch sc.status {
	case http.StatusOK, http.StatusPartialContent:
		OperationsTotal.WithLabelValues("download", "success").Inc()
	}

	s.logger.Debug("Файл отдан",
		slog.String("file_id", fileID),
		slog.String("file_name", record.FileName),
		slog.Int64("size", record.FileSize),
	)

	return nil
}

// statusCapture — обёртка для перехвата статуса, выбранного http.ServeContent.
type statusCapture struct {
	http.ResponseWriter
	status int
}

func (s *statusCapture) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (s *statusCapture) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// contentTypeFor определяет Content-Type по расширению имени blob.
func contentTypeFor(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
