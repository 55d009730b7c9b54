// files.go — HTTP handlers файловых операций pixstore: upload и get.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/pixstore/internal/api/errors"
	"github.com/bigkaa/pixstore/internal/api/middleware"
	"github.com/bigkaa/pixstore/internal/service"
)

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(uploadSvc *service.UploadService, downloadSvc *service.DownloadService) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
	}
}

// uploadResponse — тело успешного ответа POST /upload.
type uploadResponse struct {
	ID  string `json:"id"`
	Ext string `json:"ext"`
}

// Upload обрабатывает POST /upload.
// Тело запроса — сырые байты файла; принимаются только изображения.
// Требует действительный API-ключ (middleware.APIKeyAuth).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())

	result, uploadErr := h.uploadSvc.Upload(r.Context(), service.UploadParams{
		Reader:   r.Body,
		Uploader: owner,
	})
	if uploadErr != nil {
		errors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		ID:  result.Record.ID,
		Ext: result.Ext,
	})
}

// Get обрабатывает GET /get?id=<id>.
// Отдаёт сырые байты файла с подходящим Content-Type. Без аутентификации.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errors.ValidationError(w, "Параметр id обязателен")
		return
	}

	if downloadErr := h.downloadSvc.Serve(w, r, id); downloadErr != nil {
		errors.WriteError(w, downloadErr.StatusCode, downloadErr.Code, downloadErr.Message)
	}
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
