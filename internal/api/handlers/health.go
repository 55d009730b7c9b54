// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/bigkaa/pixstore/internal/config"
)

// ReadinessChecker — проверка готовности зависимости (PostgreSQL).
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// uploadDir — путь к директории загрузок (для проверки FS)
	uploadDir string
	// db — проверка готовности PostgreSQL
	db ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(uploadDir string, db ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:   config.Version,
		uploadDir: uploadDir,
		db:        db,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет доступность PostgreSQL и директории загрузок.
// При любом отказе возвращает 503 с деталями по каждой проверке.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]any{}
	healthy := true

	// PostgreSQL
	dbStatus, dbMessage := h.db.CheckReady()
	checks["postgresql"] = map[string]string{"status": dbStatus, "message": dbMessage}
	if dbStatus != "ok" {
		healthy = false
	}

	// Директория загрузок
	fsStatus, fsMessage := "ok", "директория доступна"
	if info, err := os.Stat(h.uploadDir); err != nil || !info.IsDir() {
		fsStatus, fsMessage = "fail", "директория загрузок недоступна"
		healthy = false
	}
	checks["upload_dir"] = map[string]string{"status": fsStatus, "message": fsMessage}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "fail"
		statusCode = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    status,
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
