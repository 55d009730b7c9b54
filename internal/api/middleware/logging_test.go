package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"
)

// captureLog прогоняет запрос через RequestLogger и возвращает
// разобранную JSON-запись лога.
func captureLog(t *testing.T, req *http.Request, next http.HandlerFunc) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	rec := httptest.NewRecorder()
	RequestLogger(logger)(next).ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("разбор записи лога: %v (%s)", err, buf.String())
	}
	return entry
}

func TestRequestLogger_Upload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("data"))
	req.Header.Set(APIKeyHeader, "secret-key")

	entry := captureLog(t, req, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("payload"))
	})

	if entry["method"] != "POST" {
		t.Errorf("method = %v, ожидается POST", entry["method"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, ожидается 200", entry["status"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, ожидается INFO", entry["level"])
	}
	// Размер тела загрузки попадает в лог
	if entry["bytes_in"] != float64(4) {
		t.Errorf("bytes_in = %v, ожидается 4", entry["bytes_in"])
	}
	if entry["bytes_out"] != float64(7) {
		t.Errorf("bytes_out = %v, ожидается 7", entry["bytes_out"])
	}
	// Логируется только факт наличия ключа, не его значение
	if entry["api_key"] != true {
		t.Errorf("api_key = %v, ожидается true", entry["api_key"])
	}
	if strings.Contains(stringify(entry), "secret-key") {
		t.Error("значение API-ключа не должно попадать в лог")
	}
}

func TestRequestLogger_GetByID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/get?id=deadbeef", nil)

	entry := captureLog(t, req, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// Запрошенный идентификатор и уровень Warn для 4xx
	if entry["file_id"] != "deadbeef" {
		t.Errorf("file_id = %v, ожидается deadbeef", entry["file_id"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, ожидается WARN", entry["level"])
	}
}

func TestRequestLogger_ServerError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/get?id=x", nil)

	entry := captureLog(t, req, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, ожидается ERROR", entry["level"])
	}
}

// stringify возвращает запись лога одной строкой для поиска подстрок.
func stringify(entry map[string]any) string {
	b, _ := json.Marshal(entry)
	return string(b)
}
