package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeChecker — подменная проверка готовности PostgreSQL.
type fakeChecker struct {
	status  string
	message string
}

func (f *fakeChecker) CheckReady() (string, string) {
	return f.status, f.message
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(t.TempDir(), &fakeChecker{status: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, ожидается 200", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("декодирование тела: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, ожидается ok", body["status"])
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		dbStatus   string
		uploadDir  func(t *testing.T) string
		wantStatus int
	}{
		{
			name:       "всё готово",
			dbStatus:   "ok",
			uploadDir:  func(t *testing.T) string { return t.TempDir() },
			wantStatus: http.StatusOK,
		},
		{
			name:       "PostgreSQL недоступен",
			dbStatus:   "fail",
			uploadDir:  func(t *testing.T) string { return t.TempDir() },
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "директория загрузок отсутствует",
			dbStatus:   "ok",
			uploadDir:  func(t *testing.T) string { return "/nonexistent/pixstore-dir" },
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.uploadDir(t), &fakeChecker{status: tt.dbStatus, message: "x"})

			req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидается %d", rec.Code, tt.wantStatus)
			}

			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("декодирование тела: %v", err)
			}
			if _, ok := body["checks"]; !ok {
				t.Error("в ответе отсутствует секция checks")
			}
		})
	}
}
