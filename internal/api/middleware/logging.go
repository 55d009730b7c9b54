// logging.go — middleware логирования HTTP-запросов через slog.
// Помимо общих атрибутов пишутся детали файловых операций: размер тела
// загрузки, запрошенный идентификатор файла и признак наличия API-ключа
// (сам ключ в логи не попадает).
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// statusWriter — обёртка ResponseWriter, запоминающая статус и объём ответа.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// RequestLogger возвращает middleware, логирующий каждый запрос после
// обработки. Уровень зависит от статуса: 5xx — Error, 4xx — Warn,
// остальное — Info.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes_out", sw.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			}

			// Детали файловых операций
			if r.Method == http.MethodPost && r.ContentLength >= 0 {
				attrs = append(attrs, slog.Int64("bytes_in", r.ContentLength))
			}
			if id := r.URL.Query().Get("id"); id != "" {
				attrs = append(attrs, slog.String("file_id", id))
			}
			if r.Header.Get(APIKeyHeader) != "" {
				attrs = append(attrs, slog.Bool("api_key", true))
			}

			var level slog.Level
			switch {
			case sw.status >= 500:
				level = slog.LevelError
			case sw.status >= 400:
				level = slog.LevelWarn
			default:
				level = slog.LevelInfo
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
