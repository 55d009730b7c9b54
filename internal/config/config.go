// Пакет config — загрузка и валидация конфигурации pixstore
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации pixstore.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Путь к директории хранения загруженных файлов
	UploadDir string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Пользователь PostgreSQL
	DBUser string
	// Пароль PostgreSQL
	DBPassword string
	// Режим SSL подключения к PostgreSQL
	DBSSLMode string

	// Максимальное количество записей в кэше API-ключей
	KeyCacheSize int
	// Время жизни записи в кэше API-ключей
	KeyCacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// PX_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("PX_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PX_PORT: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("PX_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// PX_UPLOAD_DIR — обязательный
	cfg.UploadDir, err = getEnvRequired("PX_UPLOAD_DIR")
	if err != nil {
		return nil, err
	}

	// PX_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 1 GiB)
	maxFileSize, err := getEnvInt64("PX_MAX_FILE_SIZE", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("PX_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("PX_MAX_FILE_SIZE: значение должно быть положительным")
	}
	cfg.MaxFileSize = maxFileSize

	// PX_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("PX_DB_HOST")
	if err != nil {
		return nil, err
	}

	// PX_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("PX_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PX_DB_PORT: %w", err)
	}

	// PX_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("PX_DB_NAME")
	if err != nil {
		return nil, err
	}

	// PX_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("PX_DB_USER")
	if err != nil {
		return nil, err
	}

	// PX_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("PX_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// PX_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("PX_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PX_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// PX_KEY_CACHE_SIZE — размер кэша API-ключей (по умолчанию 1024)
	cfg.KeyCacheSize, err = getEnvInt("PX_KEY_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("PX_KEY_CACHE_SIZE: %w", err)
	}
	if cfg.KeyCacheSize <= 0 {
		return nil, fmt.Errorf("PX_KEY_CACHE_SIZE: значение должно быть положительным")
	}

	// PX_KEY_CACHE_TTL — TTL кэша API-ключей (по умолчанию 1m)
	cfg.KeyCacheTTL, err = getEnvDuration("PX_KEY_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PX_KEY_CACHE_TTL: %w", err)
	}

	// PX_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PX_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PX_LOG_LEVEL: %w", err)
	}

	// PX_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PX_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PX_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// PX_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("PX_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PX_SHUTDOWN_TIMEOUT: %w", err)
	}

	// PX_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("PX_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PX_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// PX_DEPHEALTH_GROUP — имя группы в метриках topologymetrics (по умолчанию "pixstore")
	cfg.DephealthGroup = getEnvDefault("PX_DEPHEALTH_GROUP", "pixstore")

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает строку подключения в URL-формате.
// Используется topologymetrics для извлечения host/port меток.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// MigrateURL возвращает строку подключения для golang-migrate
// (схема pgx5 — драйвер pgx/v5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
