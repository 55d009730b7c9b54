// Точка входа pixstore — сервиса хранения изображений.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует файловое хранилище, репозитории и сервисный слой,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/pixstore/internal/api/handlers"
	"github.com/bigkaa/pixstore/internal/config"
	"github.com/bigkaa/pixstore/internal/database"
	"github.com/bigkaa/pixstore/internal/repository"
	"github.com/bigkaa/pixstore/internal/server"
	"github.com/bigkaa/pixstore/internal/service"
	"github.com/bigkaa/pixstore/internal/storage/blobstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("pixstore запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("upload_dir", cfg.UploadDir),
	)

	if os.Getenv("PX_DEPHEALTH_GROUP") == "" {
		logger.Warn("PX_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Файловое хранилище
	store, err := blobstore.New(cfg.UploadDir)
	if err != nil {
		logger.Error("Ошибка инициализации файлового хранилища",
			slog.String("dir", cfg.UploadDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Файловое хранилище инициализировано", slog.String("dir", cfg.UploadDir))

	// 6. Repositories
	keyRepo := repository.NewApiKeyRepository(pool)
	fileRepo := repository.NewFileRepository(pool)

	// 7. Services
	validator := service.NewKeyValidator(keyRepo, cfg.KeyCacheSize, cfg.KeyCacheTTL, logger)
	uploadSvc := service.NewUploadService(store, fileRepo, cfg.MaxFileSize, logger)
	downloadSvc := service.NewDownloadService(store, fileRepo, logger)

	// 8. topologymetrics — мониторинг зависимостей (PostgreSQL)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"pixstore",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 9. Handlers
	openapiHandler, err := handlers.NewOpenAPIHandler()
	if err != nil {
		logger.Error("Ошибка инициализации OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	h := server.Handlers{
		Files:   handlers.NewFilesHandler(uploadSvc, downloadSvc),
		Health:  handlers.NewHealthHandler(cfg.UploadDir, database.NewReadinessChecker(pool)),
		OpenAPI: openapiHandler,
	}

	// 10. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, validator)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("pixstore остановлен")
}
