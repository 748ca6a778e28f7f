// Точка входа docstore — сервис хранения документов и файлов.
// Загружает конфигурацию, применяет миграции, подключается к БД и объектному
// хранилищу, создаёт сервисный слой и API handlers, запускает фоновую сверку,
// мониторинг зависимостей и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/docstore/internal/api/handlers"
	"github.com/bigkaa/docstore/internal/api/middleware"
	"github.com/bigkaa/docstore/internal/api/openapi"
	"github.com/bigkaa/docstore/internal/bootstrap"
	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/server"
	"github.com/bigkaa/docstore/internal/service"
	"github.com/bigkaa/docstore/internal/storage/objectstore"
)

// storeProbeTimeout — таймаут проверки хранилища в /health/ready.
const storeProbeTimeout = 3 * time.Second

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("docstore запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("db_driver", cfg.DBDriver),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("docstore завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("docstore остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Миграции и подключение к БД
	db, err := bootstrap.OpenDatabase(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// 4. Объектное хранилище (повторы + circuit breaker)
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// 5. Services
	seq := service.NewSequencer(db.Documents, cfg.TimeZone, cfg.SequencerMaxAttempts, logger)
	docsSvc := service.NewDocumentService(cfg, db.Documents, store, seq, logger)
	filesSvc := service.NewFileService(cfg, db.Files, store, logger)
	usageSvc := service.NewUsageService(store, []string{cfg.DocumentsPrefix, cfg.FilesPrefix}, cfg.UsageCacheTTL, logger)

	// 6. Фоновая сверка хранилища
	if cfg.ReconcileInterval > 0 {
		reconcileSvc := service.NewReconcileService(
			store, db.Documents, db.Files,
			cfg.DocumentsPrefix, cfg.FilesPrefix,
			cfg.ReconcileGracePeriod,
			logger,
		)
		reconcileSvc.Start(ctx, cfg.ReconcileInterval)
		defer reconcileSvc.Stop()
	}

	// 7. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	dephealthSvc, err := service.NewDephealthService(cfg, db.PgDB, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	}
	defer dephealthSvc.Stop()

	// 8. Health и API handlers
	storeChecker := objectstore.NewReadinessChecker(store, cfg.DocumentsPrefix, storeProbeTimeout)
	healthHandler := handlers.NewHealthHandler(db.Readiness, storeChecker, dephealthSvc)

	doc, err := openapi.Load(ctx)
	if err != nil {
		return err
	}
	docHandler, err := openapi.Handler(doc)
	if err != nil {
		return err
	}

	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		docsSvc,
		filesSvc,
		usageSvc,
		cfg.MaxUploadSize,
		logger,
	).WithOpenAPI(docHandler)

	// 9. JWT middleware (опционально)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWTJWKSURL,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			return err
		}
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWTJWKSURL))
	}

	// 10. HTTP-сервер
	return server.New(cfg, logger, apiHandler, jwtAuth).Run()
}
