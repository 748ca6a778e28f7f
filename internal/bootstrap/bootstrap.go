// Пакет bootstrap — сборка зависимостей docstore по конфигурации:
// подключение к БД выбранного драйвера, репозитории и объектное хранилище.
// Используется сервером и CLI docstorectl.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/database"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/resilience"
	"github.com/bigkaa/docstore/internal/storage/objectstore"
)

// Database — подключение к БД и репозитории поверх него.
type Database struct {
	Documents repository.DocumentRepository
	Files     repository.FileRepository
	Readiness *database.ReadinessChecker
	// PgDB — *sql.DB поверх pgxpool для topologymetrics; nil для MySQL
	PgDB *sql.DB

	closers []func()
}

// Close закрывает подключения в обратном порядке.
func (d *Database) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// OpenDatabase применяет миграции (если migrate) и подключается к БД
// драйвера cfg.DBDriver.
func OpenDatabase(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (*Database, error) {
	if migrate {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, err
		}
	}

	switch cfg.DBDriver {
	case config.DriverMySQL:
		db, err := database.ConnectMySQL(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Database{
			Documents: repository.NewMySQLDocumentRepository(db),
			Files:     repository.NewMySQLFileRepository(db),
			Readiness: database.NewMySQLReadinessChecker(db),
			closers:   []func(){func() { _ = db.Close() }},
		}, nil
	default:
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return newPostgresDatabase(pool), nil
	}
}

func newPostgresDatabase(pool *pgxpool.Pool) *Database {
	// Проверка здоровья PostgreSQL в topologymetrics идёт через
	// существующий пул, что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	return &Database{
		Documents: repository.NewDocumentRepository(pool),
		Files:     repository.NewFileRepository(pool),
		Readiness: database.NewReadinessChecker(pool),
		PgDB:      pgDB,
		closers:   []func(){pool.Close, func() { _ = pgDB.Close() }},
	}
}

// Store — объектное хранилище с повторами и circuit breaker.
type Store struct {
	*objectstore.Resilient
	close func()
}

// Close освобождает соединения backend-а (SFTP).
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore создаёт backend cfg.StorageBackend и оборачивает его
// в objectstore.Resilient.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	var (
		inner   objectstore.Store
		closeFn func()
	)

	switch cfg.StorageBackend {
	case config.BackendSFTP:
		s, err := objectstore.NewSFTPStore(objectstore.SFTPConfig{
			Host:            cfg.SFTPHost,
			Port:            cfg.SFTPPort,
			User:            cfg.SFTPUser,
			Password:        cfg.SFTPPassword,
			PrivateKeyPath:  cfg.SFTPPrivateKeyPath,
			KnownHostsPath:  cfg.SFTPKnownHostsPath,
			InsecureHostKey: cfg.SFTPInsecureHostKey,
			Root:            cfg.SFTPRoot,
			Timeout:         cfg.SFTPTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания SFTP-хранилища: %w", err)
		}
		if cfg.SFTPInsecureHostKey {
			logger.Warn("Проверка ключа SFTP-сервера отключена")
		}
		inner = s
		closeFn = func() { _ = s.Close() }
	case config.BackendFS:
		s, err := objectstore.NewFSStore(cfg.FSRoot)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания хранилища в ФС: %w", err)
		}
		inner = s
	case config.BackendS3:
		s, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = s
	default:
		return nil, fmt.Errorf("неизвестный backend хранилища %q", cfg.StorageBackend)
	}

	exec := resilience.NewExecutor(ResilienceConfig(cfg), logger)
	logger.Info("Объектное хранилище настроено",
		slog.String("backend", inner.Backend()),
		slog.String("documents_prefix", cfg.DocumentsPrefix),
		slog.String("files_prefix", cfg.FilesPrefix),
	)
	return &Store{Resilient: objectstore.NewResilient(inner, exec), close: closeFn}, nil
}

// ResilienceConfig переводит параметры DS_RETRY_* и DS_BREAKER_*
// в конфигурацию executor-а.
func ResilienceConfig(cfg *config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.RetryAttempts
	rc.RetryInitialBackoff = cfg.RetryBackoff
	if ceiling := 10 * cfg.RetryBackoff; ceiling > rc.RetryMaxBackoff {
		rc.RetryMaxBackoff = ceiling
	}
	rc.BreakerMaxFailures = uint32(cfg.BreakerMaxFailures)
	rc.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	return rc
}
