// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Зависимости:
//   - PostgreSQL — SQL checker через существующий pgxpool (pool mode, critical)
//   - JWKS endpoint — HTTP checker, если включена проверка JWT (critical)
//
// Метрики app_dependency_* публикуются на /metrics вместе с остальными.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для JWKS
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigkaa/docstore/internal/config"
)

// DephealthService — мониторинг зависимостей docstore.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга. pgDB — *sql.DB поверх
// pgxpool (stdlib.OpenDBFromPool); nil отключает проверку PostgreSQL.
// Возвращает nil, если отслеживать нечего.
func NewDephealthService(cfg *config.Config, pgDB *sql.DB, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, pgDB, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg *config.Config, pgDB *sql.DB, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, pgDB, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg *config.Config, pgDB *sql.DB, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{dephealth.WithLogger(logger)}
	deps := 0

	if pgDB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(pgDB)),
			dephealth.FromURL(postgresURL(cfg)),
			dephealth.CheckInterval(cfg.DephealthCheckInterval),
			dephealth.Critical(true),
		))
		deps++
	}

	if cfg.JWTJWKSURL != "" {
		healthPath := "/health"
		if parsed, err := url.Parse(cfg.JWTJWKSURL); err == nil && parsed.Path != "" {
			healthPath = parsed.Path
		}
		opts = append(opts, dephealth.HTTP("jwks",
			dephealth.FromURL(cfg.JWTJWKSURL),
			dephealth.WithHTTPHealthPath(healthPath),
			dephealth.CheckInterval(cfg.DephealthCheckInterval),
			dephealth.Critical(true),
		))
		deps++
	}

	if deps == 0 {
		return nil, nil
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New("docstore", "docstore", opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации dephealth: %w", err)
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// postgresURL — URL PostgreSQL для лейблов метрик (без учётных данных).
func postgresURL(cfg *config.Config) string {
	return fmt.Sprintf("postgres://%s/%s", net.JoinHostPort(cfg.DBHost, strconv.Itoa(cfg.DBPort)), cfg.DBName)
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	if ds == nil {
		return nil
	}
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	if ds == nil {
		return
	}
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает состояние зависимостей: имя → true, если ok.
func (ds *DephealthService) Health() map[string]bool {
	if ds == nil {
		return map[string]bool{}
	}
	return ds.dh.Health()
}
