package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/objectstore"
)

// Метрики кэша статистики хранилища.
var (
	usageCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_usage_cache_hits_total",
		Help: "Количество попаданий в кэш статистики хранилища.",
	})
	usageCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_usage_cache_misses_total",
		Help: "Количество промахов кэша статистики хранилища.",
	})
)

const usageCacheKey = "usage"

// UsageService считает количество и суммарный размер объектов в пространствах
// документов и файлов. Результат кэшируется на ttl и не используется
// в проверках целостности.
type UsageService struct {
	store      objectstore.Store
	namespaces []string
	cache      *expirable.LRU[string, *model.StorageUsage]
	logger     *slog.Logger
}

// NewUsageService создаёт сервис статистики. ttl <= 0 отключает кэш.
func NewUsageService(store objectstore.Store, namespaces []string, ttl time.Duration, logger *slog.Logger) *UsageService {
	s := &UsageService{
		store:      store,
		namespaces: namespaces,
		logger:     logger.With(slog.String("component", "usage_service")),
	}
	if ttl > 0 {
		s.cache = expirable.NewLRU[string, *model.StorageUsage](1, nil, ttl)
	}
	return s
}

// Usage возвращает статистику хранилища.
func (s *UsageService) Usage(ctx context.Context) (*model.StorageUsage, error) {
	if s.cache != nil {
		if u, ok := s.cache.Get(usageCacheKey); ok {
			usageCacheHitsTotal.Inc()
			return u, nil
		}
		usageCacheMissesTotal.Inc()
	}

	u, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(usageCacheKey, u)
	}
	return u, nil
}

// Invalidate сбрасывает закэшированную статистику.
func (s *UsageService) Invalidate() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *UsageService) collect(ctx context.Context) (*model.StorageUsage, error) {
	u := &model.StorageUsage{Backend: s.store.Backend()}

	for _, ns := range s.namespaces {
		objects, err := s.store.List(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("ошибка перечисления объектов %s: %w", ns, err)
		}
		for _, obj := range objects {
			u.FileCount++
			u.UsedBytes += obj.Size
		}
	}

	if reporter, ok := s.store.(objectstore.CapacityReporter); ok {
		total, free, err := reporter.Capacity(ctx)
		switch {
		case err == nil:
			u.CapacityKnown = true
			u.TotalBytes = total
			u.FreeBytes = free
		case errors.Is(err, objectstore.ErrCapacityUnknown):
		default:
			s.logger.Warn("Не удалось получить ёмкость хранилища", slog.String("error", err.Error()))
		}
	}

	u.CollectedAt = time.Now().UTC()
	s.logger.Debug("Статистика хранилища собрана",
		slog.Int64("file_count", u.FileCount),
		slog.Int64("used_bytes", u.UsedBytes),
	)
	return u, nil
}
