// reconcile.go — сверка объектного хранилища с метаданными.
//
// Обнаруживает:
//   - orphan_object: объект в пространстве документов/файлов без записи в БД
//     (след прерванной загрузки или неудачного отката)
//   - missing_content: запись ссылается на объект, которого нет в хранилище
//
// В режиме fix удаляет объекты-сироты старше grace period. Записи
// с отсутствующим содержимым только отражаются в отчёте.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/storage/objectstore"
)

// Метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_reconcile_runs_total",
		Help: "Общее количество запусков сверки хранилища",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_reconcile_issues_total",
		Help: "Количество проблем, обнаруженных сверкой, по типу",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ds_reconcile_duration_seconds",
		Help:    "Длительность сверки хранилища в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// reconcileBatch — размер страницы при чтении записей.
const reconcileBatch = 500

// MissingContent — запись, объект которой отсутствует.
type MissingContent struct {
	// Kind — "document" или "file"
	Kind string
	ID   int64
	Key  string
}

// ReconcileReport — результат сверки.
type ReconcileReport struct {
	StartedAt time.Time
	Duration  time.Duration
	// ObjectsScanned — количество просмотренных объектов
	ObjectsScanned int
	// RecordsScanned — количество просмотренных записей
	RecordsScanned int
	// Orphans — объекты без записей
	Orphans []objectstore.ObjectInfo
	// Missing — записи без объектов
	Missing []MissingContent
	// Deleted — ключи удалённых объектов-сирот (только в режиме fix)
	Deleted []string
}

// ReconcileService — сверка хранилища с таблицами documents и files.
type ReconcileService struct {
	store       objectstore.Store
	docs        repository.DocumentRepository
	files       repository.FileRepository
	docsPrefix  string
	filesPrefix string
	grace       time.Duration
	logger      *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	store objectstore.Store,
	docs repository.DocumentRepository,
	files repository.FileRepository,
	docsPrefix, filesPrefix string,
	grace time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:       store,
		docs:        docs,
		files:       files,
		docsPrefix:  docsPrefix,
		filesPrefix: filesPrefix,
		grace:       grace,
		logger:      logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает периодическую сверку с удалением сирот.
func (rs *ReconcileService) Start(ctx context.Context, interval time.Duration) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-rsCtx.Done():
				return
			case <-ticker.C:
				if _, _, err := rs.RunOnce(rsCtx, true); err != nil {
					rs.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
				}
			}
		}
	}()

	rs.logger.Info("Фоновая сверка запущена", slog.String("interval", interval.String()))
}

// Stop останавливает фоновую сверку.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Фоновая сверка остановлена")
}

// RunOnce выполняет одну сверку. Если сверка уже идёт, возвращает nil, true.
func (rs *ReconcileService) RunOnce(ctx context.Context, fix bool) (*ReconcileReport, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	reconcileRunsTotal.Inc()
	report := &ReconcileReport{StartedAt: time.Now().UTC()}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		reconcileDurationSeconds.Observe(report.Duration.Seconds())
	}()

	known, err := rs.collectKeys(ctx, report)
	if err != nil {
		return nil, false, err
	}

	present := make(map[string]bool)
	for _, prefix := range []string{rs.docsPrefix, rs.filesPrefix} {
		objects, err := rs.store.List(ctx, prefix)
		if err != nil {
			return nil, false, fmt.Errorf("ошибка перечисления объектов %s: %w", prefix, err)
		}
		for _, obj := range objects {
			report.ObjectsScanned++
			present[obj.Key] = true
			if _, ok := known[obj.Key]; !ok {
				report.Orphans = append(report.Orphans, obj)
			}
		}
	}

	for key, rec := range known {
		if !present[key] {
			report.Missing = append(report.Missing, MissingContent{Kind: rec.kind, ID: rec.id, Key: key})
		}
	}

	reconcileIssuesTotal.WithLabelValues("orphan_object").Add(float64(len(report.Orphans)))
	reconcileIssuesTotal.WithLabelValues("missing_content").Add(float64(len(report.Missing)))

	if fix {
		rs.removeOrphans(ctx, report)
	}

	rs.logger.Info("Сверка завершена",
		slog.Int("objects", report.ObjectsScanned),
		slog.Int("records", report.RecordsScanned),
		slog.Int("orphans", len(report.Orphans)),
		slog.Int("missing", len(report.Missing)),
		slog.Int("deleted", len(report.Deleted)),
	)
	return report, false, nil
}

type recordRef struct {
	kind string
	id   int64
}

// collectKeys читает все ключи объектов из documents и files постранично.
func (rs *ReconcileService) collectKeys(ctx context.Context, report *ReconcileReport) (map[string]recordRef, error) {
	known := make(map[string]recordRef)

	for offset := 0; ; offset += reconcileBatch {
		docs, _, err := rs.docs.Search(ctx, "", reconcileBatch, offset)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения документов: %w", err)
		}
		for _, d := range docs {
			report.RecordsScanned++
			if d.ObjectPath != "" {
				known[d.ObjectPath] = recordRef{kind: "document", id: d.ID}
			}
		}
		if len(docs) < reconcileBatch {
			break
		}
	}

	for offset := 0; ; offset += reconcileBatch {
		files, _, err := rs.files.Search(ctx, "", reconcileBatch, offset)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения файлов: %w", err)
		}
		for _, f := range files {
			report.RecordsScanned++
			if f.FilePath != "" {
				known[f.FilePath] = recordRef{kind: "file", id: f.ID}
			}
		}
		if len(files) < reconcileBatch {
			break
		}
	}

	return known, nil
}

// removeOrphans удаляет объекты-сироты старше grace period. Более свежие
// объекты могут принадлежать загрузке, запись которой ещё не вставлена.
func (rs *ReconcileService) removeOrphans(ctx context.Context, report *ReconcileReport) {
	cutoff := time.Now().Add(-rs.grace)
	for _, obj := range report.Orphans {
		if obj.ModTime.After(cutoff) {
			continue
		}
		if err := rs.store.Delete(ctx, obj.Key); err != nil {
			rs.logger.Error("Не удалось удалить объект-сироту",
				slog.String("key", obj.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Deleted = append(report.Deleted, obj.Key)
		rs.logger.Info("Удалён объект-сирота", slog.String("key", obj.Key), slog.Int64("size", obj.Size))
	}
}
