package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/docstore/internal/resilience"
)

// Метрики операций с хранилищем
var (
	// storeOpsTotal — количество операций по бэкенду, типу и результату.
	storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_objectstore_operations_total",
			Help: "Общее количество операций с объектным хранилищем",
		},
		[]string{"backend", "operation", "result"},
	)

	// storeOpDuration — длительность операций с хранилищем.
	storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ds_objectstore_operation_duration_seconds",
			Help:    "Длительность операций с объектным хранилищем в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

// Resilient — обёртка над Store с повторами, circuit breaker и метриками.
type Resilient struct {
	inner Store
	exec  *resilience.Executor
}

// NewResilient оборачивает хранилище inner.
func NewResilient(inner Store, exec *resilience.Executor) *Resilient {
	return &Resilient{inner: inner, exec: exec}
}

// Backend возвращает имя обёрнутого бэкенда.
func (r *Resilient) Backend() string { return r.inner.Backend() }

// Unwrap возвращает обёрнутое хранилище.
func (r *Resilient) Unwrap() Store { return r.inner }

// classify: отсутствие или занятость объекта, неверный ключ и отмена
// контекста не считаются сбоем хранилища и не повторяются.
func classify(err error) resilience.Classification {
	switch {
	case errors.Is(err, ErrNotExist), errors.Is(err, ErrExist),
		errors.Is(err, ErrInvalidKey), errors.Is(err, ErrCapacityUnknown):
		return resilience.Classification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.Classification{}
	default:
		return resilience.Classification{Retryable: true, RecordFailure: true}
	}
}

func (r *Resilient) run(ctx context.Context, op string, retry bool, fn func(context.Context) error) error {
	start := time.Now()
	err := r.exec.Execute(ctx, r.inner.Backend()+"."+op, retry, fn, classify)

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotExist):
		result = "not_found"
	case errors.Is(err, ErrExist):
		result = "exists"
	case resilience.IsCircuitOpen(err):
		result = "circuit_open"
		err = fmt.Errorf("хранилище %s недоступно: %w", r.inner.Backend(), err)
	default:
		result = "error"
	}
	storeOpsTotal.WithLabelValues(r.inner.Backend(), op, result).Inc()
	storeOpDuration.WithLabelValues(r.inner.Backend(), op).Observe(time.Since(start).Seconds())
	return err
}

// Exists сообщает, существует ли объект.
func (r *Resilient) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.run(ctx, "exists", true, func(ctx context.Context) error {
		var err error
		exists, err = r.inner.Exists(ctx, key)
		return err
	})
	return exists, err
}

// Put записывает объект. Повтор возможен, только если поток поддерживает
// io.Seeker (например, multipart.File): перед повтором он перематывается.
func (r *Resilient) Put(ctx context.Context, key string, src io.Reader) (int64, error) {
	seeker, seekable := src.(io.Seeker)
	var start int64
	if seekable {
		var err error
		if start, err = seeker.Seek(0, io.SeekCurrent); err != nil {
			seekable = false
		}
	}

	var size int64
	attempt := 0
	err := r.run(ctx, "put", seekable, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if _, err := seeker.Seek(start, io.SeekStart); err != nil {
				return fmt.Errorf("ошибка перемотки потока: %w", err)
			}
		}
		var err error
		size, err = r.inner.Put(ctx, key, src)
		return err
	})
	return size, err
}

// Open открывает объект для чтения.
func (r *Resilient) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.run(ctx, "open", true, func(ctx context.Context) error {
		var err error
		rc, err = r.inner.Open(ctx, key)
		return err
	})
	return rc, err
}

// Size возвращает размер объекта.
func (r *Resilient) Size(ctx context.Context, key string) (int64, error) {
	var size int64
	err := r.run(ctx, "size", true, func(ctx context.Context) error {
		var err error
		size, err = r.inner.Size(ctx, key)
		return err
	})
	return size, err
}

// Delete удаляет объект.
func (r *Resilient) Delete(ctx context.Context, key string) error {
	return r.run(ctx, "delete", true, func(ctx context.Context) error {
		return r.inner.Delete(ctx, key)
	})
}

// List перечисляет объекты под prefix.
func (r *Resilient) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := r.run(ctx, "list", true, func(ctx context.Context) error {
		var err error
		objects, err = r.inner.List(ctx, prefix)
		return err
	})
	return objects, err
}

// Capacity возвращает ёмкость, если обёрнутый бэкенд её сообщает.
func (r *Resilient) Capacity(ctx context.Context) (int64, int64, error) {
	reporter, ok := r.inner.(CapacityReporter)
	if !ok {
		return 0, 0, ErrCapacityUnknown
	}
	var total, free int64
	err := r.run(ctx, "capacity", true, func(ctx context.Context) error {
		var err error
		total, free, err = reporter.Capacity(ctx)
		return err
	})
	return total, free, err
}
