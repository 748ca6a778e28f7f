// logging.go — идентификатор запроса и журнал доступа к API docstore.
// Запись журнала дополняется полями, известными только ниже по цепочке:
// субъект JWT, трекинг-код созданного документа, ключ объекта, ошибка сервиса.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RequestIDHeader — заголовок с идентификатором запроса.
const RequestIDHeader = "X-Request-ID"

// ContextKeyRequestID — ключ идентификатора запроса в контексте.
const ContextKeyRequestID contextKey = "request_id"

const contextKeyAccessEntry contextKey = "access_entry"

// statusRecorder запоминает статус и объём ответа для журнала и метрик.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (Flush при потоковой выдаче содержимого).
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// RequestID берёт идентификатор из X-Request-ID (не длиннее 128 символов)
// или генерирует UUID, возвращает его в ответе и кладёт в контекст.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := context.WithValue(r.Context(), ContextKeyRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext извлекает идентификатор запроса из контекста.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}

// accessEntry — поля записи журнала, добавленные обработчиками запроса.
type accessEntry struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// Annotate добавляет поля к записи журнала доступа текущего запроса,
// например трекинг-код выданного документа. Без RequestLogger ничего не делает.
func Annotate(ctx context.Context, attrs ...slog.Attr) {
	entry, ok := ctx.Value(contextKeyAccessEntry).(*accessEntry)
	if !ok {
		return
	}
	entry.mu.Lock()
	entry.attrs = append(entry.attrs, attrs...)
	entry.mu.Unlock()
}

// RequestLogger пишет по одной записи на запрос к docstore: маршрут chi
// (с шаблоном {id}) и id записи, статус, длительность, объём загрузки и
// ответа, а также поля из Annotate. 5xx — ERROR, 4xx — WARN.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessEntry{}
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), contextKeyAccessEntry, entry)))

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", route(r)),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if id := chi.URLParam(r, "id"); id != "" {
				attrs = append(attrs, slog.String("record_id", id))
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, slog.Int64("upload_bytes", r.ContentLength))
			}
			entry.mu.Lock()
			attrs = append(attrs, entry.attrs...)
			entry.mu.Unlock()

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// route возвращает шаблон маршрута chi после обработки запроса.
// Для запросов мимо маршрутов — путь с числовыми сегментами, заменёнными на {id}.
func route(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}
