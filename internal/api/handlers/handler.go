// handler.go — основной обработчик API docstore.
// Объединяет health, документы, файлы и статистику хранилища,
// регистрирует маршруты на chi-роутере.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/api/middleware"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/resilience"
	"github.com/bigkaa/docstore/internal/service"
)

// DocumentService — операции над документами, нужные обработчикам.
type DocumentService interface {
	Upload(ctx context.Context, in service.DocumentInput, content *service.Content) (*model.Document, error)
	Replace(ctx context.Context, id int64, in service.DocumentInput, content *service.Content) (*model.Document, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*service.DocumentDetails, error)
	Open(ctx context.Context, id int64) (*model.Document, io.ReadCloser, error)
	Search(ctx context.Context, term string, page, pageSize int) (*model.Page[*model.Document], error)
	NextCode(ctx context.Context) (string, error)
}

// FileService — операции над файлами, нужные обработчикам.
type FileService interface {
	Upload(ctx context.Context, in service.FileInput, content *service.Content) (*model.File, error)
	Replace(ctx context.Context, id int64, in service.FileInput, content *service.Content) (*model.File, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*service.FileDetails, error)
	Open(ctx context.Context, id int64) (*model.File, io.ReadCloser, error)
	Search(ctx context.Context, term string, page, pageSize int) (*model.Page[*model.File], error)
}

// UsageService — статистика хранилища.
type UsageService interface {
	Usage(ctx context.Context) (*model.StorageUsage, error)
	Invalidate()
}

// APIHandler — основной обработчик API docstore.
type APIHandler struct {
	health        *HealthHandler
	docs          DocumentService
	files         FileService
	usage         UsageService
	maxUploadSize int64
	openapi       http.Handler
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxUploadSize — лимит размера загружаемого файла в байтах.
func NewAPIHandler(
	health *HealthHandler,
	docs DocumentService,
	files FileService,
	usage UsageService,
	maxUploadSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		docs:          docs,
		files:         files,
		usage:         usage,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// WithOpenAPI подключает отдачу OpenAPI-описания по /api/v1/openapi.json.
func (h *APIHandler) WithOpenAPI(doc http.Handler) *APIHandler {
	h.openapi = doc
	return h
}

// Register регистрирует health и API маршруты.
// apiMiddlewares применяются к маршрутам /api/v1 (аутентификация, scopes),
// кроме openapi.json.
func (h *APIHandler) Register(r chi.Router, apiMiddlewares ...func(http.Handler) http.Handler) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		if h.openapi != nil {
			r.Method(http.MethodGet, "/openapi.json", h.openapi)
		}
		r.Group(func(r chi.Router) {
			r.Use(apiMiddlewares...)
			h.registerAPI(r)
		})
	})
}

// registerAPI регистрирует маршруты документов, файлов и статистики.
func (h *APIHandler) registerAPI(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.CreateDocument)
		r.Get("/", h.ListDocuments)
		r.Get("/search", h.SearchDocuments)
		r.Get("/generate-code", h.GenerateCode)
		r.Get("/{id}", h.GetDocument)
		r.Put("/{id}", h.UpdateDocument)
		r.Delete("/{id}", h.DeleteDocument)
		r.Get("/{id}/content", h.DownloadDocument)
	})

	r.Route("/files", func(r chi.Router) {
		r.Post("/", h.CreateFile)
		r.Get("/", h.ListFiles)
		r.Get("/search", h.SearchFiles)
		r.Get("/{id}", h.GetFile)
		r.Put("/{id}", h.UpdateFile)
		r.Delete("/{id}", h.DeleteFile)
		r.Get("/{id}/content", h.DownloadFile)
	})

	r.Get("/storage/usage", h.GetStorageUsage)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// pathID извлекает положительный числовой {id} из пути (style simple).
func pathID(r *http.Request) (int64, bool) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// paginationMessage — сообщение об ошибке параметров страницы.
var paginationMessage = fmt.Sprintf("Параметры page (1..%d) и pageSize должны быть положительными целыми числами", service.MaxPage)

// pagination читает page и pageSize из query (style form). Отсутствующие
// значения — 0, нормализация выполняется сервисом. Номер страницы
// ограничен service.MaxPage, чтобы смещение не переполнялось.
func pagination(r *http.Request) (page, pageSize int, ok bool) {
	q := r.URL.Query()
	var pageParam, sizeParam *int
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &pageParam); err != nil {
		return 0, 0, false
	}
	if err := runtime.BindQueryParameter("form", true, false, "pageSize", q, &sizeParam); err != nil {
		return 0, 0, false
	}
	if pageParam != nil {
		if *pageParam < 1 || *pageParam > service.MaxPage {
			return 0, 0, false
		}
		page = *pageParam
	}
	if sizeParam != nil {
		if *sizeParam < 1 {
			return 0, 0, false
		}
		pageSize = *sizeParam
	}
	return page, pageSize, true
}

// writeServiceError сопоставляет ошибку сервисного слоя с HTTP-ответом.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.Annotate(r.Context(), slog.String("error", err.Error()))
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make([]apierrors.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, apierrors.FieldError{Field: f.Field, Message: f.Message})
		}
		apierrors.ValidationFields(w, verr.Error(), fields)
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrDuplicateObject):
		apierrors.DuplicateObject(w, err.Error())
	case errors.Is(err, service.ErrDuplicateMetadata):
		apierrors.DuplicateMetadata(w, err.Error())
	case errors.Is(err, service.ErrMissingContent):
		apierrors.MissingContent(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrStorageWriteFailed),
		errors.Is(err, service.ErrStorageDeleteFailed),
		resilience.IsCircuitOpen(err):
		h.logger.Error("Ошибка объектного хранилища",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.StorageUnavailable(w, err.Error())
	case errors.Is(err, service.ErrSequencerContention):
		apierrors.SequencerContention(w, err.Error())
	case errors.Is(err, service.ErrExhaustedSequence):
		apierrors.SequenceExhausted(w, err.Error())
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, err.Error())
	}
}
