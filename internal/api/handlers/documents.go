// documents.go — HTTP handlers документов: загрузка, чтение, замена,
// удаление, поиск и выдача трекинг-кода.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/api/middleware"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/service"
)

func documentInput(r *http.Request) service.DocumentInput {
	return service.DocumentInput{
		Title:        r.FormValue("title"),
		Subject:      r.FormValue("subject"),
		Status:       r.FormValue("status"),
		DateUploaded: r.FormValue("dateUploaded"),
		Deadline:     r.FormValue("deadline"),
	}
}

// CreateDocument обрабатывает POST /api/v1/documents.
// Multipart form: title, subject, status, dateUploaded, deadline, file (опционально).
func (h *APIHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if !h.readForm(w, r) {
		return
	}
	defer cleanupForm(r)

	content, closeContent, err := formContent(r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректное поле 'file': "+err.Error())
		return
	}
	defer closeContent()

	d, err := h.docs.Upload(r.Context(), documentInput(r), content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if content != nil {
		h.usage.Invalidate()
	}
	middleware.Annotate(r.Context(),
		slog.String("tracking_number", d.TrackingNumber),
		slog.String("object_key", d.ObjectPath),
	)
	writeJSON(w, http.StatusCreated, toDocumentResponse(d, false))
}

// ListDocuments обрабатывает GET /api/v1/documents (сокращённые записи).
func (h *APIHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	page, pageSize, ok := pagination(r)
	if !ok {
		apierrors.ValidationError(w, paginationMessage)
		return
	}
	p, err := h.docs.Search(r.Context(), "", page, pageSize)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(p, toDocumentSummary))
}

// SearchDocuments обрабатывает GET /api/v1/documents/search?search=term.
func (h *APIHandler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	page, pageSize, ok := pagination(r)
	if !ok {
		apierrors.ValidationError(w, paginationMessage)
		return
	}
	p, err := h.docs.Search(r.Context(), r.URL.Query().Get("search"), page, pageSize)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(p, func(d *model.Document) documentResponse {
		return toDocumentResponse(d, false)
	}))
}

// GenerateCode обрабатывает GET /api/v1/documents/generate-code.
// Код не резервируется.
func (h *APIHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.docs.NextCode(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackingCodeResponse{TrackingNumber: code})
}

// GetDocument обрабатывает GET /api/v1/documents/{id}.
func (h *APIHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор документа")
		return
	}
	details, err := h.docs.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(details.Document, details.MissingContent))
}

// UpdateDocument обрабатывает PUT /api/v1/documents/{id}.
// Поля обязательны, file опционален: если передан, объект заменяется.
func (h *APIHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор документа")
		return
	}
	if !h.readForm(w, r) {
		return
	}
	defer cleanupForm(r)

	content, closeContent, err := formContent(r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректное поле 'file': "+err.Error())
		return
	}
	defer closeContent()

	d, err := h.docs.Replace(r.Context(), id, documentInput(r), content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if content != nil {
		h.usage.Invalidate()
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(d, false))
}

// DeleteDocument обрабатывает DELETE /api/v1/documents/{id}.
func (h *APIHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор документа")
		return
	}
	if err := h.docs.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.usage.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// DownloadDocument обрабатывает GET /api/v1/documents/{id}/content.
func (h *APIHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор документа")
		return
	}
	d, rc, err := h.docs.Open(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.streamContent(w, r, rc, d.StoredName, d.ContentType, d.Size)
}
