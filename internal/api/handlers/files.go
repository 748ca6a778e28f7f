// files.go — HTTP handlers файлов. Файлы не имеют трекинг-кода,
// содержимое обязательно при создании.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/api/middleware"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/service"
)

func fileInput(r *http.Request) service.FileInput {
	return service.FileInput{
		Uploader: r.FormValue("uploader"),
		Category: r.FormValue("category"),
		Date:     r.FormValue("date"),
	}
}

func fileWithoutDetails(f *model.File) fileResponse {
	return toFileResponse(f, false)
}

// CreateFile обрабатывает POST /api/v1/files.
// Multipart form: file (обязательно), uploader, category, date.
func (h *APIHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
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

	f, err := h.files.Upload(r.Context(), fileInput(r), content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.usage.Invalidate()
	middleware.Annotate(r.Context(), slog.String("object_key", f.FilePath))
	writeJSON(w, http.StatusCreated, fileWithoutDetails(f))
}

// ListFiles обрабатывает GET /api/v1/files.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	h.searchFiles(w, r, "")
}

// SearchFiles обрабатывает GET /api/v1/files/search?search=term.
func (h *APIHandler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	h.searchFiles(w, r, r.URL.Query().Get("search"))
}

func (h *APIHandler) searchFiles(w http.ResponseWriter, r *http.Request, term string) {
	page, pageSize, ok := pagination(r)
	if !ok {
		apierrors.ValidationError(w, paginationMessage)
		return
	}
	p, err := h.files.Search(r.Context(), term, page, pageSize)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(p, fileWithoutDetails))
}

// GetFile обрабатывает GET /api/v1/files/{id}.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор файла")
		return
	}
	details, err := h.files.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(details.File, details.MissingContent))
}

// UpdateFile обрабатывает PUT /api/v1/files/{id}.
func (h *APIHandler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор файла")
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

	f, err := h.files.Replace(r.Context(), id, fileInput(r), content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if content != nil {
		h.usage.Invalidate()
	}
	writeJSON(w, http.StatusOK, fileWithoutDetails(f))
}

// DeleteFile обрабатывает DELETE /api/v1/files/{id}.
func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор файла")
		return
	}
	if err := h.files.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.usage.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// DownloadFile обрабатывает GET /api/v1/files/{id}/content.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор файла")
		return
	}
	f, rc, err := h.files.Open(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.streamContent(w, r, rc, f.Filename, f.ContentType, f.Size)
}
