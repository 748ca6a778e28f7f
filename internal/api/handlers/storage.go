package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
)

// GetStorageUsage обрабатывает GET /api/v1/storage/usage.
func (h *APIHandler) GetStorageUsage(w http.ResponseWriter, r *http.Request) {
	u, err := h.usage.Usage(r.Context())
	if err != nil {
		h.logger.Error("Не удалось получить статистику хранилища", slog.String("error", err.Error()))
		apierrors.StorageUnavailable(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toUsageResponse(u))
}
