package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/service"
)

const (
	// multipartMemory — часть формы, хранимая в памяти; остальное во временных файлах
	multipartMemory = 8 << 20
	// formOverhead — запас на поля и заголовки multipart сверх лимита файла
	formOverhead = 1 << 20
)

// readForm разбирает multipart-форму, ограничивая размер тела запроса.
// При ошибке ответ уже записан и возвращается false.
func (h *APIHandler) readForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер запроса превышает %d байт", tooLarge.Limit))
			return false
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка разбора multipart: %s", err.Error()))
		return false
	}
	return true
}

// cleanupForm удаляет временные файлы multipart-формы.
func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// formContent возвращает файл из поля "file" или nil, если поле не передано.
// Вызывающий код закрывает Reader через возвращённую функцию.
func formContent(r *http.Request) (*service.Content, func(), error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		// Тип будет определён по расширению
		contentType = ""
	}
	return &service.Content{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Reader:      file,
	}, func() { _ = file.Close() }, nil
}

// streamContent отдаёт объект клиенту как вложение.
func (h *APIHandler) streamContent(w http.ResponseWriter, r *http.Request, rc io.ReadCloser, name, contentType string, size int64) {
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Передача содержимого прервана",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
