package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/storage/objectstore"
)

// Ограничения входных данных.
const (
	// maxFieldLength — максимальная длина текстового поля в символах
	maxFieldLength = 255
	// DefaultPageSize — размер страницы по умолчанию
	DefaultPageSize = 20
	// MaxPageSize — максимальный размер страницы
	MaxPageSize = 100
	// MaxPage — максимальный номер страницы; смещение (MaxPage-1)*MaxPageSize
	// укладывается в int32 на любой платформе и в любой СУБД
	MaxPage = math.MaxInt32 / MaxPageSize
	// compensationTimeout — время на откат записи объекта
	compensationTimeout = 30 * time.Second
)

// allowedFileExtensions — допустимые расширения загружаемых файлов.
var allowedFileExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".pdf": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
}

// Content — загружаемое содержимое.
type Content struct {
	// Name — имя файла, указанное клиентом
	Name string
	// ContentType — MIME-тип; пусто — определяется по расширению
	ContentType string
	// Size — заявленный размер в байтах
	Size int64
	// Reader — поток данных. Если поддерживает io.Seeker, запись может повторяться.
	Reader io.Reader
}

// mimeType возвращает MIME-тип содержимого.
func (c *Content) mimeType() string {
	if c.ContentType != "" {
		return c.ContentType
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(c.Name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

// checkContent проверяет имя и размер содержимого.
// restrictExt включает проверку допустимых расширений.
func checkContent(v *validator, c *Content, maxSize int64, restrictExt bool) {
	if objectstore.SanitizeName(c.Name) == "" {
		v.add("file", "недопустимое имя файла")
		return
	}
	if c.Size > maxSize {
		v.add("file", "размер %d байт превышает максимум %d байт", c.Size, maxSize)
	}
	if restrictExt && !allowedFileExtensions[strings.ToLower(path.Ext(c.Name))] {
		v.add("file", "недопустимое расширение файла %q", path.Ext(c.Name))
	}
}

// checkText проверяет обязательное текстовое поле.
func checkText(v *validator, field, value string) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		v.add(field, "обязательное поле")
	case utf8.RuneCountInString(value) > maxFieldLength:
		v.add(field, "длина превышает %d символов", maxFieldLength)
	}
	return value
}

// checkDate разбирает обязательную дату в формате YYYY-MM-DD.
func checkDate(v *validator, field, value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		v.add(field, "обязательное поле")
		return time.Time{}
	}
	d, err := time.Parse(model.DateLayout, value)
	if err != nil {
		v.add(field, "ожидается дата в формате YYYY-MM-DD")
		return time.Time{}
	}
	return d
}

// normalizePage приводит номер и размер страницы к допустимым значениям
// и возвращает limit/offset.
func normalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

// detach отвязывает операцию записи от отмены клиентского запроса
// и ограничивает её длительность timeout.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// insertFailure оборачивает ошибку вставки/обновления метаданных в ошибку
// сервисного слоя. Ошибки выдачи кода сохраняются как есть.
func insertFailure(err error) error {
	switch {
	case errors.Is(err, ErrSequencerContention), errors.Is(err, ErrExhaustedSequence):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrObjectConflict):
		return fmt.Errorf("%w: %v", ErrDuplicateObject, err)
	default:
		return fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}
}

// putFailure оборачивает ошибку записи объекта. Занятый ключ означает, что
// объект с тем же именем опубликован раньше (в том числе конкурентной
// загрузкой): это дубликат, а не сбой хранилища, и откатывать нечего.
func putFailure(err error) error {
	if errors.Is(err, objectstore.ErrExist) {
		return fmt.Errorf("%w: %v", ErrDuplicateObject, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
}

// compensate удаляет объект, созданный этой же операцией (успешный Put),
// после неудачной записи метаданных. Ошибка удаления логируется и присоединяется к cause.
// Откат выполняется и после истечения таймаута исходной операции.
func compensate(ctx context.Context, store objectstore.Store, key string, cause error, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := store.Delete(ctx, key); err != nil {
		logger.Error("Не удалось удалить объект после ошибки записи метаданных",
			slog.String("key", key),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return errors.Join(cause, fmt.Errorf("откат записи объекта %s: %w", key, err))
	}
	logger.Warn("Объект удалён после ошибки записи метаданных",
		slog.String("key", key),
		slog.String("cause", cause.Error()),
	)
	return cause
}

// contentState проверяет наличие объекта для read-путей. Ошибка хранилища
// не делает запись недоступной: она логируется, объект считается присутствующим.
func contentState(ctx context.Context, store objectstore.Store, key string, logger *slog.Logger) (missing bool) {
	if key == "" {
		return false
	}
	exists, err := store.Exists(ctx, key)
	if err != nil {
		logger.Warn("Не удалось проверить наличие объекта",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return !exists
}

// openContent открывает объект; отсутствие объекта — ErrMissingContent.
func openContent(ctx context.Context, store objectstore.Store, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: файл не прикреплён", ErrMissingContent)
	}
	rc, err := store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingContent, key)
		}
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", key, err)
	}
	return rc, nil
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
