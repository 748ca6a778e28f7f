// Пакет service — бизнес-логика docstore: выдача трекинг-кодов,
// загрузка, замена и удаление документов и файлов, поиск, статистика
// хранилища и сверка хранилища с метаданными.
package service

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки сервисного слоя. Обработчики HTTP сопоставляют их с кодами ответа.
var (
	// ErrValidation — входные данные не прошли проверку.
	ErrValidation = errors.New("ошибка валидации")
	// ErrDuplicateObject — объект с таким ключом уже есть в хранилище.
	ErrDuplicateObject = errors.New("объект с таким именем уже существует")
	// ErrDuplicateMetadata — запись с тем же набором полей уже существует.
	ErrDuplicateMetadata = errors.New("запись с такими же данными уже существует")
	// ErrStorageWriteFailed — не удалось записать объект в хранилище.
	ErrStorageWriteFailed = errors.New("ошибка записи в хранилище")
	// ErrStorageDeleteFailed — не удалось удалить объект из хранилища.
	ErrStorageDeleteFailed = errors.New("ошибка удаления из хранилища")
	// ErrMetadataWriteFailed — не удалось сохранить метаданные.
	ErrMetadataWriteFailed = errors.New("ошибка записи метаданных")
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrSequencerContention — трекинг-код не удалось выдать за отведённое число попыток.
	ErrSequencerContention = errors.New("конкуренция при выдаче трекинг-кода")
	// ErrExhaustedSequence — исчерпаны трекинг-коды за день.
	ErrExhaustedSequence = errors.New("исчерпаны трекинг-коды за день")
	// ErrMissingContent — запись есть, но объект в хранилище отсутствует.
	ErrMissingContent = errors.New("содержимое отсутствует в хранилище")
)

// FieldError — нарушение правила для одного поля.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError — список нарушений входных данных.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "ошибка валидации: " + strings.Join(parts, "; ")
}

// Unwrap позволяет errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }

// validator собирает нарушения по полям.
type validator struct {
	fields []FieldError
}

func (v *validator) add(field, format string, args ...any) {
	v.fields = append(v.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// err возвращает *ValidationError или nil, если нарушений нет.
func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
