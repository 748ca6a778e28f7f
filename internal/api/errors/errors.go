// Пакет errors — ответы с ошибками в едином формате docstore.
// Формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeMissingContent      = "MISSING_CONTENT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeDuplicateObject     = "DUPLICATE_OBJECT"
	CodeDuplicateMetadata   = "DUPLICATE_METADATA"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeSequencerContention = "SEQUENCER_CONTENTION"
	CodeSequenceExhausted   = "SEQUENCE_EXHAUSTED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// FieldError — нарушение для отдельного поля запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	write(w, statusCode, errorDetail{Code: code, Message: message})
}

func write(w http.ResponseWriter, statusCode int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// ValidationFields — 400 с перечнем нарушений по полям.
func ValidationFields(w http.ResponseWriter, message string, fields []FieldError) {
	write(w, http.StatusBadRequest, errorDetail{Code: CodeValidationError, Message: message, Fields: fields})
}

// NotFound — 404 запись не найдена.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// MissingContent — 404 запись есть, объект в хранилище отсутствует.
func MissingContent(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeMissingContent, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// DuplicateObject — 400 объект с таким ключом уже существует.
func DuplicateObject(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeDuplicateObject, message)
}

// DuplicateMetadata — 400 запись с такими же полями уже существует.
func DuplicateMetadata(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeDuplicateMetadata, message)
}

// PayloadTooLarge — 413 тело запроса превышает лимит.
func PayloadTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message)
}

// StorageUnavailable — 500 объектное хранилище недоступно.
func StorageUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeStorageUnavailable, message)
}

// SequencerContention — 503 не удалось выдать трекинг-код.
func SequencerContention(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeSequencerContention, message)
}

// SequenceExhausted — 503 трекинг-коды текущего дня исчерпаны.
func SequenceExhausted(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeSequenceExhausted, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
