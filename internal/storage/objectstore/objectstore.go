// Пакет objectstore — хранилище бинарного содержимого документов и файлов.
// Ключи объектов имеют вид "<пространство>/<имя>" и не зависят от бэкенда
// (SFTP, локальная ФС через go-billy, S3-совместимое хранилище).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotExist — объект с указанным ключом отсутствует.
var ErrNotExist = errors.New("объект не найден")

// ErrExist — под ключом уже есть объект; Put его не перезаписывает.
var ErrExist = errors.New("объект уже существует")

// ErrInvalidKey — ключ объекта пуст или выходит за корень хранилища.
var ErrInvalidKey = errors.New("недопустимый ключ объекта")

// ErrCapacityUnknown — бэкенд не сообщает ёмкость хранилища.
var ErrCapacityUnknown = errors.New("ёмкость хранилища неизвестна")

// tempPrefix — префикс имени временного объекта. Временные объекты
// создаются в той же директории, что и итоговый, и переименовываются
// после полной записи.
const tempPrefix = ".tmp-"

// maxNameLength — ограничение длины имени объекта после очистки.
const maxNameLength = 200

// ObjectInfo — сведения об объекте хранилища.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store — операции объектного хранилища.
// Реализации безопасны для конкурентного использования.
type Store interface {
	// Exists сообщает, существует ли объект.
	Exists(ctx context.Context, key string) (bool, error)
	// Put записывает содержимое под ключом и возвращает число записанных байт.
	// Частично записанный объект никогда не виден под итоговым ключом.
	// Существующий объект не перезаписывается: если ключ занят, в том числе
	// конкурентной записью, возвращается ErrExist. Успешный Put означает,
	// что объект под ключом создан именно этим вызовом.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	// Open открывает объект для чтения. Вызывающий код закрывает ReadCloser.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Size возвращает размер объекта.
	Size(ctx context.Context, key string) (int64, error)
	// Delete удаляет объект. Отсутствие объекта ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// List рекурсивно перечисляет объекты с ключами под prefix.
	// Временные объекты незавершённых записей не возвращаются.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Backend возвращает имя бэкенда (sftp, fs, s3).
	Backend() string
}

// CapacityReporter — опциональный интерфейс хранилища с известной ёмкостью.
type CapacityReporter interface {
	Capacity(ctx context.Context) (total, free int64, err error)
}

// SanitizeName приводит пользовательское имя файла к безопасному виду.
// Оставляет буквы, цифры, дефис, подчёркивание и точку; пробелы
// заменяются подчёркиванием. Возвращает пустую строку, если ничего не осталось.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r >= 0x0400 && r <= 0x04FF: // Кириллица
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	result := strings.TrimLeft(b.String(), ".")
	if len(result) > maxNameLength {
		ext := path.Ext(result)
		if len(ext) >= maxNameLength {
			ext = ""
		}
		result = strings.ToValidUTF8(result[:maxNameLength-len(ext)], "") + ext
	}
	return result
}

// CreateKey возвращает ключ нового объекта: "<namespace>/<имя>".
// Совпадение ключа с существующим объектом означает дубликат.
func CreateKey(namespace, name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("недопустимое имя файла %q", name)
	}
	return path.Join(namespace, clean), nil
}

// ReplaceKey возвращает ключ объекта, заменяющего существующий:
// "<namespace>/<unix-секунды>_<имя>".
func ReplaceKey(namespace, name string, now time.Time) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("недопустимое имя файла %q", name)
	}
	return path.Join(namespace, fmt.Sprintf("%d_%s", now.Unix(), clean)), nil
}

// tempKey возвращает ключ временного объекта рядом с итоговым.
func tempKey(key string) string {
	dir, base := path.Split(key)
	return dir + tempPrefix + uuid.NewString() + "-" + base
}

// isTempKey сообщает, что ключ принадлежит временному объекту.
func isTempKey(key string) bool {
	return strings.HasPrefix(path.Base(key), tempPrefix)
}

// validateKey отклоняет пустые ключи и ключи, выходящие за корень хранилища.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: пустой ключ", ErrInvalidKey)
	}
	clean := path.Clean("/" + key)
	if clean == "/" || strings.TrimPrefix(clean, "/") != strings.Trim(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
