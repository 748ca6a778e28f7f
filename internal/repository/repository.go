// Пакет repository — слой доступа к метаданным документов и файлов.
// Две реализации: PostgreSQL (pgx) и MySQL (database/sql).
// Все запросы — чистый SQL, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrObjectConflict — ключ объекта уже принадлежит другой записи.
	// Отличается от ErrConflict: выдача трекинг-кода на нём не повторяется.
	ErrObjectConflict = errors.New("объект уже принадлежит другой записи")
)

// Имена ограничений уникальности на ключ объекта.
const (
	documentsObjectPathKey = "documents_object_path_key"
	filesFilepathKey       = "files_filepath_key"
)

// DocumentRepository — интерфейс CRUD для таблицы documents.
type DocumentRepository interface {
	// Create вставляет документ; заполняет ID, CreatedAt, UpdatedAt.
	// Нарушение уникальности tracking_number — ErrConflict,
	// непустого object_path — ErrObjectConflict.
	Create(ctx context.Context, d *model.Document) error
	// GetByID возвращает документ по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.Document, error)
	// Search ищет подстроку term (без учёта регистра) в текстовых полях.
	// Пустой term — все записи. Порядок — по id.
	Search(ctx context.Context, term string, limit, offset int) ([]*model.Document, int, error)
	// Update обновляет все изменяемые поля (кроме tracking_number).
	// Занятый другой записью object_path — ErrObjectConflict.
	Update(ctx context.Context, d *model.Document) error
	// Delete удаляет запись.
	Delete(ctx context.Context, id int64) error
	// LastTrackingNumber возвращает лексикографически наибольший код
	// с префиксом prefix или пустую строку.
	LastTrackingNumber(ctx context.Context, prefix string) (string, error)
	// ExistsDuplicate проверяет наличие записи с тем же набором полей.
	ExistsDuplicate(ctx context.Context, d *model.Document) (bool, error)
}

// FileRepository — интерфейс CRUD для таблицы files.
type FileRepository interface {
	// Create вставляет файл; заполняет ID, CreatedAt, UpdatedAt.
	// Занятый filepath — ErrObjectConflict.
	Create(ctx context.Context, f *model.File) error
	// GetByID возвращает файл по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.File, error)
	// Search ищет подстроку term в filename, uploader, category.
	Search(ctx context.Context, term string, limit, offset int) ([]*model.File, int, error)
	// Update обновляет все изменяемые поля.
	Update(ctx context.Context, f *model.File) error
	// Delete удаляет запись.
	Delete(ctx context.Context, id int64) error
	// ExistsDuplicate проверяет наличие записи с тем же набором полей.
	ExistsDuplicate(ctx context.Context, f *model.File) (bool, error)
}

// DBTX — интерфейс для выполнения SQL-запросов через pgx.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scanner — общий интерфейс pgx.Row, pgx.Rows, *sql.Row и *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// documentColumns — столбцы таблицы documents для SELECT-запросов.
const documentColumns = `id, tracking_number, stored_name, title, subject, status,
	date_uploaded, deadline, object_path, size, content_type, created_at, updated_at`

// fileColumns — столбцы таблицы files для SELECT-запросов.
const fileColumns = `id, filename, uploader, category, date, filepath,
	size, content_type, created_at, updated_at`

func scanDocument(row scanner) (*model.Document, error) {
	d := &model.Document{}
	err := row.Scan(
		&d.ID, &d.TrackingNumber, &d.StoredName, &d.Title, &d.Subject, &d.Status,
		&d.DateUploaded, &d.Deadline, &d.ObjectPath, &d.Size, &d.ContentType,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanFile(row scanner) (*model.File, error) {
	f := &model.File{}
	err := row.Scan(
		&f.ID, &f.Filename, &f.Uploader, &f.Category, &f.Date, &f.FilePath,
		&f.Size, &f.ContentType, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// likePattern превращает term в шаблон LIKE для поиска подстроки.
// Символы %, _ и \ экранируются обратной косой чертой.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// uniqueViolation сообщает, является ли ошибка нарушением уникальности
// PostgreSQL, и возвращает имя нарушенного ограничения (или индекса).
func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return pgErr.ConstraintName, true
	}
	return "", false
}

// documentConflict сопоставляет нарушенное ограничение таблицы documents
// с ошибкой репозитория.
func documentConflict(constraint string, d *model.Document) error {
	if strings.Contains(constraint, documentsObjectPathKey) {
		return fmt.Errorf("%w: %s", ErrObjectConflict, d.ObjectPath)
	}
	return fmt.Errorf("%w: трекинг-код %s уже занят", ErrConflict, d.TrackingNumber)
}

// fileConflict — единственное ограничение уникальности files относится к filepath.
func fileConflict(f *model.File) error {
	return fmt.Errorf("%w: %s (%s)", ErrObjectConflict, f.FilePath, filesFilepathKey)
}
