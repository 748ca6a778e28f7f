// mysql.go — реализация репозиториев поверх database/sql и go-sql-driver/mysql.
// Используется при DS_DB_DRIVER=mysql; семантика совпадает с PostgreSQL-версией.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// mysqlDuplicateEntry — код ошибки MySQL ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// SQLDBTX — интерфейс для выполнения запросов через database/sql.
// Реализуется как *sql.DB, так и *sql.Tx.
type SQLDBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// duplicateEntry сообщает, является ли ошибка нарушением уникальности MySQL.
// Текст ошибки содержит имя ключа: "Duplicate entry '...' for key '...'".
func duplicateEntry(err error) (message string, ok bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return myErr.Message, true
	}
	return "", false
}

// mysqlNow возвращает текущее время с точностью DATETIME(6).
func mysqlNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// mysqlDate форматирует календарную дату для столбца DATE.
func mysqlDate(t time.Time) string {
	return t.Format(model.DateLayout)
}

// mysqlSearchWhere строит WHERE для поиска подстроки без учёта регистра
// по перечисленным столбцам; шаблон повторяется для каждого столбца.
func mysqlSearchWhere(term string, columns ...string) (string, []any) {
	if term == "" {
		return "", nil
	}
	pattern := likePattern(term)
	conditions := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		conditions = append(conditions, fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", c))
		args = append(args, pattern)
	}
	return "WHERE " + strings.Join(conditions, " OR "), args
}

// --- Документы ---

// mysqlDocumentRepo — реализация DocumentRepository для MySQL.
type mysqlDocumentRepo struct {
	db SQLDBTX
}

// NewMySQLDocumentRepository создаёт репозиторий документов MySQL.
func NewMySQLDocumentRepository(db SQLDBTX) DocumentRepository {
	return &mysqlDocumentRepo{db: db}
}

func (r *mysqlDocumentRepo) Create(ctx context.Context, d *model.Document) error {
	query := `
		INSERT INTO documents (tracking_number, stored_name, title, subject, status,
			date_uploaded, deadline, object_path, size, content_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := mysqlNow()
	res, err := r.db.ExecContext(ctx, query,
		d.TrackingNumber, d.StoredName, d.Title, d.Subject, d.Status,
		mysqlDate(d.DateUploaded), mysqlDate(d.Deadline), d.ObjectPath, d.Size, d.ContentType,
		now, now,
	)
	if err != nil {
		if message, ok := duplicateEntry(err); ok {
			return documentConflict(message, d)
		}
		return fmt.Errorf("ошибка создания документа: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ошибка получения id документа: %w", err)
	}
	d.ID = id
	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

func (r *mysqlDocumentRepo) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = ?`, documentColumns)

	d, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	return d, nil
}

func (r *mysqlDocumentRepo) Search(ctx context.Context, term string, limit, offset int) ([]*model.Document, int, error) {
	where, args := mysqlSearchWhere(term, "tracking_number", "title", "subject", "status", "stored_name")

	dataQuery := fmt.Sprintf(`SELECT %s FROM documents %s ORDER BY id LIMIT ? OFFSET ?`, documentColumns, where)
	rows, err := r.db.QueryContext(ctx, dataQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка поиска документов: %w", err)
	}
	defer rows.Close()

	var result []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM documents %s`, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта документов: %w", err)
	}

	return result, total, nil
}

func (r *mysqlDocumentRepo) Update(ctx context.Context, d *model.Document) error {
	query := `
		UPDATE documents
		SET stored_name = ?, title = ?, subject = ?, status = ?, date_uploaded = ?,
			deadline = ?, object_path = ?, size = ?, content_type = ?, updated_at = ?
		WHERE id = ?`

	now := mysqlNow()
	res, err := r.db.ExecContext(ctx, query,
		d.StoredName, d.Title, d.Subject, d.Status, mysqlDate(d.DateUploaded),
		mysqlDate(d.Deadline), d.ObjectPath, d.Size, d.ContentType, now, d.ID,
	)
	if err != nil {
		if message, ok := duplicateEntry(err); ok {
			return documentConflict(message, d)
		}
		return fmt.Errorf("ошибка обновления документа: %w", err)
	}
	// DSN содержит clientFoundRows=true: 0 строк означает отсутствие записи
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	d.UpdatedAt = now
	return nil
}

func (r *mysqlDocumentRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления документа: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка удаления документа: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mysqlDocumentRepo) LastTrackingNumber(ctx context.Context, prefix string) (string, error) {
	query := `
		SELECT tracking_number FROM documents
		WHERE tracking_number LIKE ?
		ORDER BY tracking_number DESC
		LIMIT 1`

	var code string
	err := r.db.QueryRowContext(ctx, query, prefix+"-%").Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка чтения последнего трекинг-кода: %w", err)
	}
	return code, nil
}

func (r *mysqlDocumentRepo) ExistsDuplicate(ctx context.Context, d *model.Document) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM documents
			WHERE stored_name = ? AND title = ? AND subject = ? AND status = ?
				AND date_uploaded = ? AND deadline = ?
		)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query,
		d.StoredName, d.Title, d.Subject, d.Status, mysqlDate(d.DateUploaded), mysqlDate(d.Deadline),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки дубликата документа: %w", err)
	}
	return exists, nil
}

// --- Файлы ---

// mysqlFileRepo — реализация FileRepository для MySQL.
type mysqlFileRepo struct {
	db SQLDBTX
}

// NewMySQLFileRepository создаёт репозиторий файлов MySQL.
func NewMySQLFileRepository(db SQLDBTX) FileRepository {
	return &mysqlFileRepo{db: db}
}

func (r *mysqlFileRepo) Create(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (filename, uploader, category, date, filepath, size, content_type,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := mysqlNow()
	res, err := r.db.ExecContext(ctx, query,
		f.Filename, f.Uploader, f.Category, mysqlDate(f.Date), f.FilePath, f.Size, f.ContentType,
		now, now,
	)
	if err != nil {
		if _, ok := duplicateEntry(err); ok {
			return fileConflict(f)
		}
		return fmt.Errorf("ошибка создания файла: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ошибка получения id файла: %w", err)
	}
	f.ID = id
	f.CreatedAt = now
	f.UpdatedAt = now
	return nil
}

func (r *mysqlFileRepo) GetByID(ctx context.Context, id int64) (*model.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = ?`, fileColumns)

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *mysqlFileRepo) Search(ctx context.Context, term string, limit, offset int) ([]*model.File, int, error) {
	where, args := mysqlSearchWhere(term, "filename", "uploader", "category")

	dataQuery := fmt.Sprintf(`SELECT %s FROM files %s ORDER BY id LIMIT ? OFFSET ?`, fileColumns, where)
	rows, err := r.db.QueryContext(ctx, dataQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка поиска файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}

	return result, total, nil
}

func (r *mysqlFileRepo) Update(ctx context.Context, f *model.File) error {
	query := `
		UPDATE files
		SET filename = ?, uploader = ?, category = ?, date = ?, filepath = ?,
			size = ?, content_type = ?, updated_at = ?
		WHERE id = ?`

	now := mysqlNow()
	res, err := r.db.ExecContext(ctx, query,
		f.Filename, f.Uploader, f.Category, mysqlDate(f.Date), f.FilePath,
		f.Size, f.ContentType, now, f.ID,
	)
	if err != nil {
		if _, ok := duplicateEntry(err); ok {
			return fileConflict(f)
		}
		return fmt.Errorf("ошибка обновления файла: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	f.UpdatedAt = now
	return nil
}

func (r *mysqlFileRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mysqlFileRepo) ExistsDuplicate(ctx context.Context, f *model.File) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM files
			WHERE filename = ? AND uploader = ? AND category = ? AND date = ?
		)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, f.Filename, f.Uploader, f.Category, mysqlDate(f.Date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки дубликата файла: %w", err)
	}
	return exists, nil
}
