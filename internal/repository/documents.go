package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// documentRepo — реализация DocumentRepository для PostgreSQL.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий документов PostgreSQL.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, d *model.Document) error {
	query := `
		INSERT INTO documents (tracking_number, stored_name, title, subject, status,
			date_uploaded, deadline, object_path, size, content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		d.TrackingNumber, d.StoredName, d.Title, d.Subject, d.Status,
		d.DateUploaded, d.Deadline, d.ObjectPath, d.Size, d.ContentType,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return documentConflict(constraint, d)
		}
		return fmt.Errorf("ошибка создания документа: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns)

	d, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	return d, nil
}

// documentSearchWhere строит WHERE-условие поиска подстроки по документам.
func documentSearchWhere(term string) (string, []any) {
	if term == "" {
		return "", nil
	}
	where := `WHERE tracking_number ILIKE $1 OR title ILIKE $1 OR subject ILIKE $1
		OR status ILIKE $1 OR stored_name ILIKE $1`
	return where, []any{likePattern(term)}
}

func (r *documentRepo) Search(ctx context.Context, term string, limit, offset int) ([]*model.Document, int, error) {
	where, args := documentSearchWhere(term)
	argNum := len(args) + 1

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM documents %s ORDER BY id LIMIT $%d OFFSET $%d`,
		documentColumns, where, argNum, argNum+1,
	)

	rows, err := r.db.Query(ctx, dataQuery, append(args, limit, offset)...)
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

	// Общее количество с тем же условием, без LIMIT/OFFSET
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM documents %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта документов: %w", err)
	}

	return result, total, nil
}

func (r *documentRepo) Update(ctx context.Context, d *model.Document) error {
	query := `
		UPDATE documents
		SET stored_name = $2, title = $3, subject = $4, status = $5,
			date_uploaded = $6, deadline = $7, object_path = $8,
			size = $9, content_type = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.StoredName, d.Title, d.Subject, d.Status,
		d.DateUploaded, d.Deadline, d.ObjectPath, d.Size, d.ContentType,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if constraint, ok := uniqueViolation(err); ok {
			return documentConflict(constraint, d)
		}
		return fmt.Errorf("ошибка обновления документа: %w", err)
	}
	return nil
}

func (r *documentRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления документа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepo) LastTrackingNumber(ctx context.Context, prefix string) (string, error) {
	query := `
		SELECT tracking_number FROM documents
		WHERE tracking_number LIKE $1
		ORDER BY tracking_number DESC
		LIMIT 1`

	var code string
	err := r.db.QueryRow(ctx, query, prefix+"-%").Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка чтения последнего трекинг-кода: %w", err)
	}
	return code, nil
}

func (r *documentRepo) ExistsDuplicate(ctx context.Context, d *model.Document) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM documents
			WHERE stored_name = $1 AND title = $2 AND subject = $3 AND status = $4
				AND date_uploaded = $5 AND deadline = $6
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query,
		d.StoredName, d.Title, d.Subject, d.Status, d.DateUploaded, d.Deadline,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки дубликата документа: %w", err)
	}
	return exists, nil
}
