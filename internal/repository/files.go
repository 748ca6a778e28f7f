package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// fileRepo — реализация FileRepository для PostgreSQL.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов PostgreSQL.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Create(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (filename, uploader, category, date, filepath, size, content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.Filename, f.Uploader, f.Category, f.Date, f.FilePath, f.Size, f.ContentType,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return fileConflict(f)
		}
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id int64) (*model.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) Search(ctx context.Context, term string, limit, offset int) ([]*model.File, int, error) {
	var where string
	var args []any
	if term != "" {
		where = `WHERE filename ILIKE $1 OR uploader ILIKE $1 OR category ILIKE $1`
		args = append(args, likePattern(term))
	}
	argNum := len(args) + 1

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM files %s ORDER BY id LIMIT $%d OFFSET $%d`,
		fileColumns, where, argNum, argNum+1,
	)

	rows, err := r.db.Query(ctx, dataQuery, append(args, limit, offset)...)
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
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}

	return result, total, nil
}

func (r *fileRepo) Update(ctx context.Context, f *model.File) error {
	query := `
		UPDATE files
		SET filename = $2, uploader = $3, category = $4, date = $5,
			filepath = $6, size = $7, content_type = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.Filename, f.Uploader, f.Category, f.Date, f.FilePath, f.Size, f.ContentType,
	).Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if _, ok := uniqueViolation(err); ok {
			return fileConflict(f)
		}
		return fmt.Errorf("ошибка обновления файла: %w", err)
	}
	return nil
}

func (r *fileRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) ExistsDuplicate(ctx context.Context, f *model.File) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM files
			WHERE filename = $1 AND uploader = $2 AND category = $3 AND date = $4
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query, f.Filename, f.Uploader, f.Category, f.Date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки дубликата файла: %w", err)
	}
	return exists, nil
}
