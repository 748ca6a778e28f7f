package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/bigkaa/docstore/internal/domain/model"
)

func newMySQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() вернул ошибку: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func date(s string) time.Time {
	d, _ := time.Parse(model.DateLayout, s)
	return d
}

var documentRowColumns = []string{
	"id", "tracking_number", "stored_name", "title", "subject", "status",
	"date_uploaded", "deadline", "object_path", "size", "content_type", "created_at", "updated_at",
}

func TestMySQLDocument_Create(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLDocumentRepository(db)

	d := &model.Document{
		TrackingNumber: "TRK-20250105-0001",
		Title:          "Report",
		Subject:        "Q1",
		Status:         "final",
		DateUploaded:   date("2025-01-05"),
		Deadline:       date("2025-01-10"),
	}

	mock.ExpectExec("INSERT INTO documents").
		WithArgs("TRK-20250105-0001", "", "Report", "Q1", "final", "2025-01-05", "2025-01-10",
			"", int64(0), "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))

	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("Create() вернул ошибку: %v", err)
	}
	if d.ID != 7 {
		t.Errorf("ID = %d, ожидали 7", d.ID)
	}
	if d.CreatedAt.IsZero() {
		t.Error("CreatedAt не заполнен")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ожидания sqlmock: %v", err)
	}
}

func TestMySQLDocument_CreateDuplicateTrackingNumber(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLDocumentRepository(db)

	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'TRK-20250105-0001'"})

	err := repo.Create(context.Background(), &model.Document{TrackingNumber: "TRK-20250105-0001"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ожидали ErrConflict, получили %v", err)
	}
}

func TestMySQLDocument_ObjectPathConflict(t *testing.T) {
	dup := &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'docs/report.pdf' for key 'documents.documents_object_path_key'",
	}
	d := &model.Document{ID: 3, TrackingNumber: "TRK-20250105-0002", ObjectPath: "docs/report.pdf"}

	tests := []struct {
		name string
		exec func(repo DocumentRepository) error
		sql  string
	}{
		{"Create", func(repo DocumentRepository) error { return repo.Create(context.Background(), d) }, "INSERT INTO documents"},
		{"Update", func(repo DocumentRepository) error { return repo.Update(context.Background(), d) }, "UPDATE documents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMySQLMock(t)
			mock.ExpectExec(tt.sql).WillReturnError(dup)

			err := tt.exec(NewMySQLDocumentRepository(db))
			if !errors.Is(err, ErrObjectConflict) {
				t.Fatalf("ожидали ErrObjectConflict, получили %v", err)
			}
			if errors.Is(err, ErrConflict) {
				t.Error("конфликт ключа объекта не должен считаться конфликтом трекинг-кода")
			}
		})
	}
}

func TestMySQLFile_CreateDuplicatePath(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLFileRepository(db)

	mock.ExpectExec("INSERT INTO files").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'files/scan.png' for key 'files.files_filepath_key'"})

	err := repo.Create(context.Background(), &model.File{FilePath: "files/scan.png"})
	if !errors.Is(err, ErrObjectConflict) {
		t.Fatalf("ожидали ErrObjectConflict, получили %v", err)
	}
}

func TestMySQLDocument_GetByIDNotFound(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLDocumentRepository(db)

	mock.ExpectQuery("FROM documents WHERE id").
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ожидания sqlmock: %v", err)
	}
}

func TestMySQLDocument_LastTrackingNumber(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLDocumentRepository(db)

	mock.ExpectQuery("SELECT tracking_number FROM documents").
		WithArgs("TRK-20250105-%").
		WillReturnRows(sqlmock.NewRows([]string{"tracking_number"}).AddRow("TRK-20250105-0003"))
	mock.ExpectQuery("SELECT tracking_number FROM documents").
		WithArgs("TRK-20250106-%").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.LastTrackingNumber(context.Background(), "TRK-20250105")
	if err != nil || got != "TRK-20250105-0003" {
		t.Errorf("LastTrackingNumber() = %q, %v", got, err)
	}

	got, err = repo.LastTrackingNumber(context.Background(), "TRK-20250106")
	if err != nil || got != "" {
		t.Errorf("LastTrackingNumber() без записей = %q, %v; ожидали пустую строку", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ожидания sqlmock: %v", err)
	}
}

func TestMySQLDocument_Search(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLDocumentRepository(db)

	now := time.Now().UTC()
	pattern := "%inv%"

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(title) LIKE LOWER(?)")).
		WithArgs(pattern, pattern, pattern, pattern, pattern, 20, 0).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).AddRow(
			int64(1), "TRK-20250105-0001", "invoice.pdf", "Invoice A", "billing", "new",
			date("2025-01-05"), date("2025-01-10"), "docs/invoice.pdf", int64(10), "application/pdf", now, now,
		))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents WHERE")).
		WithArgs(pattern, pattern, pattern, pattern, pattern).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.Search(context.Background(), "inv", 20, 0)
	if err != nil {
		t.Fatalf("Search() вернул ошибку: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total = %d, len = %d; ожидали 1, 1", total, len(items))
	}
	if items[0].Title != "Invoice A" {
		t.Errorf("Title = %q, ожидали Invoice A", items[0].Title)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ожидания sqlmock: %v", err)
	}
}

func TestMySQLDocument_UpdateNotFound(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLDocumentRepository(db)

	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &model.Document{ID: 5})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestMySQLDocument_ExistsDuplicate(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLDocumentRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("", "Report", "Q1", "final", "2025-01-05", "2025-01-10").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(int64(1)))

	exists, err := repo.ExistsDuplicate(context.Background(), &model.Document{
		Title: "Report", Subject: "Q1", Status: "final",
		DateUploaded: date("2025-01-05"), Deadline: date("2025-01-10"),
	})
	if err != nil {
		t.Fatalf("ExistsDuplicate() вернул ошибку: %v", err)
	}
	if !exists {
		t.Error("ожидали exists = true")
	}
}

func TestMySQLFile_DeleteNotFound(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLFileRepository(db)

	mock.ExpectExec("DELETE FROM files").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestMySQLFile_CreateAndListAll(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewMySQLFileRepository(db)

	f := &model.File{
		Filename: "scan.pdf", Uploader: "ivan", Category: "contracts",
		Date: date("2025-02-01"), FilePath: "files/scan.pdf", Size: 3, ContentType: "application/pdf",
	}

	mock.ExpectExec("INSERT INTO files").
		WithArgs("scan.pdf", "ivan", "contracts", "2025-02-01", "files/scan.pdf", int64(3),
			"application/pdf", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), f); err != nil {
		t.Fatalf("Create() вернул ошибку: %v", err)
	}

	// Пустой запрос — без WHERE, только LIMIT/OFFSET
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM files  ORDER BY id LIMIT ? OFFSET ?")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "filename", "uploader", "category", "date", "filepath",
			"size", "content_type", "created_at", "updated_at",
		}).AddRow(int64(1), "scan.pdf", "ivan", "contracts", date("2025-02-01"), "files/scan.pdf",
			int64(3), "application/pdf", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM files")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.Search(context.Background(), "", 10, 0)
	if err != nil {
		t.Fatalf("Search() вернул ошибку: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].FilePath != "files/scan.pdf" {
		t.Errorf("Search() = %+v, total = %d", items, total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ожидания sqlmock: %v", err)
	}
}

func TestLikePattern(t *testing.T) {
	tests := map[string]string{
		"inv":    "%inv%",
		"50%":    `%50\%%`,
		"a_b":    `%a\_b%`,
		`c:\tmp`: `%c:\\tmp%`,
	}
	for in, want := range tests {
		if got := likePattern(in); got != want {
			t.Errorf("likePattern(%q) = %q, ожидали %q", in, got, want)
		}
	}
}
