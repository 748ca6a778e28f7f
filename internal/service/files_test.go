package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
)

func newFileService(t *testing.T) (*FileService, *memFileRepo, *countingStore) {
	t.Helper()
	repo := newMemFileRepo()
	store := newCountingStore()
	svc := NewFileService(testConfig(), repo, store, testLogger())
	svc.now = func() time.Time { return day20250105 }
	return svc, repo, store
}

func scanInput() FileInput {
	return FileInput{Uploader: "ivanov", Category: "scans", Date: "2025-01-05"}
}

func TestFileUpload(t *testing.T) {
	svc, repo, store := newFileService(t)

	f, err := svc.Upload(context.Background(), scanInput(), pdf("scan 01.png", "PNGDATA"))
	if err != nil {
		t.Fatalf("Upload() вернул ошибку: %v", err)
	}
	if f.FilePath != "files/scan_01.png" || f.Filename != "scan_01.png" {
		t.Errorf("FilePath = %q, Filename = %q", f.FilePath, f.Filename)
	}
	if f.ContentType != "image/png" || f.Size != 7 {
		t.Errorf("ContentType = %q, Size = %d", f.ContentType, f.Size)
	}
	if repo.count() != 1 || !store.has(t, f.FilePath) {
		t.Error("запись или объект отсутствуют")
	}
}

func TestFileUpload_Validation(t *testing.T) {
	tests := []struct {
		name    string
		in      FileInput
		content *Content
		field   string
	}{
		{"без файла", scanInput(), nil, "file"},
		{"запрещённое расширение", scanInput(), pdf("run.exe", "MZ"), "file"},
		{"пустой uploader", FileInput{Category: "scans", Date: "2025-01-05"}, pdf("a.pdf", "x"), "uploader"},
		{"неверная дата", FileInput{Uploader: "u", Category: "c", Date: "2025/01/05"}, pdf("a.pdf", "x"), "date"},
		{"слишком большой", scanInput(), &Content{Name: "big.pdf", Size: 11 << 20}, "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, store := newFileService(t)
			_, err := svc.Upload(context.Background(), tt.in, tt.content)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ожидали *ValidationError, получили %v", err)
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("нет нарушения для поля %s: %+v", tt.field, verr.Fields)
			}
			if repo.count() != 0 || store.calls.Load() != 0 {
				t.Error("при ошибке валидации не должно быть побочных эффектов")
			}
		})
	}
}

func TestFileUpload_ExtensionCaseInsensitive(t *testing.T) {
	svc, _, _ := newFileService(t)
	if _, err := svc.Upload(context.Background(), scanInput(), pdf("PHOTO.JPG", "jpeg")); err != nil {
		t.Errorf("Upload(PHOTO.JPG) вернул ошибку: %v", err)
	}
}

func TestFileUpload_DuplicateObject(t *testing.T) {
	svc, repo, store := newFileService(t)
	store.seed(t, "files/scan.png", "old")

	_, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "new"))
	if !errors.Is(err, ErrDuplicateObject) {
		t.Fatalf("ожидали ErrDuplicateObject, получили %v", err)
	}
	if repo.count() != 0 || store.puts.Load() != 0 {
		t.Error("дубликат объекта не должен ничего записывать")
	}
}

func TestFileUpload_DuplicateMetadata(t *testing.T) {
	svc, repo, store := newFileService(t)
	// Запись с теми же полями, но объект под ключом уже удалён вручную
	repo.rows[1] = model.File{ID: 1, Filename: "scan.png", Uploader: "ivanov", Category: "scans",
		Date: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), FilePath: "files/scan.png"}
	repo.nextID = 1

	_, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "new"))
	if !errors.Is(err, ErrDuplicateMetadata) {
		t.Fatalf("ожидали ErrDuplicateMetadata, получили %v", err)
	}
	if store.puts.Load() != 0 {
		t.Errorf("записей в хранилище = %d, ожидали 0", store.puts.Load())
	}
}

func TestFileUpload_InsertFailureRollsBackObject(t *testing.T) {
	svc, repo, store := newFileService(t)
	repo.createFn = func(*model.File) error { return errInjected }

	_, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "data"))
	if !errors.Is(err, ErrMetadataWriteFailed) {
		t.Fatalf("ожидали ErrMetadataWriteFailed, получили %v", err)
	}
	if keys := store.objects(t, "files"); len(keys) != 0 {
		t.Errorf("после отката остались объекты: %v", keys)
	}
}

// Обе загрузки проходят проверку Exists до записи объекта: опубликовать
// объект должна ровно одна, её запись должна ссылаться на существующий объект.
func TestFileUpload_ConcurrentSameName(t *testing.T) {
	repo := newMemFileRepo()
	store := newBarrierStore(2)
	svc := NewFileService(testConfig(), repo, store, testLogger())
	svc.now = func() time.Time { return day20250105 }

	uploaders := []string{"ivanov", "petrov"}
	results := make([]*model.File, len(uploaders))
	errs := make([]error, len(uploaders))
	var wg sync.WaitGroup
	for i, uploader := range uploaders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := FileInput{Uploader: uploader, Category: "scans", Date: "2025-01-05"}
			results[i], errs[i] = svc.Upload(context.Background(), in, pdf("scan.png", uploader))
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != -1 {
				t.Fatal("обе загрузки завершились успешно")
			}
			winner = i
		case !errors.Is(err, ErrDuplicateObject):
			t.Errorf("%s: ожидали ErrDuplicateObject, получили %v", uploaders[i], err)
		}
	}
	if winner == -1 {
		t.Fatalf("ни одна загрузка не завершилась успешно: %v", errs)
	}

	if repo.count() != 1 {
		t.Fatalf("записей = %d, ожидали 1", repo.count())
	}
	f := results[winner]
	row, err := repo.GetByID(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("запись победителя отсутствует: %v", err)
	}
	if row.Uploader != uploaders[winner] {
		t.Errorf("Uploader = %q, ожидали %q", row.Uploader, uploaders[winner])
	}

	rc, err := store.Open(context.Background(), row.FilePath)
	if err != nil {
		t.Fatalf("объект записи отсутствует: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != uploaders[winner] {
		t.Errorf("содержимое = %q, ожидали %q", data, uploaders[winner])
	}
}

func TestFileUpload_ObjectConflictOnInsert(t *testing.T) {
	svc, repo, store := newFileService(t)
	repo.createFn = func(*model.File) error { return repository.ErrObjectConflict }

	_, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "data"))
	if !errors.Is(err, ErrDuplicateObject) {
		t.Fatalf("ожидали ErrDuplicateObject, получили %v", err)
	}
	if keys := store.objects(t, "files"); len(keys) != 0 {
		t.Errorf("созданный объект не удалён: %v", keys)
	}
}

func TestFileUpload_StorageWriteFailure(t *testing.T) {
	svc, repo, store := newFileService(t)
	store.putErr = errInjected

	if _, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "data")); !errors.Is(err, ErrStorageWriteFailed) {
		t.Fatalf("ожидали ErrStorageWriteFailed, получили %v", err)
	}
	if repo.count() != 0 {
		t.Error("запись не должна создаваться при ошибке хранилища")
	}
}

func TestFileReplace(t *testing.T) {
	svc, repo, store := newFileService(t)
	f, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "v1"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Replace(context.Background(), f.ID, scanInput(), pdf("scan.png", "v2-data"))
	if err != nil {
		t.Fatalf("Replace() вернул ошибку: %v", err)
	}
	if got.FilePath != "files/1736071200_scan.png" {
		t.Errorf("FilePath = %q", got.FilePath)
	}
	if store.has(t, f.FilePath) || !store.has(t, got.FilePath) {
		t.Error("ожидали только новый объект")
	}
	row, _ := repo.GetByID(context.Background(), f.ID)
	if row.FilePath != got.FilePath || row.Size != 7 {
		t.Errorf("запись после замены: %+v", row)
	}

	_, rc, err := svc.Open(context.Background(), f.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if data, _ := io.ReadAll(rc); string(data) != "v2-data" {
		t.Errorf("содержимое = %q", data)
	}
}

func TestFileReplace_RejectsForbiddenExtension(t *testing.T) {
	svc, _, store := newFileService(t)
	f, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "v1"))
	if err != nil {
		t.Fatal(err)
	}
	calls := store.calls.Load()

	if _, err := svc.Replace(context.Background(), f.ID, scanInput(), pdf("scan.sh", "#!")); !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
	if store.calls.Load() != calls {
		t.Error("отклонённая замена не должна обращаться к хранилищу")
	}
}

func TestFileDelete(t *testing.T) {
	svc, repo, store := newFileService(t)
	f, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "v1"))
	if err != nil {
		t.Fatal(err)
	}

	store.deleteErr = errInjected
	if err := svc.Delete(context.Background(), f.ID); !errors.Is(err, ErrStorageDeleteFailed) {
		t.Fatalf("ожидали ErrStorageDeleteFailed, получили %v", err)
	}
	if repo.count() != 1 {
		t.Fatal("запись удалена при ошибке хранилища")
	}

	store.deleteErr = nil
	if err := svc.Delete(context.Background(), f.ID); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}
	if repo.count() != 0 || store.has(t, f.FilePath) {
		t.Error("запись или объект остались")
	}

	if err := svc.Delete(context.Background(), f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: ожидали ErrNotFound, получили %v", err)
	}
}

func TestFileGet_MissingContent(t *testing.T) {
	svc, _, store := newFileService(t)
	f, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "v1"))
	if err != nil {
		t.Fatal(err)
	}
	_ = store.FSStore.Delete(context.Background(), f.FilePath)

	details, err := svc.Get(context.Background(), f.ID)
	if err != nil || !details.MissingContent {
		t.Errorf("Get() = %+v, %v; ожидали MissingContent", details, err)
	}
	if _, _, err := svc.Open(context.Background(), f.ID); !errors.Is(err, ErrMissingContent) {
		t.Errorf("Open(): ожидали ErrMissingContent, получили %v", err)
	}
}

func TestFileSearch(t *testing.T) {
	svc, _, _ := newFileService(t)
	for _, name := range []string{"contract.pdf", "photo.jpg", "contract-v2.docx"} {
		if _, err := svc.Upload(context.Background(), scanInput(), pdf(name, "x")); err != nil {
			t.Fatal(err)
		}
	}

	page, err := svc.Search(context.Background(), "CONTRACT", 1, 500)
	if err != nil {
		t.Fatalf("Search() вернул ошибку: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Errorf("Search(CONTRACT) = %d/%d, ожидали 2", page.Total, len(page.Items))
	}
	if page.PageSize != MaxPageSize {
		t.Errorf("PageSize = %d, ожидали ограничение %d", page.PageSize, MaxPageSize)
	}
}
