package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestFSStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	stores := map[string]*FSStore{"memfs": NewMemStore()}
	disk, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() вернул ошибку: %v", err)
	}
	stores["osfs"] = disk

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			key := "docs/report.pdf"

			n, err := store.Put(ctx, key, strings.NewReader("hello world"))
			if err != nil {
				t.Fatalf("Put() вернул ошибку: %v", err)
			}
			if n != 11 {
				t.Errorf("Put() записал %d байт, ожидали 11", n)
			}

			exists, err := store.Exists(ctx, key)
			if err != nil || !exists {
				t.Fatalf("Exists() = %v, %v; ожидали true", exists, err)
			}

			size, err := store.Size(ctx, key)
			if err != nil || size != 11 {
				t.Errorf("Size() = %d, %v; ожидали 11", size, err)
			}

			rc, err := store.Open(ctx, key)
			if err != nil {
				t.Fatalf("Open() вернул ошибку: %v", err)
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(data) != "hello world" {
				t.Errorf("содержимое = %q", data)
			}

			if err := store.Delete(ctx, key); err != nil {
				t.Fatalf("Delete() вернул ошибку: %v", err)
			}
			// Повторное удаление идемпотентно
			if err := store.Delete(ctx, key); err != nil {
				t.Errorf("повторный Delete() вернул ошибку: %v", err)
			}

			if _, err := store.Open(ctx, key); !errors.Is(err, ErrNotExist) {
				t.Errorf("Open() удалённого: ожидали ErrNotExist, получили %v", err)
			}
			if _, err := store.Size(ctx, key); !errors.Is(err, ErrNotExist) {
				t.Errorf("Size() удалённого: ожидали ErrNotExist, получили %v", err)
			}
		})
	}
}

func TestFSStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	for _, key := range []string{"docs/b.pdf", "docs/a.pdf", "docs/sub/c.pdf", "files/x.png"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("12345"))); err != nil {
			t.Fatalf("Put(%s) вернул ошибку: %v", key, err)
		}
	}

	objects, err := store.List(ctx, "docs")
	if err != nil {
		t.Fatalf("List() вернул ошибку: %v", err)
	}
	want := []string{"docs/a.pdf", "docs/b.pdf", "docs/sub/c.pdf"}
	if len(objects) != len(want) {
		t.Fatalf("List() = %d объектов, ожидали %d: %+v", len(objects), len(want), objects)
	}
	for i, obj := range objects {
		if obj.Key != want[i] || obj.Size != 5 {
			t.Errorf("objects[%d] = %+v, ожидали ключ %s размером 5", i, obj, want[i])
		}
	}

	empty, err := store.List(ctx, "missing")
	if err != nil || len(empty) != 0 {
		t.Errorf("List() несуществующего префикса = %v, %v", empty, err)
	}
}

// failingReader возвращает ошибку после части данных.
type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.sent {
		return 0, errors.New("соединение прервано")
	}
	f.sent = true
	return copy(p, "partial"), nil
}

func TestFSStore_PartialWriteLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	if _, err := store.Put(ctx, "docs/broken.pdf", &failingReader{}); err == nil {
		t.Fatal("ожидали ошибку записи")
	}

	exists, _ := store.Exists(ctx, "docs/broken.pdf")
	if exists {
		t.Error("частично записанный объект виден под итоговым ключом")
	}
	objects, err := store.List(ctx, "docs")
	if err != nil {
		t.Fatalf("List() вернул ошибку: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("после неудачной записи остались объекты: %+v", objects)
	}
}

func TestFSStore_PutDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	stores := map[string]*FSStore{"memfs": NewMemStore()}
	disk, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() вернул ошибку: %v", err)
	}
	stores["osfs"] = disk

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(ctx, "files/scan.png", strings.NewReader("ivanov")); err != nil {
				t.Fatalf("первый Put() вернул ошибку: %v", err)
			}
			if _, err := store.Put(ctx, "files/scan.png", strings.NewReader("petrov")); !errors.Is(err, ErrExist) {
				t.Fatalf("второй Put(): ожидали ErrExist, получили %v", err)
			}

			rc, err := store.Open(ctx, "files/scan.png")
			if err != nil {
				t.Fatalf("Open() вернул ошибку: %v", err)
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(data) != "ivanov" {
				t.Errorf("содержимое = %q, первый объект перезаписан", data)
			}

			// временный файл отклонённой записи удалён
			entries, err := store.fs.ReadDir("files")
			if err != nil {
				t.Fatalf("ReadDir() вернул ошибку: %v", err)
			}
			if len(entries) != 1 {
				t.Errorf("в директории %d записей, ожидали 1", len(entries))
			}
		})
	}
}

func TestFSStore_ConcurrentPutSameKey(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() вернул ошибку: %v", err)
	}

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		exists  int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(body string) {
			defer wg.Done()
			_, err := store.Put(ctx, "docs/report.pdf", strings.NewReader(body))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, body)
			case errors.Is(err, ErrExist):
				exists++
			default:
				t.Errorf("Put() вернул ошибку: %v", err)
			}
		}(fmt.Sprintf("writer-%d", i))
	}
	wg.Wait()

	if len(winners) != 1 || exists != writers-1 {
		t.Fatalf("успешных записей %d, ErrExist %d; ожидали 1 и %d", len(winners), exists, writers-1)
	}
	rc, err := store.Open(ctx, "docs/report.pdf")
	if err != nil {
		t.Fatalf("Open() вернул ошибку: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != winners[0] {
		t.Errorf("содержимое = %q, ожидали объект победившей записи %q", data, winners[0])
	}
}

func TestFSStore_CancelledContext(t *testing.T) {
	store := NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Put(ctx, "docs/a.pdf", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Errorf("ожидали context.Canceled, получили %v", err)
	}
}

func TestFSStore_InvalidKey(t *testing.T) {
	store := NewMemStore()
	for _, key := range []string{"", "../etc/passwd", "docs/../../x", "/"} {
		if _, err := store.Exists(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Exists(%q): ожидали ErrInvalidKey, получили %v", key, err)
		}
	}
}

func TestFSStore_Capacity(t *testing.T) {
	if _, _, err := NewMemStore().Capacity(context.Background()); !errors.Is(err, ErrCapacityUnknown) {
		t.Errorf("memfs: ожидали ErrCapacityUnknown, получили %v", err)
	}

	disk, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() вернул ошибку: %v", err)
	}
	total, free, err := disk.Capacity(context.Background())
	if err != nil {
		t.Skipf("statfs недоступен: %v", err)
	}
	if total <= 0 || free < 0 || free > total {
		t.Errorf("Capacity() = %d, %d", total, free)
	}
}
