package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/storage/objectstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		DocumentsPrefix:      "docs",
		FilesPrefix:          "files",
		MaxUploadSize:        10 << 20,
		OperationTimeout:     time.Minute,
		SequencerMaxAttempts: 5,
		TimeZone:             time.UTC,
	}
}

// day20250105 — фиксированное «сейчас» для тестов.
var day20250105 = time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)

// --- Репозиторий документов в памяти ---

// memDocRepo — DocumentRepository в памяти с уникальностью tracking_number.
// Поля-функции позволяют подменять поведение отдельных операций.
type memDocRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.Document

	createFn func(d *model.Document) error
	updateFn func(d *model.Document) error
	lastFn   func(prefix string) (string, error)
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{rows: make(map[int64]model.Document)}
}

func (r *memDocRepo) Create(_ context.Context, d *model.Document) error {
	if r.createFn != nil {
		if err := r.createFn(d); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TrackingNumber == d.TrackingNumber {
			return repository.ErrConflict
		}
		if d.ObjectPath != "" && row.ObjectPath == d.ObjectPath {
			return repository.ErrObjectConflict
		}
	}
	r.nextID++
	d.ID = r.nextID
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt
	r.rows[d.ID] = *d
	return nil
}

func (r *memDocRepo) GetByID(_ context.Context, id int64) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r *memDocRepo) Search(_ context.Context, term string, limit, offset int) ([]*model.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	term = strings.ToLower(term)
	var matched []*model.Document
	for _, row := range r.rows {
		hay := strings.ToLower(strings.Join([]string{row.TrackingNumber, row.Title, row.Subject, row.Status, row.StoredName}, "\x00"))
		if term == "" || strings.Contains(hay, term) {
			d := row
			matched = append(matched, &d)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (r *memDocRepo) Update(_ context.Context, d *model.Document) error {
	if r.updateFn != nil {
		if err := r.updateFn(d); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[d.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, row := range r.rows {
		if id != d.ID && d.ObjectPath != "" && row.ObjectPath == d.ObjectPath {
			return repository.ErrObjectConflict
		}
	}
	r.rows[d.ID] = *d
	return nil
}

func (r *memDocRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memDocRepo) LastTrackingNumber(_ context.Context, prefix string) (string, error) {
	if r.lastFn != nil {
		return r.lastFn(prefix)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	last := ""
	for _, row := range r.rows {
		if strings.HasPrefix(row.TrackingNumber, prefix+"-") && row.TrackingNumber > last {
			last = row.TrackingNumber
		}
	}
	return last, nil
}

func (r *memDocRepo) ExistsDuplicate(_ context.Context, d *model.Document) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.StoredName == d.StoredName && row.Title == d.Title && row.Subject == d.Subject &&
			row.Status == d.Status && row.DateUploaded.Equal(d.DateUploaded) && row.Deadline.Equal(d.Deadline) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memDocRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// --- Репозиторий файлов в памяти ---

type memFileRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.File

	createFn func(f *model.File) error
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{rows: make(map[int64]model.File)}
}

func (r *memFileRepo) Create(_ context.Context, f *model.File) error {
	if r.createFn != nil {
		if err := r.createFn(f); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.FilePath == f.FilePath {
			return repository.ErrObjectConflict
		}
	}
	r.nextID++
	f.ID = r.nextID
	r.rows[f.ID] = *f
	return nil
}

func (r *memFileRepo) GetByID(_ context.Context, id int64) (*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r *memFileRepo) Search(_ context.Context, term string, limit, offset int) ([]*model.File, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	term = strings.ToLower(term)
	var matched []*model.File
	for _, row := range r.rows {
		hay := strings.ToLower(row.Filename + "\x00" + row.Uploader + "\x00" + row.Category)
		if term == "" || strings.Contains(hay, term) {
			f := row
			matched = append(matched, &f)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	return matched[offset:min(offset+limit, total)], total, nil
}

func (r *memFileRepo) Update(_ context.Context, f *model.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[f.ID]; !ok {
		return repository.ErrNotFound
	}
	r.rows[f.ID] = *f
	return nil
}

func (r *memFileRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memFileRepo) ExistsDuplicate(_ context.Context, f *model.File) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Filename == f.Filename && row.Uploader == f.Uploader &&
			row.Category == f.Category && row.Date.Equal(f.Date) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memFileRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// --- Хранилище со счётчиком вызовов ---

// countingStore — objectstore.Store в памяти, считающий вызовы и
// позволяющий подменить ошибки Put/Delete.
type countingStore struct {
	*objectstore.FSStore

	calls     atomic.Int64
	puts      atomic.Int64
	putErr    error
	deleteErr error
}

func newCountingStore() *countingStore {
	return &countingStore{FSStore: objectstore.NewMemStore()}
}

func (s *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	s.calls.Add(1)
	return s.FSStore.Exists(ctx, key)
}

func (s *countingStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	s.calls.Add(1)
	s.puts.Add(1)
	if s.putErr != nil {
		return 0, s.putErr
	}
	return s.FSStore.Put(ctx, key, r)
}

// barrierStore задерживает ответ Exists, пока проверку не пройдут
// все parties конкурентных загрузок, и сериализует запись в memfs.
type barrierStore struct {
	*objectstore.FSStore

	arrived sync.WaitGroup
	putMu   sync.Mutex
}

func newBarrierStore(parties int) *barrierStore {
	s := &barrierStore{FSStore: objectstore.NewMemStore()}
	s.arrived.Add(parties)
	return s
}

func (s *barrierStore) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := s.FSStore.Exists(ctx, key)
	s.arrived.Done()
	s.arrived.Wait()
	return exists, err
}

func (s *barrierStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	s.putMu.Lock()
	defer s.putMu.Unlock()
	return s.FSStore.Put(ctx, key, r)
}

func (s *countingStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.calls.Add(1)
	return s.FSStore.Open(ctx, key)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.calls.Add(1)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.FSStore.Delete(ctx, key)
}

func (s *countingStore) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	s.calls.Add(1)
	return s.FSStore.List(ctx, prefix)
}

// seed кладёт объект в хранилище в обход счётчиков.
func (s *countingStore) seed(t *testing.T, key, data string) {
	t.Helper()
	if _, err := s.FSStore.Put(context.Background(), key, strings.NewReader(data)); err != nil {
		t.Fatalf("seed(%s): %v", key, err)
	}
}

// has проверяет наличие объекта в обход счётчиков.
func (s *countingStore) has(t *testing.T, key string) bool {
	t.Helper()
	ok, err := s.FSStore.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("Exists(%s): %v", key, err)
	}
	return ok
}

// objects возвращает ключи всех объектов под prefix в обход счётчиков.
func (s *countingStore) objects(t *testing.T, prefix string) []string {
	t.Helper()
	list, err := s.FSStore.List(context.Background(), prefix)
	if err != nil {
		t.Fatalf("List(%s): %v", prefix, err)
	}
	keys := make([]string, 0, len(list))
	for _, o := range list {
		keys = append(keys, o.Key)
	}
	return keys
}

var errInjected = errors.New("внедрённая ошибка")

func pdf(name, data string) *Content {
	return &Content{Name: name, Size: int64(len(data)), Reader: strings.NewReader(data)}
}
