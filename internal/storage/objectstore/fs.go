package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FSStore — хранилище поверх файловой системы go-billy.
// Используется для локального диска (osfs) и в тестах (memfs).
type FSStore struct {
	fs billy.Filesystem
	// diskPath — путь на локальном диске для statfs; пуст для memfs
	diskPath string
	// publishMu сериализует резервирование ключей внутри процесса;
	// между процессами занятость ключа определяет O_EXCL
	publishMu sync.Mutex
}

// NewFSStore создаёт хранилище в директории root на локальном диске.
// Директория создаётся при необходимости.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища %s: %w", root, err)
	}
	return &FSStore{
		fs:       osfs.New(root, osfs.WithBoundOS()),
		diskPath: root,
	}, nil
}

// NewMemStore создаёт хранилище в памяти.
func NewMemStore() *FSStore {
	return &FSStore{fs: memfs.New()}
}

// NewBillyStore создаёт хранилище поверх произвольной файловой системы go-billy.
func NewBillyStore(filesystem billy.Filesystem) *FSStore {
	return &FSStore{fs: filesystem}
}

// Backend возвращает имя бэкенда.
func (s *FSStore) Backend() string { return "fs" }

// Exists сообщает, существует ли объект.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	info, err := s.fs.Stat(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки объекта %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Put записывает содержимое во временный файл и публикует его под key.
// Занятый ключ — ErrExist.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o750); err != nil {
		return 0, fmt.Errorf("ошибка создания директории для %s: %w", key, err)
	}

	tmp := tempKey(key)
	f, err := s.fs.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync, если файловая система его поддерживает
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			_ = f.Close()
			_ = s.fs.Remove(tmp)
			return 0, fmt.Errorf("ошибка fsync: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.publish(tmp, key); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, err
	}
	return size, nil
}

// publish делает записанный временный файл видимым под key, не трогая
// чужой объект. Ключ сначала резервируется через O_CREATE|O_EXCL (пустой
// файл-заглушка), затем временный файл переименовывается поверх своей заглушки.
func (s *FSStore) publish(tmp, key string) error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	placeholder, err := s.fs.OpenFile(key, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExist, key)
		}
		return fmt.Errorf("ошибка резервирования ключа %s: %w", key, err)
	}
	_ = placeholder.Close()

	if err := s.fs.Rename(tmp, key); err != nil {
		_ = s.fs.Remove(key)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Open открывает объект для чтения.
func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		return nil, fmt.Errorf("ошибка открытия объекта %s: %w", key, err)
	}
	return f, nil
}

// Size возвращает размер объекта.
func (s *FSStore) Size(_ context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	info, err := s.fs.Stat(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		return 0, fmt.Errorf("ошибка получения размера %s: %w", key, err)
	}
	return info.Size(), nil
}

// Delete удаляет объект; отсутствие объекта не ошибка.
func (s *FSStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// List рекурсивно перечисляет объекты под prefix.
func (s *FSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := validateKey(prefix); err != nil {
		return nil, err
	}

	var objects []ObjectInfo
	err := util.Walk(s.fs, prefix, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || isTempKey(p) {
			return nil
		}
		objects = append(objects, ObjectInfo{Key: p, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления объектов %s: %w", prefix, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Capacity возвращает ёмкость диска под корнем хранилища.
func (s *FSStore) Capacity(_ context.Context) (int64, int64, error) {
	if s.diskPath == "" {
		return 0, 0, ErrCapacityUnknown
	}
	return diskCapacity(s.diskPath)
}

// contextReader прерывает чтение при отмене контекста.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
