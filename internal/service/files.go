package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/storage/objectstore"
)

// FileInput — поля файла из запроса.
type FileInput struct {
	Uploader string
	Category string
	Date     string
}

// FileDetails — файл с признаком отсутствующего содержимого.
type FileDetails struct {
	File           *model.File
	MissingContent bool
}

// FileService — загрузка, замена, удаление и поиск файлов.
// Файлы не получают трекинг-код и всегда имеют содержимое.
type FileService struct {
	cfg    *config.Config
	repo   repository.FileRepository
	store  objectstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewFileService создаёт сервис файлов.
func NewFileService(cfg *config.Config, repo repository.FileRepository, store objectstore.Store, logger *slog.Logger) *FileService {
	return &FileService{
		cfg:    cfg,
		repo:   repo,
		store:  store,
		logger: logger.With(slog.String("component", "file_service")),
		now:    time.Now,
	}
}

func (s *FileService) validate(in FileInput, content *Content, contentRequired bool) (*model.File, error) {
	var v validator
	f := &model.File{
		Uploader: checkText(&v, "uploader", in.Uploader),
		Category: checkText(&v, "category", in.Category),
		Date:     checkDate(&v, "date", in.Date),
	}
	switch {
	case content != nil:
		checkContent(&v, content, s.cfg.MaxUploadSize, true)
	case contentRequired:
		v.add("file", "обязательное поле")
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return f, nil
}

// Upload загружает файл: проверка ключа, проверка дубликата полей,
// запись объекта, вставка записи. При ошибке вставки объект удаляется.
func (s *FileService) Upload(ctx context.Context, in FileInput, content *Content) (*model.File, error) {
	f, err := s.validate(in, content, true)
	if err != nil {
		return nil, err
	}

	ctx, cancel := detach(ctx, s.cfg.OperationTimeout)
	defer cancel()

	key, err := objectstore.CreateKey(s.cfg.FilesPrefix, content.Name)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "file", Message: err.Error()}}}
	}
	f.Filename = path.Base(key)
	f.FilePath = key
	f.ContentType = content.mimeType()

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateObject, key)
	}

	dup, err := s.repo.ExistsDuplicate(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: проверка дубликата: %v", ErrMetadataWriteFailed, err)
	}
	if dup {
		return nil, fmt.Errorf("%w: файл %q", ErrDuplicateMetadata, f.Filename)
	}

	size, err := s.store.Put(ctx, key, content.Reader)
	if err != nil {
		if !errors.Is(err, objectstore.ErrExist) {
			s.logger.Error("Ошибка записи объекта",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil, putFailure(err)
	}
	f.Size = size

	if err := s.repo.Create(ctx, f); err != nil {
		return nil, compensate(ctx, s.store, key, insertFailure(err), s.logger)
	}

	s.logger.Info("Файл загружен",
		slog.Int64("id", f.ID),
		slog.String("key", key),
		slog.Int64("size", size),
	)
	return f, nil
}

// Replace обновляет поля файла и, если передан content, заменяет объект
// по схеме «записать новый, обновить запись, удалить старый».
func (s *FileService) Replace(ctx context.Context, id int64, in FileInput, content *Content) (*model.File, error) {
	upd, err := s.validate(in, content, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := detach(ctx, s.cfg.OperationTimeout)
	defer cancel()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "файл %d", id)
	}

	f := *existing
	f.Uploader, f.Category, f.Date = upd.Uploader, upd.Category, upd.Date

	if content == nil {
		if err := s.repo.Update(ctx, &f); err != nil {
			return nil, insertFailure(err)
		}
		return &f, nil
	}

	newKey, err := objectstore.ReplaceKey(s.cfg.FilesPrefix, content.Name, s.now())
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "file", Message: err.Error()}}}
	}
	exists, err := s.store.Exists(ctx, newKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateObject, newKey)
	}

	size, err := s.store.Put(ctx, newKey, content.Reader)
	if err != nil {
		return nil, putFailure(err)
	}

	f.Filename = path.Base(newKey)
	f.FilePath = newKey
	f.Size = size
	f.ContentType = content.mimeType()

	if err := s.repo.Update(ctx, &f); err != nil {
		return nil, compensate(ctx, s.store, newKey, insertFailure(err), s.logger)
	}

	if existing.FilePath != "" && existing.FilePath != newKey {
		if err := s.store.Delete(ctx, existing.FilePath); err != nil {
			s.logger.Error("Не удалось удалить заменённый объект",
				slog.Int64("id", id),
				slog.String("key", existing.FilePath),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("Содержимое файла заменено",
		slog.Int64("id", id),
		slog.String("old_key", existing.FilePath),
		slog.String("new_key", newKey),
	)
	return &f, nil
}

// Delete удаляет объект файла, затем запись.
func (s *FileService) Delete(ctx context.Context, id int64) error {
	ctx, cancel := detach(ctx, s.cfg.OperationTimeout)
	defer cancel()

	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "файл %d", id)
	}

	if f.FilePath != "" {
		if err := s.store.Delete(ctx, f.FilePath); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageDeleteFailed, err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return insertFailure(err)
	}

	s.logger.Info("Файл удалён", slog.Int64("id", id), slog.String("key", f.FilePath))
	return nil
}

// Get возвращает файл и признак отсутствия его объекта.
func (s *FileService) Get(ctx context.Context, id int64) (*FileDetails, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "файл %d", id)
	}
	return &FileDetails{
		File:           f,
		MissingContent: contentState(ctx, s.store, f.FilePath, s.logger),
	}, nil
}

// Open открывает содержимое файла. Вызывающий код закрывает ReadCloser.
func (s *FileService) Open(ctx context.Context, id int64) (*model.File, io.ReadCloser, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, notFoundOr(err, "файл %d", id)
	}
	rc, err := openContent(ctx, s.store, f.FilePath)
	if err != nil {
		if errors.Is(err, ErrMissingContent) {
			s.logger.Warn("Объект файла отсутствует", slog.Int64("id", id), slog.String("key", f.FilePath))
		}
		return nil, nil, err
	}
	return f, rc, nil
}

// Search ищет файлы по подстроке в filename, uploader и category.
func (s *FileService) Search(ctx context.Context, term string, page, pageSize int) (*model.Page[*model.File], error) {
	page, pageSize, offset := normalizePage(page, pageSize)
	items, total, err := s.repo.Search(ctx, term, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска файлов: %w", err)
	}
	return &model.Page[*model.File]{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}
