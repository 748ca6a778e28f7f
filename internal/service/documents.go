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

// DocumentInput — поля документа из запроса.
type DocumentInput struct {
	Title        string
	Subject      string
	Status       string
	DateUploaded string
	Deadline     string
}

// DocumentDetails — документ с признаком отсутствующего содержимого.
type DocumentDetails struct {
	Document *model.Document
	// MissingContent — запись ссылается на объект, которого нет в хранилище
	MissingContent bool
}

// DocumentService — загрузка, замена, удаление и поиск документов.
type DocumentService struct {
	cfg    *config.Config
	repo   repository.DocumentRepository
	store  objectstore.Store
	seq    *Sequencer
	logger *slog.Logger
	now    func() time.Time
}

// NewDocumentService создаёт сервис документов.
func NewDocumentService(
	cfg *config.Config,
	repo repository.DocumentRepository,
	store objectstore.Store,
	seq *Sequencer,
	logger *slog.Logger,
) *DocumentService {
	return &DocumentService{
		cfg:    cfg,
		repo:   repo,
		store:  store,
		seq:    seq,
		logger: logger.With(slog.String("component", "document_service")),
		now:    time.Now,
	}
}

func (s *DocumentService) validate(in DocumentInput, content *Content) (*model.Document, error) {
	var v validator
	d := &model.Document{
		Title:        checkText(&v, "title", in.Title),
		Subject:      checkText(&v, "subject", in.Subject),
		Status:       checkText(&v, "status", in.Status),
		DateUploaded: checkDate(&v, "dateUploaded", in.DateUploaded),
		Deadline:     checkDate(&v, "deadline", in.Deadline),
	}
	if content != nil {
		checkContent(&v, content, s.cfg.MaxUploadSize, false)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return d, nil
}

// NextCode возвращает трекинг-код, который получит следующий документ.
func (s *DocumentService) NextCode(ctx context.Context) (string, error) {
	return s.seq.NextCode(ctx, s.now())
}

// Upload создаёт документ; content может быть nil.
//
// Поток:
//  1. Валидация полей и содержимого
//  2. Проверка отсутствия объекта под ключом (DuplicateObject)
//  3. Проверка дубликата полей в БД (DuplicateMetadata)
//  4. Запись объекта (StorageWriteFailed)
//  5. Выдача трекинг-кода и вставка записи под мьютексом дня
//
// При ошибке шага 5 записанный объект удаляется.
func (s *DocumentService) Upload(ctx context.Context, in DocumentInput, content *Content) (*model.Document, error) {
	d, err := s.validate(in, content)
	if err != nil {
		return nil, err
	}

	ctx, cancel := detach(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var key string
	if content != nil {
		key, err = objectstore.CreateKey(s.cfg.DocumentsPrefix, content.Name)
		if err != nil {
			return nil, &ValidationError{Fields: []FieldError{{Field: "file", Message: err.Error()}}}
		}
		d.StoredName = path.Base(key)
		d.ObjectPath = key
		d.ContentType = content.mimeType()

		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateObject, key)
		}
	}

	dup, err := s.repo.ExistsDuplicate(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("%w: проверка дубликата: %v", ErrMetadataWriteFailed, err)
	}
	if dup {
		return nil, fmt.Errorf("%w: документ %q", ErrDuplicateMetadata, d.Title)
	}

	if content != nil {
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
		d.Size = size
	}

	_, err = s.seq.Assign(ctx, s.now(), func(ctx context.Context, code string) error {
		d.TrackingNumber = code
		return s.repo.Create(ctx, d)
	})
	if err != nil {
		cause := insertFailure(err)
		if key != "" {
			cause = compensate(ctx, s.store, key, cause, s.logger)
		}
		return nil, cause
	}

	s.logger.Info("Документ загружен",
		slog.Int64("id", d.ID),
		slog.String("tracking_number", d.TrackingNumber),
		slog.String("key", d.ObjectPath),
		slog.Int64("size", d.Size),
	)
	return d, nil
}

// Replace обновляет поля документа и, если передан content, заменяет объект.
// Новый объект записывается под новым ключом до удаления старого; при ошибке
// обновления записи новый объект удаляется, старый остаётся нетронутым.
func (s *DocumentService) Replace(ctx context.Context, id int64, in DocumentInput, content *Content) (*model.Document, error) {
	upd, err := s.validate(in, content)
	if err != nil {
		return nil, err
	}

	ctx, cancel := detach(ctx, s.cfg.OperationTimeout)
	defer cancel()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "документ %d", id)
	}

	d := *existing
	d.Title, d.Subject, d.Status = upd.Title, upd.Subject, upd.Status
	d.DateUploaded, d.Deadline = upd.DateUploaded, upd.Deadline

	if content == nil {
		if err := s.repo.Update(ctx, &d); err != nil {
			return nil, insertFailure(err)
		}
		return &d, nil
	}

	newKey, err := objectstore.ReplaceKey(s.cfg.DocumentsPrefix, content.Name, s.now())
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

	d.ObjectPath = newKey
	d.StoredName = path.Base(newKey)
	d.Size = size
	d.ContentType = content.mimeType()

	if err := s.repo.Update(ctx, &d); err != nil {
		return nil, compensate(ctx, s.store, newKey, insertFailure(err), s.logger)
	}

	if existing.ObjectPath != "" && existing.ObjectPath != newKey {
		if err := s.store.Delete(ctx, existing.ObjectPath); err != nil {
			s.logger.Error("Не удалось удалить заменённый объект",
				slog.Int64("id", id),
				slog.String("key", existing.ObjectPath),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("Содержимое документа заменено",
		slog.Int64("id", id),
		slog.String("old_key", existing.ObjectPath),
		slog.String("new_key", newKey),
	)
	return &d, nil
}

// Delete удаляет объект документа, затем запись.
// Если объект удалить не удалось, запись сохраняется.
func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	ctx, cancel := detach(ctx, s.cfg.OperationTimeout)
	defer cancel()

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "документ %d", id)
	}

	if d.ObjectPath != "" {
		if err := s.store.Delete(ctx, d.ObjectPath); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageDeleteFailed, err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return insertFailure(err)
	}

	s.logger.Info("Документ удалён",
		slog.Int64("id", id),
		slog.String("tracking_number", d.TrackingNumber),
	)
	return nil
}

// Get возвращает документ и признак отсутствия его объекта.
func (s *DocumentService) Get(ctx context.Context, id int64) (*DocumentDetails, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "документ %d", id)
	}
	return &DocumentDetails{
		Document:       d,
		MissingContent: contentState(ctx, s.store, d.ObjectPath, s.logger),
	}, nil
}

// Open открывает содержимое документа. Вызывающий код закрывает ReadCloser.
func (s *DocumentService) Open(ctx context.Context, id int64) (*model.Document, io.ReadCloser, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, notFoundOr(err, "документ %d", id)
	}
	rc, err := openContent(ctx, s.store, d.ObjectPath)
	if err != nil {
		if errors.Is(err, ErrMissingContent) {
			s.logger.Warn("Объект документа отсутствует",
				slog.Int64("id", id),
				slog.String("key", d.ObjectPath),
			)
		}
		return nil, nil, err
	}
	return d, rc, nil
}

// Search ищет документы по подстроке в tracking_number, title, subject,
// status и stored_name. Пустой term — все документы.
func (s *DocumentService) Search(ctx context.Context, term string, page, pageSize int) (*model.Page[*model.Document], error) {
	page, pageSize, offset := normalizePage(page, pageSize)
	items, total, err := s.repo.Search(ctx, term, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска документов: %w", err)
	}
	return &model.Page[*model.Document]{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}
