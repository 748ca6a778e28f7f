package model

import "time"

// File — запись файла в независимом от документов пространстве имён.
// В отличие от Document, файл всегда имеет объект в хранилище.
type File struct {
	// ID — идентификатор, назначается репозиторием при создании
	ID int64
	// Filename — имя, под которым объект сохранён в хранилище
	Filename string
	// Uploader — кто загрузил файл
	Uploader string
	// Category — категория файла
	Category string
	// Date — дата, указанная при загрузке (календарная)
	Date time.Time
	// FilePath — ключ объекта в хранилище
	FilePath string
	// Size — размер объекта в байтах
	Size int64
	// ContentType — MIME-тип объекта
	ContentType string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
