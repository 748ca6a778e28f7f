// Пакет model — доменные модели docstore.
// Document — маппинг таблицы documents, File — маппинг таблицы files.
package model

import "time"

// DateLayout — формат календарных дат во входных данных и ответах API.
const DateLayout = "2006-01-02"

// Document — запись документа с трекинг-кодом.
type Document struct {
	// ID — идентификатор, назначается репозиторием при создании
	ID int64
	// TrackingNumber — трекинг-код TRK-YYYYMMDD-NNNN, уникален и неизменяем
	TrackingNumber string
	// StoredName — имя, под которым объект сохранён в хранилище
	StoredName string
	// Title — заголовок документа
	Title string
	// Subject — тема документа
	Subject string
	// Status — статус документа (свободный текст)
	Status string
	// DateUploaded — дата загрузки (календарная)
	DateUploaded time.Time
	// Deadline — срок исполнения (календарная дата)
	Deadline time.Time
	// ObjectPath — ключ объекта в хранилище; пусто, если файл не прикреплён
	ObjectPath string
	// Size — размер объекта в байтах
	Size int64
	// ContentType — MIME-тип объекта
	ContentType string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// HasContent сообщает, прикреплён ли к документу файл.
func (d *Document) HasContent() bool {
	return d.ObjectPath != ""
}
