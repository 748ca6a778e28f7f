package handlers

import (
	"time"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// documentResponse — полное представление документа.
type documentResponse struct {
	ID             int64     `json:"id"`
	TrackingNumber string    `json:"trackingNumber"`
	Title          string    `json:"title"`
	Subject        string    `json:"subject"`
	Status         string    `json:"status"`
	DateUploaded   string    `json:"dateUploaded"`
	Deadline       string    `json:"deadline"`
	StoredName     string    `json:"storedName,omitempty"`
	ObjectPath     string    `json:"objectPath,omitempty"`
	Size           int64     `json:"size"`
	ContentType    string    `json:"contentType,omitempty"`
	MissingContent bool      `json:"missingContent,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// documentSummary — сокращённое представление для списка.
type documentSummary struct {
	ID             int64  `json:"id"`
	TrackingNumber string `json:"trackingNumber"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	Deadline       string `json:"deadline"`
	HasContent     bool   `json:"hasContent"`
}

// fileResponse — представление файла.
type fileResponse struct {
	ID             int64     `json:"id"`
	Filename       string    `json:"filename"`
	Uploader       string    `json:"uploader"`
	Category       string    `json:"category"`
	Date           string    `json:"date"`
	FilePath       string    `json:"filePath"`
	Size           int64     `json:"size"`
	ContentType    string    `json:"contentType,omitempty"`
	MissingContent bool      `json:"missingContent,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// pageResponse — страница результатов.
type pageResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// trackingCodeResponse — ответ generate-code.
type trackingCodeResponse struct {
	TrackingNumber string `json:"trackingNumber"`
}

// usageResponse — статистика хранилища. Байты всегда присутствуют,
// GB/TB рассчитываются по основанию 1024.
type usageResponse struct {
	Backend     string    `json:"backend"`
	FileCount   int64     `json:"fileCount"`
	UsedBytes   int64     `json:"usedBytes"`
	UsedGB      float64   `json:"usedGB"`
	UsedTB      float64   `json:"usedTB"`
	TotalBytes  *int64    `json:"totalBytes,omitempty"`
	FreeBytes   *int64    `json:"freeBytes,omitempty"`
	TotalGB     *float64  `json:"totalGB,omitempty"`
	FreeGB      *float64  `json:"freeGB,omitempty"`
	TotalTB     *float64  `json:"totalTB,omitempty"`
	FreeTB      *float64  `json:"freeTB,omitempty"`
	CollectedAt time.Time `json:"collectedAt"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}

func toDocumentResponse(d *model.Document, missing bool) documentResponse {
	return documentResponse{
		ID:             d.ID,
		TrackingNumber: d.TrackingNumber,
		Title:          d.Title,
		Subject:        d.Subject,
		Status:         d.Status,
		DateUploaded:   formatDate(d.DateUploaded),
		Deadline:       formatDate(d.Deadline),
		StoredName:     d.StoredName,
		ObjectPath:     d.ObjectPath,
		Size:           d.Size,
		ContentType:    d.ContentType,
		MissingContent: missing,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func toDocumentSummary(d *model.Document) documentSummary {
	return documentSummary{
		ID:             d.ID,
		TrackingNumber: d.TrackingNumber,
		Title:          d.Title,
		Status:         d.Status,
		Deadline:       formatDate(d.Deadline),
		HasContent:     d.HasContent(),
	}
}

func toFileResponse(f *model.File, missing bool) fileResponse {
	return fileResponse{
		ID:             f.ID,
		Filename:       f.Filename,
		Uploader:       f.Uploader,
		Category:       f.Category,
		Date:           formatDate(f.Date),
		FilePath:       f.FilePath,
		Size:           f.Size,
		ContentType:    f.ContentType,
		MissingContent: missing,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// toPage преобразует страницу моделей в страницу ответов.
func toPage[M any, T any](p *model.Page[M], conv func(M) T) pageResponse[T] {
	items := make([]T, 0, len(p.Items))
	for _, m := range p.Items {
		items = append(items, conv(m))
	}
	return pageResponse[T]{Items: items, Total: p.Total, Page: p.Page, PageSize: p.PageSize}
}

func toUsageResponse(u *model.StorageUsage) usageResponse {
	resp := usageResponse{
		Backend:     u.Backend,
		FileCount:   u.FileCount,
		UsedBytes:   u.UsedBytes,
		UsedGB:      model.InUnit(u.UsedBytes, model.GiB),
		UsedTB:      model.InUnit(u.UsedBytes, model.TiB),
		CollectedAt: u.CollectedAt,
	}
	if u.CapacityKnown {
		total, free := u.TotalBytes, u.FreeBytes
		totalGB, freeGB := model.InUnit(total, model.GiB), model.InUnit(free, model.GiB)
		totalTB, freeTB := model.InUnit(total, model.TiB), model.InUnit(free, model.TiB)
		resp.TotalBytes, resp.FreeBytes = &total, &free
		resp.TotalGB, resp.FreeGB = &totalGB, &freeGB
		resp.TotalTB, resp.FreeTB = &totalTB, &freeTB
	}
	return resp
}
