package model

import (
	"math"
	"time"
)

// StorageUsage — статистика использования объектного хранилища.
type StorageUsage struct {
	// Backend — тип хранилища (sftp, fs, s3)
	Backend string
	// FileCount — количество объектов
	FileCount int64
	// UsedBytes — суммарный размер объектов в байтах
	UsedBytes int64
	// CapacityKnown — true, если backend сообщает ёмкость тома
	CapacityKnown bool
	// TotalBytes — полная ёмкость тома (только при CapacityKnown)
	TotalBytes int64
	// FreeBytes — свободное место (только при CapacityKnown)
	FreeBytes int64
	// CollectedAt — время сбора статистики
	CollectedAt time.Time
}

// Единицы объёма (основание 1024). Используются во всех ответах API.
const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
	TiB int64 = 1 << 40
)

// InUnit переводит байты в единицу unit с округлением до сотых.
func InUnit(bytes, unit int64) float64 {
	v := float64(bytes) / float64(unit)
	return math.Round(v*100) / 100
}
