//go:build !windows

package objectstore

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// diskCapacity возвращает общий и доступный объём файловой системы по пути.
// Доступный объём считается по Bavail (без зарезервированных блоков).
func diskCapacity(path string) (total, free int64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := int64(stat.Bsize) //nolint:unconvert // uint32 на darwin
	return int64(stat.Blocks) * bsize, int64(stat.Bavail) * bsize, nil
}
