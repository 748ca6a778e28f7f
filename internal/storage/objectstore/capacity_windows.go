//go:build windows

package objectstore

func diskCapacity(string) (int64, int64, error) {
	return 0, 0, ErrCapacityUnknown
}
