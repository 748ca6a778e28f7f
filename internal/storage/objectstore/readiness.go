package objectstore

import (
	"context"
	"fmt"
	"time"
)

// ReadinessChecker — проверка доступности хранилища для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	store    Store
	checkKey string
	timeout  time.Duration
}

// NewReadinessChecker создаёт проверку, запрашивающую наличие ключа checkKey
// (обычно корень пространства имён). Отсутствие ключа не считается ошибкой.
func NewReadinessChecker(store Store, checkKey string, timeout time.Duration) *ReadinessChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ReadinessChecker{store: store, checkKey: checkKey, timeout: timeout}
}

// CheckReady возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.store.Exists(ctx, c.checkKey); err != nil {
		return "fail", fmt.Sprintf("хранилище %s недоступно: %v", c.store.Backend(), err)
	}
	return "ok", "хранилище " + c.store.Backend() + " доступно"
}
