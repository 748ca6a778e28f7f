package objectstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/docstore/internal/resilience"
)

// flakyStore — Store, первые failures вызовов Put/Exists которого падают.
type flakyStore struct {
	*FSStore
	failures    int
	putCalls    int
	existsCalls int
}

func (f *flakyStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	f.putCalls++
	if f.putCalls <= f.failures {
		_, _ = io.ReadAll(io.LimitReader(r, 3))
		return 0, errors.New("connection reset by peer")
	}
	return f.FSStore.Put(ctx, key, r)
}

func (f *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	f.existsCalls++
	if f.existsCalls <= f.failures {
		return false, errors.New("connection reset by peer")
	}
	return f.FSStore.Exists(ctx, key)
}

func newTestExecutor(attempts int) *resilience.Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerMaxFailures:  3,
		BreakerOpenTimeout:  time.Minute,
	}, logger)
}

func TestResilient_RetriesSeekablePut(t *testing.T) {
	inner := &flakyStore{FSStore: NewMemStore(), failures: 1}
	store := NewResilient(inner, newTestExecutor(3))

	n, err := store.Put(context.Background(), "docs/a.pdf", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Put() вернул ошибку: %v", err)
	}
	if n != 7 || inner.putCalls != 2 {
		t.Errorf("n = %d, вызовов Put = %d; ожидали 7 и 2", n, inner.putCalls)
	}

	rc, err := store.Open(context.Background(), "docs/a.pdf")
	if err != nil {
		t.Fatalf("Open() вернул ошибку: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "content" {
		t.Errorf("после повтора содержимое = %q, ожидали полное", data)
	}
}

func TestResilient_NoRetryForStreamPut(t *testing.T) {
	inner := &flakyStore{FSStore: NewMemStore(), failures: 1}
	store := NewResilient(inner, newTestExecutor(3))

	// io.MultiReader не поддерживает Seek
	_, err := store.Put(context.Background(), "docs/a.pdf", io.MultiReader(strings.NewReader("content")))
	if err == nil {
		t.Fatal("ожидали ошибку без повтора")
	}
	if inner.putCalls != 1 {
		t.Errorf("вызовов Put = %d, ожидали 1", inner.putCalls)
	}
}

func TestResilient_NotExistIsNotFailure(t *testing.T) {
	store := NewResilient(NewMemStore(), newTestExecutor(1))

	for i := 0; i < 5; i++ {
		if _, err := store.Size(context.Background(), "docs/missing.pdf"); !errors.Is(err, ErrNotExist) {
			t.Fatalf("ожидали ErrNotExist, получили %v", err)
		}
	}
	// Breaker не разомкнулся
	if _, err := store.Put(context.Background(), "docs/ok.pdf", strings.NewReader("x")); err != nil {
		t.Errorf("Put() после промахов вернул ошибку: %v", err)
	}
}

func TestResilient_ExistIsNotRetried(t *testing.T) {
	inner := &flakyStore{FSStore: NewMemStore()}
	store := NewResilient(inner, newTestExecutor(3))

	if _, err := store.Put(context.Background(), "docs/a.pdf", strings.NewReader("first")); err != nil {
		t.Fatalf("Put() вернул ошибку: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := store.Put(context.Background(), "docs/a.pdf", strings.NewReader("second")); !errors.Is(err, ErrExist) {
			t.Fatalf("ожидали ErrExist, получили %v", err)
		}
	}
	if inner.putCalls != 6 {
		t.Errorf("вызовов Put = %d, ожидали 6 (без повторов)", inner.putCalls)
	}
	// Breaker не разомкнулся
	if _, err := store.Put(context.Background(), "docs/b.pdf", strings.NewReader("x")); err != nil {
		t.Errorf("Put() после отказов ErrExist вернул ошибку: %v", err)
	}
}

func TestResilient_CircuitOpens(t *testing.T) {
	inner := &flakyStore{FSStore: NewMemStore(), failures: 100}
	store := NewResilient(inner, newTestExecutor(1))

	for i := 0; i < 3; i++ {
		_, _ = store.Exists(context.Background(), "docs/a.pdf")
	}
	calls := inner.existsCalls

	_, err := store.Exists(context.Background(), "docs/a.pdf")
	if !resilience.IsCircuitOpen(err) {
		t.Fatalf("ожидали разомкнутый breaker, получили %v", err)
	}
	if inner.existsCalls != calls {
		t.Error("при разомкнутом breaker вызов дошёл до хранилища")
	}
}

func TestResilient_Capacity(t *testing.T) {
	store := NewResilient(NewMemStore(), newTestExecutor(1))
	if _, _, err := store.Capacity(context.Background()); !errors.Is(err, ErrCapacityUnknown) {
		t.Errorf("ожидали ErrCapacityUnknown, получили %v", err)
	}
	if store.Backend() != "fs" {
		t.Errorf("Backend() = %q", store.Backend())
	}
}
