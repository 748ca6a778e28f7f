package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigkaa/docstore/internal/config"
)

func TestNewDephealthService_NothingToMonitor(t *testing.T) {
	ds, err := NewDephealthServiceWithRegisterer(&config.Config{}, nil, testLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds != nil {
		t.Fatal("без зависимостей ожидали nil")
	}

	// Методы nil-сервиса безопасны
	if err := ds.Start(context.Background()); err != nil {
		t.Errorf("Start() на nil вернул ошибку: %v", err)
	}
	if h := ds.Health(); len(h) != 0 {
		t.Errorf("Health() на nil = %v", h)
	}
	ds.Stop()
}

func TestDephealthService_JWKS(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer mockServer.Close()

	cfg := &config.Config{
		JWTJWKSURL:             mockServer.URL + "/realms/docstore/protocol/openid-connect/certs",
		DephealthCheckInterval: time.Second,
	}
	ds, err := NewDephealthServiceWithRegisterer(cfg, nil, testLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds == nil {
		t.Fatal("DephealthService nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	defer ds.Stop()

	// Интервал 1s + запас на первую проверку
	time.Sleep(3 * time.Second)

	found := false
	for key, ok := range ds.Health() {
		if strings.HasPrefix(key, "jwks:") {
			found = true
			if !ok {
				t.Errorf("jwks health = false для ключа %q", key)
			}
		}
	}
	if !found {
		t.Errorf("нет записи jwks в Health(): %v", ds.Health())
	}
}

func TestPostgresURL(t *testing.T) {
	cfg := &config.Config{DBHost: "db.local", DBPort: 5432, DBName: "docstore", DBUser: "u", DBPassword: "secret"}
	got := postgresURL(cfg)
	if got != "postgres://db.local:5432/docstore" {
		t.Errorf("postgresURL() = %q", got)
	}
	if strings.Contains(got, "secret") {
		t.Error("URL не должен содержать пароль")
	}
}
