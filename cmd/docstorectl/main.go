// docstorectl — административная утилита docstore: миграции БД,
// просмотр следующего трекинг-кода, статистика и сверка хранилища.
// Конфигурация читается из тех же переменных окружения DS_*, что и у сервера.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/docstore/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docstorectl",
		Short: "Администрирование docstore",
		Long: `Администрирование docstore.

Использует переменные окружения DS_* сервера (БД и объектное хранилище).

Примеры:
  # Применить миграции
  docstorectl migrate

  # Показать следующий трекинг-код
  docstorectl next-code

  # Статистика хранилища
  docstorectl usage

  # Найти и удалить объекты без записей старше часа
  docstorectl reconcile --fix --grace 1h`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       config.Version,
	}

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newNextCodeCmd())
	rootCmd.AddCommand(newUsageCmd())
	rootCmd.AddCommand(newReconcileCmd())
	return rootCmd
}

// loadConfig читает конфигурацию и создаёт логгер в stderr,
// чтобы stdout оставался под результат команды.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return cfg, logger, nil
}
