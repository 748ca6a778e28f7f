package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/docstore/internal/bootstrap"
	"github.com/bigkaa/docstore/internal/database"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/service"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции БД",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := database.Migrate(cfg, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Миграции применены")
			return nil
		},
	}
}

func newNextCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-code",
		Short: "Показать следующий трекинг-код (без резервирования)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := bootstrap.OpenDatabase(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			seq := service.NewSequencer(db.Documents, cfg.TimeZone, cfg.SequencerMaxAttempts, logger)
			code, err := seq.NextCode(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func newUsageCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Статистика использования объектного хранилища",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := bootstrap.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			usage, err := service.NewUsageService(store, []string{cfg.DocumentsPrefix, cfg.FilesPrefix}, 0, logger).
				Usage(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), usage)
			}
			printUsage(cmd.OutOrStdout(), usage)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Вывод в JSON")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	var (
		fix    bool
		grace  time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить объектное хранилище с записями БД",
		Long: `Сверить объектное хранилище с записями БД.

Выводит объекты без записей (сироты) и записи, объект которых отсутствует.
С флагом --fix удаляет сирот старше --grace.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("grace") {
				grace = cfg.ReconcileGracePeriod
			}

			db, err := bootstrap.OpenDatabase(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			store, err := bootstrap.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			rs := service.NewReconcileService(store, db.Documents, db.Files,
				cfg.DocumentsPrefix, cfg.FilesPrefix, grace, logger)
			report, _, err := rs.RunOnce(cmd.Context(), fix)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report, fix)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Удалить объекты-сироты")
	cmd.Flags().DurationVar(&grace, "grace", time.Hour, "Минимальный возраст удаляемого объекта (по умолчанию DS_RECONCILE_GRACE_PERIOD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Вывод в JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(w io.Writer, u *model.StorageUsage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Backend:\t%s\n", u.Backend)
	fmt.Fprintf(tw, "Объектов:\t%d\n", u.FileCount)
	fmt.Fprintf(tw, "Занято:\t%d байт (%.2f GB)\n", u.UsedBytes, model.InUnit(u.UsedBytes, model.GiB))
	if u.CapacityKnown {
		fmt.Fprintf(tw, "Ёмкость:\t%d байт (%.2f GB)\n", u.TotalBytes, model.InUnit(u.TotalBytes, model.GiB))
		fmt.Fprintf(tw, "Свободно:\t%d байт (%.2f GB)\n", u.FreeBytes, model.InUnit(u.FreeBytes, model.GiB))
	} else {
		fmt.Fprintf(tw, "Ёмкость:\tнеизвестна\n")
	}
	_ = tw.Flush()
}

func printReport(w io.Writer, r *service.ReconcileReport, fix bool) {
	fmt.Fprintf(w, "Объектов: %d, записей: %d, длительность: %s\n",
		r.ObjectsScanned, r.RecordsScanned, r.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(r.Orphans) > 0 {
		fmt.Fprintf(w, "\nОбъекты без записей (%d):\n", len(r.Orphans))
		fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
		for _, o := range r.Orphans {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.ModTime.Format(time.RFC3339))
		}
		_ = tw.Flush()
	}
	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "\nЗаписи без объектов (%d):\n", len(r.Missing))
		fmt.Fprintln(tw, "KIND\tID\tKEY")
		for _, m := range r.Missing {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", m.Kind, m.ID, m.Key)
		}
		_ = tw.Flush()
	}
	if fix {
		fmt.Fprintf(w, "\nУдалено объектов: %d\n", len(r.Deleted))
	}
	if len(r.Orphans) == 0 && len(r.Missing) == 0 {
		fmt.Fprintln(w, "Расхождений не найдено")
	}
}
