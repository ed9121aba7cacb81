package commands

import (
	"log/slog"
	"time"

	"otelms-backend/internal/components/alert"
	"otelms-backend/internal/db"
	"otelms-backend/internal/export"
	"otelms-backend/internal/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	syncDate string
	syncDb   string
)

func init() {
	syncCmd.Flags().StringVar(&syncDate, "date", "", "The date (YYYY-MM-DD) to sync around, today by default.")
	syncCmd.Flags().StringVar(&syncDb, "db", "", "The database to write results to, the configured one by default.")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [--date YYYY-MM-DD] [--db <dsn>]",
	Short: "Syncs the calendar and its reservations to the database and output directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := syncDate
		if date == "" {
			date = today()
		}
		dsn := syncDb
		if dsn == "" {
			dsn = cfg.Database
		}

		store, err := db.Open(cmd.Context(), dsn, clock)
		if err != nil {
			return err
		}
		defer store.Close()

		scraper, err := startScraper(cmd.Context())
		if err != nil {
			return err
		}
		defer scraper.Close()

		syncer := service.NewSyncer(service.Options{
			Scraper:  scraper,
			Store:    store,
			Exporter: export.New(cfg.OutputDir),
			Alerts:   alert.New(cfg.Alerts.Smtp),
		}, tel)

		t1 := time.Now()
		result, err := syncer.Run(cmd.Context(), date)
		slog.Info("sync time", "seconds", time.Since(t1).Seconds())
		if err != nil {
			return err
		}

		t := newTable()
		t.SetTitle("Run " + result.RunID)
		t.AppendRows([]table.Row{
			{"Date", result.Date},
			{"Cells", result.Cells},
			{"Occupied", result.Occupied},
			{"Reservations", result.Reservations},
		})
		for _, file := range result.Files {
			t.AppendRow(table.Row{"File", file})
		}
		t.Render()
		return nil
	},
}
