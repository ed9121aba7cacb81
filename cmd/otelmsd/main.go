package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"otelms-backend/internal/api"
	"otelms-backend/internal/components/alert"
	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/config"
	"otelms-backend/internal/db"
	"otelms-backend/internal/export"
	"otelms-backend/internal/scrapers/otelms"
	"otelms-backend/internal/service"
	"otelms-backend/pkg/serviceutil"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	configPath := flag.String("config", "config.json5", "The config file to read.")
	syncOnStart := flag.Bool("sync-on-start", false, "Run a sync right away instead of waiting for the schedule.")
	flag.Parse()

	ctx, cancel := serviceutil.SignalContext()
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	tel, shutdown := InitTelemetry(ctx, cfg, *verbose)
	defer shutdown()

	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		serviceutil.Fatal("load timezone", err)
	}
	today := func() string {
		return clock.Now().Format("2006-01-02")
	}

	store, err := db.Open(ctx, cfg.Database, clock)
	if err != nil {
		serviceutil.Fatal("open db", err)
	}
	defer store.Close()

	scraper := otelms.New(cfg, otelms.Options{}, clock, tel)
	defer scraper.Close()

	syncer := service.NewSyncer(service.Options{
		Scraper:  scraper,
		Store:    store,
		Exporter: export.New(cfg.OutputDir),
		Alerts:   alert.New(cfg.Alerts.Smtp),
	}, tel)
	runSync := func() {
		result, err := syncer.Run(ctx, today())
		if err != nil {
			slog.Error("sync failed", "err", err)
			return
		}
		slog.Info("sync finished", "run", result.RunID, "cells", result.Cells, "reservations", result.Reservations)
	}

	cron := chrono.NewStandardCron(clock, tel)
	err = cron.Cron(cfg.Schedule, runSync)
	if err != nil {
		serviceutil.Fatal("schedule sync", err)
	}
	if *syncOnStart {
		go runSync()
	}

	router := api.NewRouter(store, syncer, today, tel)
	err = serviceutil.ServeHttp(ctx, cfg.Listen, router)
	if err != nil {
		serviceutil.Fatal("serve http", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	cron.Stop(stopCtx)
}
