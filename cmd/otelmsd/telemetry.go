package main

import (
	"context"

	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/config"
	"otelms-backend/pkg/serviceutil"
)

func InitTelemetry(ctx context.Context, cfg config.Config, verbose bool) (telemetry.API, func()) {
	telemetry.InitSlog(verbose || cfg.Debug)
	var tel telemetry.API = telemetry.NewSlogAPI(nil)

	shutdown, err := telemetry.SetupOtlp(ctx, "otelmsd", cfg.Otlp, tel)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	tel = telemetry.NewMeteredAPI(tel)
	telemetry.InstrumentPerfStats(ctx, tel)

	return tel, func() {
		shutdown(context.Background())
	}
}
