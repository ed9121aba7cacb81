package commands

import (
	"context"
	"fmt"
	"os"

	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/config"
	"otelms-backend/internal/scrapers/otelms"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var (
	configPath   string
	verbose      bool
	httpOnly     bool
	forceRefresh bool

	cfg          config.Config
	clock        chrono.API
	tel          telemetry.API
	shutdownOtlp func(context.Context) error
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.json5", "The config file to read.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log debug reports.")
	flags.BoolVar(&httpOnly, "http-only", false, "Fetch pages over plain http instead of a headless browser.")
	flags.BoolVar(&forceRefresh, "force-refresh", false, "Ignore cached pages.")
}

var rootCmd = &cobra.Command{
	Use:   "otelms-cli",
	Short: "otelms-cli reads the calendar and reservations of an OtelMS hotel.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if httpOnly {
			cfg.HttpOnly = true
		}

		telemetry.InitSlog(verbose || cfg.Debug)
		tel = telemetry.NewSlogAPI(nil)

		clock, err = chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			return err
		}

		shutdownOtlp, err = telemetry.SetupOtlp(cmd.Context(), "otelms-cli", cfg.Otlp, tel)
		if err != nil {
			return err
		}
		tel = telemetry.NewMeteredAPI(tel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownOtlp != nil {
			shutdownOtlp(context.Background())
		}
	},
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startScraper returns a scraper ready to be driven, callers must Close it.
func startScraper(ctx context.Context) (*otelms.Scraper, error) {
	scraper := otelms.New(cfg, otelms.Options{ForceRefresh: forceRefresh}, clock, tel)
	err := scraper.Start(ctx)
	if err != nil {
		return nil, err
	}
	return scraper, nil
}

func today() string {
	return clock.Now().Format(dateLayout)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func amount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
