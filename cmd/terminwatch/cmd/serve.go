package cmd

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"terminwatch/lib/serviceutil"
	"terminwatch/lib/siteprofile"
	"terminwatch/lib/sqliteutil"
	"terminwatch/lib/telemetry"
	"terminwatch/services/booking/prober"
	"terminwatch/services/bot"
	"terminwatch/services/notify"
	"terminwatch/services/scheduler"
	"terminwatch/services/watches"
	"terminwatch/services/watches/db"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the monitoring daemon: scheduler, prober and Telegram bot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("read config", err)
		}

		err = telemetry.SetupFromEnv(ctx, "terminwatch")
		if err != nil {
			slog.Warn("telemetry disabled", "err", err)
		} else {
			defer func() {
				err := telemetry.Shutdown(context.Background())
				if err != nil {
					slog.Warn("telemetry shutdown", "err", err)
				}
			}()
		}
		if verbose {
			telemetry.InstrumentPerfStats(ctx)
		}

		slog.Info("opening database...", "path", cfg.Database.Path)
		sqlite, err := sqliteutil.OpenDB(db.Schema, cfg.Database.Path)
		if err != nil {
			serviceutil.Fatal("open database", err)
		}
		defer sqlite.Close()

		store := watches.NewService(sqlite)
		err = store.SeedTargets(ctx, cfg.Targets)
		if err != nil {
			serviceutil.Fatal("seed targets", err)
		}

		profiles := siteprofile.Static(siteprofile.Default())
		if cfg.SiteProfile != "" {
			profiles, err = siteprofile.Watch(cfg.SiteProfile)
			if err != nil {
				serviceutil.Fatal("load site profile", err)
			}
		}

		var sinks []prober.Sink
		if cfg.Screenshots.Dir != "" {
			sinks = append(sinks, prober.FileSink{Dir: cfg.Screenshots.Dir})
		}
		if cfg.Screenshots.Endpoint != "" {
			sinks = append(sinks, prober.NewHTTPSink(cfg.Screenshots.Endpoint))
		}

		navTimeout, err := parseDuration(cfg.Browser.NavTimeout, 30*time.Second)
		if err != nil {
			serviceutil.Fatal("parse browser.nav_timeout", err)
		}
		probeTimeout, err := parseDuration(cfg.Browser.ProbeTimeout, 3*time.Minute)
		if err != nil {
			serviceutil.Fatal("parse browser.probe_timeout", err)
		}
		p := prober.New(prober.Options{
			Profiles:     profiles,
			ProbeTimeout: probeTimeout,
			NavTimeout:   navTimeout,
			Headless:     !cfg.Browser.Headful,
			Sinks:        sinks,
		})

		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			serviceutil.Fatal("init telegram bot", err)
		}
		slog.Info("authorized on telegram", "username", api.Self.UserName)

		transports := []notify.Transport{notify.NewTelegramTransport(api)}
		if cfg.Smtp.Server != "" {
			transports = append(transports, notify.NewEmailTransport(cfg.Smtp, "Terminwatch: Termine verfügbar"))
		}
		notifier := notify.NewService(store, transports)

		tick, err := parseDuration(cfg.Scheduler.Tick, 5*time.Minute)
		if err != nil {
			serviceutil.Fatal("parse scheduler.tick", err)
		}
		probeDelay, err := parseDuration(cfg.Scheduler.ProbeDelay, 2*time.Second)
		if err != nil {
			serviceutil.Fatal("parse scheduler.probe_delay", err)
		}
		sched := scheduler.New(store, p, notifier, scheduler.Options{
			Tick:       tick,
			ProbeDelay: probeDelay,
			Retain:     time.Duration(cfg.Scheduler.RetainDays) * 24 * time.Hour,
		})
		err = sched.Start(ctx)
		if err != nil {
			serviceutil.Fatal("start scheduler", err)
		}
		defer sched.Stop()

		bot.New(api, store, sched).Run(ctx)
		return nil
	},
}
