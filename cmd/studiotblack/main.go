package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studiotblack/internal/access"
	"studiotblack/internal/api"
	"studiotblack/internal/booking"
	"studiotblack/internal/bot"
	"studiotblack/internal/cache"
	"studiotblack/internal/config"
	"studiotblack/internal/db"
	"studiotblack/internal/events"
	"studiotblack/internal/health"
	"studiotblack/internal/metrics"
	"studiotblack/internal/model"
	"studiotblack/internal/notify"
	"studiotblack/internal/postgres"
	"studiotblack/internal/reminders"
	"studiotblack/internal/report"
	"studiotblack/internal/service"
	"studiotblack/internal/sheets"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("STUDIOTBLACK_CONFIG_PATH"))
	if err != nil {
		fallback := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, &logger); err != nil {
		logger.Fatal().Err(err).Msg("studiotblack stopped with error")
	}
	logger.Info().Msg("studiotblack stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Logging.Format == "json" {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	loc := cfg.Location()
	checker := health.NewChecker(2 * time.Second)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()
	checker.Add("sqlite", database.PingContext)

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	candidates, err := catalog.Candidates()
	if err != nil {
		return fmt.Errorf("catalog slots: %w", err)
	}

	// With postgres the hosted tables own the catalog; the file only
	// provides the slot candidates.
	var store service.Store = database
	if cfg.Database.Driver == "postgres" {
		pg, err := postgres.Open(ctx, cfg.Database.PostgresURL, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		checker.Add("postgres", pg.Ping)
		store = pg
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb, err = cache.NewClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, continuing without it")
			rdb = nil
		} else {
			defer rdb.Close()
			checker.Add("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		}
	}

	var directory service.Catalog = store
	var cached *cache.CachedCatalog
	if rdb != nil && cfg.CacheTTL() > 0 {
		cached = cache.NewCachedCatalog(store, rdb, cfg.CacheTTL(), logger)
		directory = cached
	}

	bus := events.NewBus(logger)
	if cfg.Kafka.Enabled {
		writer, err := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return fmt.Errorf("kafka writer: %w", err)
		}
		publisher := events.NewKafkaPublisher(writer, logger)
		defer publisher.Close()
		bus.Subscribe(publisher.Handle, events.BookingTypes...)
	}

	var mirror *sheets.Mirror
	if cfg.Sheets.Enabled {
		client, err := sheets.NewClient(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
		if err != nil {
			return fmt.Errorf("sheets client: %w", err)
		}
		mirror = sheets.NewMirror(client, 0, logger)
		if err := mirror.EnsureHeader(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to write sheets header")
		}
		bus.Subscribe(mirror.Handle, events.BookingTypes...)
	}

	var tgAPI *tgbotapi.BotAPI
	if cfg.Telegram.Enabled {
		tgAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		tgAPI.Debug = cfg.Telegram.Debug
	}

	managers := make([]string, 0, len(cfg.Managers))
	for _, id := range cfg.Managers {
		managers = append(managers, model.TelegramUserID(id))
	}
	acc := access.NewService(database, managers, *logger)

	var (
		remSvc    *reminders.Service
		canceller service.ReminderCanceller
		scheduler booking.NotificationScheduler
		pending   service.PendingCounter
	)
	if cfg.Reminders.Enabled {
		router := &notify.Router{}
		if tgAPI != nil {
			router.Telegram = notify.NewTelegram(tgAPI)
		}
		if cfg.Push.Enabled {
			router.Push = notify.NewPush(cfg.Push.URL, cfg.Push.AccessToken, database, logger)
		}
		var notifier reminders.Notifier = router
		if tgAPI == nil && !cfg.Push.Enabled {
			notifier = &notify.Log{Logger: logger}
		}

		remCfg := reminders.DefaultConfig()
		remCfg.Offsets = cfg.ReminderOffsets()
		remCfg.Location = loc
		remCfg.PollInterval = cfg.ReminderPollInterval()
		remCfg.Retention = cfg.ReminderRetention()
		if cfg.Reminders.RatePerSecond > 0 {
			remCfg.RatePerSecond = cfg.Reminders.RatePerSecond
		}
		remSvc = reminders.NewService(remCfg, reminders.Deps{
			Repo:      database,
			Settings:  database,
			Directory: directory,
			Notifier:  notifier,
			Logger:    logger,
		})
		canceller, scheduler, pending = remSvc, remSvc, remSvc
	}

	bookings := service.NewBookings(service.Deps{
		Store:     store,
		Catalog:   directory,
		Reminders: canceller,
		Events:    bus,
		Access:    acc,
		Logger:    logger,
	}, service.Options{CancelReminders: cfg.CancelRemindersOnBookingCancel()})

	flowOpts := booking.Options{
		Candidates:          candidates,
		Location:            loc,
		MinAdvance:          cfg.BookingMinAdvance(),
		RespectWorkingHours: cfg.Booking.RespectWorkingHours,
	}
	var snapshots booking.SnapshotStore = booking.NewMemorySnapshots()
	if rdb != nil {
		snapshots = booking.NewFailoverSnapshots(booking.NewRedisSnapshots(rdb), snapshots, logger)
	}
	sessions := booking.NewSessionStore(func() *booking.Flow {
		return booking.NewFlow(booking.Deps{
			Directory:     bookings,
			Schedule:      bookings,
			Bookings:      bookings,
			Notifications: scheduler,
			Logger:        logger,
		}, flowOpts)
	}, snapshots, cfg.SessionTimeout(), logger)

	lc, lctx := newLifecycle(ctx)
	defer lc.stop()
	g, gctx := errgroup.WithContext(lctx)

	if mirror != nil {
		mirror.Start(gctx)
		lc.add(mirror.Wait)
	}
	if remSvc != nil {
		remSvc.Start(gctx)
		lc.add(remSvc.Stop)
	}
	if cfg.Reports.Enabled && tgAPI == nil {
		logger.Warn().Msg("monthly reports need telegram, scheduler not started")
	}
	if cfg.Reports.Enabled && tgAPI != nil {
		// Pruning only applies to the local database; hosted tables keep
		// their own history.
		var cleaner report.Cleaner
		if cfg.Database.Driver == "sqlite" {
			cleaner = database
		}
		monthly := report.NewScheduler(report.SchedulerConfig{
			Location:      loc,
			Retention:     cfg.ReportRetention(),
			ExportOnStart: cfg.Reports.ExportOnStart,
		}, bookings, notify.NewDocuments(tgAPI, cfg.Managers), cleaner, logger)
		monthly.Start(gctx)
		lc.add(monthly.Stop)
	}

	// WatchCatalog applies the current file once and polls in the background.
	err = config.WatchCatalog(gctx, cfg.CatalogPath, cfg.CatalogPollInterval(), logger, func(cat *config.Catalog) {
		if cfg.Database.Driver == "sqlite" {
			if err := database.SyncCatalog(gctx, cat); err != nil {
				logger.Error().Err(err).Msg("catalog resync failed")
				return
			}
		}
		if cached != nil {
			if err := cached.Invalidate(gctx); err != nil {
				logger.Warn().Err(err).Msg("catalog cache invalidation failed")
			}
		}
		logger.Info().Int("services", len(cat.Services)).Int("professionals", len(cat.Professionals)).Msg("catalog applied")
	})
	if err != nil {
		return fmt.Errorf("watch catalog: %w", err)
	}

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := sessions.Cleanup(); n > 0 {
					logger.Debug().Int("removed", n).Msg("expired booking sessions removed")
				}
			}
		}
	})

	if cfg.Backup.Enabled && cfg.Database.Driver == "sqlite" {
		backups := db.NewBackupService(database, db.BackupOptions{
			Enabled:   true,
			Dir:       cfg.Backup.Path,
			Interval:  cfg.BackupInterval(),
			Retention: cfg.BackupRetention(),
		}, logger)
		g.Go(func() error {
			backups.Start(gctx)
			return nil
		})
	}

	healthPort := cfg.Monitoring.HealthCheckPort
	if healthPort == 0 {
		healthPort = 8090
	}
	g.Go(func() error {
		health.ServeHTTP(gctx, fmt.Sprintf(":%d", healthPort), checker.Handler(), logger)
		return nil
	})
	if cfg.Monitoring.GRPCHealthPort > 0 {
		grpcHealth := health.NewGRPC(checker, 0, logger)
		g.Go(func() error {
			return grpcHealth.Serve(gctx, fmt.Sprintf(":%d", cfg.Monitoring.GRPCHealthPort))
		})
	}

	if cfg.Monitoring.PrometheusEnabled {
		port := cfg.Monitoring.PrometheusPort
		if port == 0 {
			port = 9090
		}
		metrics.Register()
		g.Go(func() error {
			startMetricsServer(gctx, port, logger)
			return nil
		})
	}

	if cfg.API.Enabled {
		port := cfg.API.Port
		if port == 0 {
			port = 8080
		}
		srv := api.NewHTTPServer(api.Deps{
			Bookings: bookings,
			Sessions: sessions,
			Access:   acc,
			Devices:  database,
			Settings: database,
			Pending:  pending,
			Health:   checker.Handler(),
			Logger:   logger,
		}, api.Config{
			JWTSecret:      cfg.API.JWTSecret,
			RateLimit:      cfg.API.RateLimit,
			RateBurst:      cfg.API.RateBurst,
			TrustedProxies: cfg.API.TrustedProxies,
			FlowOptions:    flowOpts,
			Location:       loc,
		})
		g.Go(func() error {
			return srv.Serve(gctx, fmt.Sprintf(":%d", port))
		})
	}

	if tgAPI != nil {
		b, err := bot.New(tgAPI, bot.Deps{
			Bookings: bookings,
			Sessions: sessions,
			Access:   acc,
			Settings: database,
			Pending:  pending,
			Logger:   logger,
		}, bot.Rules{MaxAdvance: cfg.BookingMaxAdvance(), Location: loc})
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		g.Go(func() error {
			b.Start(gctx)
			return nil
		})
	}

	logger.Info().
		Str("store", cfg.Database.Driver).
		Bool("telegram", tgAPI != nil).
		Bool("api", cfg.API.Enabled).
		Bool("reminders", remSvc != nil).
		Bool("reports", cfg.Reports.Enabled && tgAPI != nil).
		Msg("studiotblack started")
	return g.Wait()
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
