package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bookline/whatsgate/internal/audit"
	"github.com/bookline/whatsgate/internal/config"
	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/health"
	"github.com/bookline/whatsgate/internal/notify"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/observability/metrics"
	"github.com/bookline/whatsgate/internal/routing"
	"github.com/bookline/whatsgate/internal/secrets"
	"github.com/bookline/whatsgate/internal/settings"
	"github.com/bookline/whatsgate/internal/store/postgres"
	"github.com/bookline/whatsgate/internal/tenant"
	"github.com/bookline/whatsgate/internal/whatsapp"
)

// app holds the wired gateway components
type app struct {
	repo        *settings.Repository
	directory   tenant.Directory
	tenants     *postgres.TenantRepository
	creds       *credential.Store
	validator   *credential.Validator
	router      *routing.Router
	service     *credential.Service
	monitor     *health.Monitor
	instruments *metrics.Instruments
	db          *postgres.DB
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{instruments: newInstruments(cfg)}
	auditLogger := audit.NewSlogLogger()

	var store settings.Store
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := openDB(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("connected to database")
		a.db = db
		a.tenants = postgres.NewTenantRepository(db)
		a.directory = a.tenants
		store = postgres.NewSettingsRepository(db)
	default:
		slog.Warn("using in-memory storage, state is lost on restart")
		a.directory = tenant.NewMemoryDirectory()
		store = settings.NewMemoryStore()
	}

	key, generated, err := secrets.ParseKey(cfg.Security.EncryptionKey)
	if err != nil {
		a.Close()
		return nil, err
	}
	if generated {
		if cfg.Database.Driver == config.DriverPostgres {
			a.Close()
			return nil, fmt.Errorf("ENCRYPTION_KEY is required with the %s driver", config.DriverPostgres)
		}
		slog.Warn("ENCRYPTION_KEY not set, using an ephemeral key")
	}
	codec, err := secrets.NewCodec(key)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.repo = settings.NewRepository(store)
	a.repo.SetHistoryLimit(cfg.Cache.HistoryLimit)
	a.creds = credential.NewStore(a.repo, codec)

	api := whatsapp.NewClient(whatsapp.Config{
		BaseURL: cfg.WhatsApp.BaseURL,
		Version: cfg.WhatsApp.APIVersion,
		Timeout: cfg.WhatsApp.ProbeTimeout,
		RPS:     cfg.WhatsApp.RPS,
		Burst:   cfg.WhatsApp.Burst,
	})
	a.validator = credential.NewValidator(a.creds, api, a.repo, credential.ValidatorConfig{
		CacheTTL:     cfg.Cache.CredentialTTL,
		ProbeTimeout: cfg.WhatsApp.ProbeTimeout,
	}, a.instruments)

	a.router = routing.NewRouter(a.directory, a.repo, a.creds, routing.Config{
		CacheTTL: cfg.Cache.PhoneTTL,
		PageSize: cfg.Cache.DirectoryPage,
	}, auditLogger)

	httpClient := notify.NewHTTPClient()
	dispatcher := notify.NewDispatcher([]notify.Sink{
		notify.NewEmailSink(notify.LogSender{From: cfg.Notifications.EmailFrom}),
		notify.NewWebhookSink(httpClient, cfg.Notifications.Issuer),
		notify.NewChatSink(httpClient),
	}, cfg.Notifications.Timeout, auditLogger, a.instruments)

	prefs, err := settings.NewCachedPreferences(a.repo, cfg.Cache.PreferenceTTL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.monitor = health.NewMonitor(a.directory, a.validator, prefs, dispatcher, health.Config{
		Interval:    cfg.Monitor.Interval,
		TickTimeout: cfg.Monitor.TickTimeout,
		Concurrency: cfg.Monitor.Concurrency,
		PageSize:    cfg.Cache.DirectoryPage,
		AfterTick:   a.pruneCaches,
	}, auditLogger, a.instruments)

	a.service = credential.NewService(a.creds, a.validator, a.repo, a.router, a.monitor, auditLogger)
	return a, nil
}

// pruneCaches drops expired cache entries after every monitor cycle
func (a *app) pruneCaches(ctx context.Context) {
	phones := a.router.PruneCache()
	results := a.validator.PruneCache()
	if phones > 0 || results > 0 {
		slog.DebugContext(ctx, "pruned caches",
			slog.Int("phone_entries", phones),
			slog.Int("validation_entries", results),
			logger.Component("cache"))
	}
}

// Close releases the database pool
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
