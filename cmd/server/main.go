// Copyright 2026 The Whatsgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bookline/whatsgate/internal/config"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/observability/metrics"
	"github.com/bookline/whatsgate/internal/observability/tracing"
	"github.com/bookline/whatsgate/internal/routing"
	"github.com/bookline/whatsgate/internal/store/postgres"
	transportHTTP "github.com/bookline/whatsgate/internal/transport/http"
	"github.com/bookline/whatsgate/internal/whatsapp"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	flagSet := pflag.NewFlagSet("whatsgate "+command, pflag.ContinueOnError)
	envFile := flagSet.String("env-file", "", "dotenv file to load (default: $WHATSGATE_ENV or .env)")

	var sub func(ctx context.Context, cfg *config.Config, a *app) error
	switch command {
	case "serve":
		sub = serve
	case "migrate":
		reset := flagSet.Bool("reset", false, "drop every gateway table before migrating")
		if err := flagSet.Parse(args); err != nil {
			return err
		}
		cfg, err := loadConfig(*envFile)
		if err != nil {
			return err
		}
		return runMigrate(cfg, *reset)
	case "tenant":
		return runTenant(flagSet, envFile, args)
	case "credentials":
		return runCredentials(flagSet, envFile, args)
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate, tenant or credentials)", command)
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return sub(ctx, cfg, a)
}

func loadConfig(envFile string) (*config.Config, error) {
	config.LoadEnv(envFile)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		Bridge:      cfg.Observability.OTELEnabled,
	})
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config, a *app) error {
	slog.Info("starting whatsgate webhook gateway", logger.String("db_driver", cfg.Database.Driver))

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   cfg.Observability.SamplingRate,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Insecure:       cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(context.Background())
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(a.router, transportHTTP.MessageHandlerFunc(logMessages), a.monitor, a.instruments)
	if a.db != nil {
		handler.AddCheck("database", a.db.Ping)
	}
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterConfig{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Timeout:      cfg.Server.WriteTimeout,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	if cfg.Monitor.Enabled {
		a.monitor.Start(monitorCtx)
	} else {
		slog.Warn("health monitor disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", logger.Error(err))
			stopMonitor()
			a.monitor.Stop()
			return err
		}
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	stopMonitor()
	a.monitor.Stop()

	slog.Info("server stopped")
	return nil
}

// logMessages is the default hand-off for routed webhooks. Message
// processing lives in the booking platform; the gateway only records the
// delivery.
func logMessages(ctx context.Context, route *routing.Route, payload *whatsapp.Payload) error {
	var messages, statuses int
	for _, e := range payload.Entry {
		for _, c := range e.Changes {
			if len(c.Value.Messages) > 0 {
				messages++
			}
			if len(c.Value.Statuses) > 0 {
				statuses++
			}
		}
	}
	slog.InfoContext(ctx, "webhook routed",
		logger.TenantID(route.Tenant.ID),
		logger.PhoneNumberID(route.PhoneNumberID),
		slog.Int("message_changes", messages),
		slog.Int("status_changes", statuses))
	return nil
}

func runMigrate(cfg *config.Config, reset bool) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires DB_DRIVER=%s", config.DriverPostgres)
	}

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema, reset); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,

		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func newInstruments(cfg *config.Config) *metrics.Instruments {
	meter := metrics.New(metrics.Config{
		Enabled:     cfg.Observability.OTELEnabled,
		ServiceName: cfg.Observability.ServiceName,
	})
	in, err := metrics.NewInstruments(meter)
	if err != nil {
		slog.Error("failed to create instruments", logger.Error(err))
		return metrics.NoopInstruments()
	}
	return in
}
