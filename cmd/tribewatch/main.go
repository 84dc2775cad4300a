// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package main is the entry point for the TribeWatch server.
//
// TribeWatch watches Tribal Wars worlds for conquests, building changes and
// kill-score increases and notifies subscribed destinations (Discord
// webhooks, generic webhooks, NATS subjects or the log).
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, config.yaml and environment (Koanf v2)
//  2. Logging: zerolog, bridged to slog for the supervisor
//  3. Database: DuckDB snapshot, baseline and journal store
//  4. Dedup ledger: BadgerDB (embedded) or Redis
//  5. NATS bus (optional): embedded server, JetStream stream, publisher
//  6. Dispatcher: renderer, pacer and sinks
//  7. Tracker loops: one reconciler and loop per enabled tracker kind
//  8. Loop controller and maintenance
//  9. HTTP server: admin API, health, metrics and the live stream
//
// # Commands
//
//	tribewatch                 run the server
//	tribewatch token <subject> print a bearer token for the admin API
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor tree stops the
// HTTP server, the tracker loops and the bus in order; services that do not
// stop within scheduler.shutdown_timeout are reported.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // notification timezones on minimal images

	"github.com/tomtom215/tribewatch/internal/api"
	"github.com/tomtom215/tribewatch/internal/auth"
	"github.com/tomtom215/tribewatch/internal/config"
	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/dedup"
	"github.com/tomtom215/tribewatch/internal/eventprocessor"
	"github.com/tomtom215/tribewatch/internal/feed"
	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/models"
	"github.com/tomtom215/tribewatch/internal/notify"
	"github.com/tomtom215/tribewatch/internal/reconcile"
	"github.com/tomtom215/tribewatch/internal/scheduler"
	"github.com/tomtom215/tribewatch/internal/supervisor"
	"github.com/tomtom215/tribewatch/internal/supervisor/services"
	ws "github.com/tomtom215/tribewatch/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.ConfigFrom(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Caller))

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "token":
			if err := runToken(cfg, os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\nusage: tribewatch [token <subject>]\n", os.Args[1])
			os.Exit(2)
		}
	}

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("TribeWatch stopped with an error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

// runToken prints a signed bearer token for subject.
func runToken(cfg *config.Config, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: tribewatch token <subject>")
	}
	manager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return err
	}
	token, err := manager.GenerateToken(args[0])
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

//nolint:gocyclo // sequential startup
func run(cfg *config.Config) error {
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("dedup_backend", cfg.Dedup.Backend).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("auth_enabled", cfg.Security.JWTSecret != "").
		Msg("Starting TribeWatch")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc, err := time.LoadLocation(cfg.Notify.Timezone)
	if err != nil {
		return fmt.Errorf("invalid notify.timezone %q: %w", cfg.Notify.Timezone, err)
	}

	// === DATA ===

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Info().Msg("Database initialized")

	ledger, err := dedup.New(&cfg.Dedup)
	if err != nil {
		return fmt.Errorf("failed to open dedup ledger: %w", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dedup ledger")
		}
	}()
	logging.Info().Str("backend", cfg.Dedup.Backend).Msg("Dedup ledger opened")

	feedClient := feed.New(&cfg.Feed)

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Scheduler))
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	hub := ws.NewHub()
	tree.AddMessagingService(hub)

	// === DELIVERY ===

	sinks := []notify.Sink{
		notify.NewDiscordSink(cfg.Notify.DeliveryTimeout, cfg.Notify.Username),
		notify.NewWebhookSink(cfg.Notify.DeliveryTimeout),
		notify.LogSink{},
	}

	var busHealth api.BusHealth
	if cfg.NATS.Enabled {
		bus, err := eventprocessor.Open(ctx, eventprocessor.SettingsFrom(&cfg.NATS))
		if err != nil {
			return fmt.Errorf("failed to open NATS bus: %w", err)
		}
		sinks = append(sinks, notify.NewBusSink(bus.Publisher()))
		tree.AddMessagingService(services.NewBusService(bus, cfg.Scheduler.ShutdownTimeout))
		busHealth = bus
		logging.Info().Str("url", bus.URL()).Msg("NATS bus added to supervisor tree")
	} else {
		logging.Info().Msg("NATS bus disabled (NATS_ENABLED=false), nats destinations will fail")
	}

	dispatcher, err := notify.NewDispatcher(notify.Deps{
		Journal:       db,
		Destinations:  db,
		Subscriptions: db.Subscriptions(),
		Ledger:        ledger,
		Renderer:      notify.NewRenderer(notify.NewCachedLookup(db, 4096, cfg.Notify.TagCacheTTL), loc, cfg.Notify.GameHost),
		Sinks:         notify.NewSinks(sinks...),
		Pacer:         notify.NewPacer(cfg.Notify.MinInterval),
		Observers:     []notify.Observer{hub},
	}, notify.Options{
		MaxAttempts:     cfg.Notify.MaxAttempts,
		DeliveryTimeout: cfg.Notify.DeliveryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// === TRACKERS ===

	controller := scheduler.NewController(db.Subscriptions(), tree, cfg.Scheduler.PollInterval, hub)
	for _, kind := range models.AllKinds() {
		tc := cfg.Trackers.ForKind(kind)
		if !tc.Enabled {
			logging.Info().Str("kind", string(kind)).Msg("Tracker disabled")
			continue
		}
		reconciler, err := reconcile.New(kind, reconcile.Deps{
			Snapshots: db,
			Baselines: db.Baselines(),
			Journal:   db,
			Feed:      feedClient,
		}, reconcile.Options{
			Cooldown:         tc.Cooldown,
			FallbackLookback: cfg.Feed.FallbackLookback,
			MaxLookback:      cfg.Feed.MaxLookback,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s reconciler: %w", kind, err)
		}
		controller.Register(scheduler.NewTrackerLoop(reconciler, dispatcher, db.Subscriptions(), scheduler.LoopConfig{
			Interval:         tc.Interval,
			WorldConcurrency: cfg.Scheduler.WorldConcurrency,
		}, hub))
	}
	tree.AddTrackerService(controller)

	maintenance := scheduler.NewMaintenance(db.Baselines(), db, db, ledger, scheduler.MaintenanceConfig{
		Interval:         cfg.Trackers.Maintenance.Interval,
		JournalRetention: cfg.Trackers.Maintenance.JournalRetention,
	})
	tree.AddDataService(maintenance)

	// === API ===

	var jwtManager *auth.JWTManager
	if cfg.Security.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			return fmt.Errorf("failed to create JWT manager: %w", err)
		}
	} else {
		logging.Warn().Msg("JWT_SECRET not set, admin API is unauthenticated")
	}

	handler := api.NewHandler(db, controller, hub, busHealth, cfg.Security)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Security)), jwtManager)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Scheduler.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === RUN ===

	logging.Info().Msg("Starting supervisor tree...")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	return nil
}
