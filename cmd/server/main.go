package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmtrace/internal/config"
	"github.com/mamadbah2/farmtrace/internal/domain/allocation"
	"github.com/mamadbah2/farmtrace/internal/metrics"
	"github.com/mamadbah2/farmtrace/internal/repository/filestore"
	"github.com/mamadbah2/farmtrace/internal/repository/mongodb"
	"github.com/mamadbah2/farmtrace/internal/repository/postgres"
	"github.com/mamadbah2/farmtrace/internal/repository/sheets"
	"github.com/mamadbah2/farmtrace/internal/scheduler"
	"github.com/mamadbah2/farmtrace/internal/server/handlers"
	"github.com/mamadbah2/farmtrace/internal/server/router"
	commandsvc "github.com/mamadbah2/farmtrace/internal/service/commands"
	costingsvc "github.com/mamadbah2/farmtrace/internal/service/costing"
	whatsappsvc "github.com/mamadbah2/farmtrace/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/farmtrace/pkg/clients/whatsapp"
	"github.com/mamadbah2/farmtrace/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	mongoRepo, err := mongodb.NewMongoDBRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	var ledger costingsvc.LedgerStore = mongoRepo
	if cfg.Ledger.Backend == config.LedgerBackendPostgres {
		pgLedger, err := postgres.Open(context.Background(), cfg.Ledger.PostgresDSN)
		if err != nil {
			baseLogger.Fatal("failed to init postgres ledger", zap.Error(err))
		}
		defer func() { _ = pgLedger.Close() }()
		ledger = pgLedger
		baseLogger.Info("cost ledger stored in postgres")
	}

	var templates costingsvc.TemplateSource = mongoRepo
	if cfg.Costing.TemplatesPath != "" {
		templates = filestore.NewTemplateSource(cfg.Costing.TemplatesPath)
		baseLogger.Info("stage templates read from file", zap.String("path", cfg.Costing.TemplatesPath))
	}

	selection, err := allocation.ParseFieldSelection(cfg.Costing.FieldSelection)
	if err != nil {
		baseLogger.Fatal("invalid field selection", zap.Error(err))
	}

	recorder := metrics.NewRecorder()
	costingSvc := costingsvc.NewService(costingsvc.Dependencies{
		Batches:   mongoRepo,
		Templates: templates,
		Ledger:    ledger,
		Reports:   mongoRepo,
	}, costingsvc.Options{
		Engine:      allocation.New(allocation.WithFieldSelection(selection)),
		TemplateTTL: cfg.Costing.TemplateCacheTTL,
		Parallelism: cfg.Costing.Parallelism,
		Metrics:     recorder,
	}, baseLogger.Named("svc.costing"))

	deps := router.Dependencies{
		Costing: handlers.NewCostingHandler(costingSvc, baseLogger.Named("handlers.costing")),
		Metrics: recorder,
	}
	schedOpts := scheduler.Options{
		Schedule:   cfg.Costing.CronSchedule,
		Timezone:   cfg.Costing.Timezone,
		SheetRange: cfg.Sheets.CostRange,
	}

	if cfg.WhatsApp.Enabled() {
		dispatcher := commandsvc.NewService(costingSvc, baseLogger.Named("svc.commands"))
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsappclient.NewClient(cfg.WhatsApp), dispatcher, baseLogger.Named("svc.whatsapp"))
		deps.Messaging = handlers.NewMessagingHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
		schedOpts.Notifier = messagingSvc
	} else {
		baseLogger.Warn("whatsapp token missing, chat commands disabled")
	}

	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		schedOpts.Exporter = sheetsRepo
	}

	sched, err := scheduler.NewScheduler(costingSvc, schedOpts, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.New(deps, baseLogger.Named("router")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
