package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/ai"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/database"
	"github.com/smada/genius-backend/internal/handler"
	"github.com/smada/genius-backend/internal/logger"
	"github.com/smada/genius-backend/internal/repository"
	"github.com/smada/genius-backend/internal/router"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/session"
	"github.com/smada/genius-backend/internal/store"
	"github.com/smada/genius-backend/internal/validator"
	"github.com/smada/genius-backend/internal/worker"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Bool("cloud", cfg.CloudEnabled).
		Msg("Starting SMADA Genius Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportCfg, err := config.LoadReportConfig(cfg.ReportConfigFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.ReportConfigFile).Msg("Failed to load report config")
	}

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to PostgreSQL (cloud store) ───────────────────────────
	// An unreachable database is not fatal: the service starts in local mode.
	var pool *pgxpool.Pool
	if cfg.CloudEnabled {
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("PostgreSQL unreachable, starting in local mode")
			pool = nil
		} else {
			defer pool.Close()
		}
	}

	// ─── Initialize Stores & Repositories ──────────────────────────────
	local := store.NewRedisCache(rdb, log)
	var remote store.Repository
	var violationRepo *repository.ViolationRepository
	if pool != nil {
		remote = store.NewPostgresDocument(pool, cfg.DocumentID, log)
		violationRepo = repository.NewViolationRepository(pool)
	}

	aiClient, err := ai.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		log.Warn().Err(err).Msg("AI client unavailable, generator disabled")
		aiClient, _ = ai.New(ctx, "", cfg.GeminiModel, log)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	registry := session.NewRegistry()
	dataService := service.NewDataService(local, remote, log)
	defer dataService.Close()

	studentService := service.NewStudentService(dataService, registry, log)
	authService := service.NewAuthService(cfg, studentService, log)
	examService := service.NewExamService(dataService, registry, rdb, log)
	resultService := service.NewResultService(dataService, rdb, log)
	submissionService := service.NewSubmissionService(dataService, log)
	reportService := service.NewReportService(dataService, resultService, aiClient, reportCfg, log)
	monitorService := service.NewMonitorService(rdb, violationRepo, registry, log)
	sessionService := service.NewSessionService(examService, resultService, monitorService, registry, cfg.SessionTick, log)
	generatorService := service.NewGeneratorService(aiClient, log)

	// ─── Load Dataset ─────────────────────────────────────────────────
	if err := dataService.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}
	if err := studentService.SeedDefaults(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to seed default students")
	}
	if err := resultService.RebuildMarkers(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to rebuild completion markers")
	}
	if err := dataService.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("Change feed unavailable")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, studentService),
		StudentPortal: handler.NewStudentPortalHandler(sessionService, studentService, resultService, reportService, submissionService),
		StudentMgmt:   handler.NewStudentManagementHandler(studentService, log),
		Exam:          handler.NewExamHandler(examService, resultService, studentService, sessionService, monitorService, log),
		Submission:    handler.NewSubmissionHandler(submissionService),
		Report:        handler.NewReportHandler(reportService, resultService),
		Generator:     handler.NewGeneratorHandler(generatorService, log),
		WS:            handler.NewWSHandler(sessionService, studentService, log, cfg.AllowedOrigins),
		Monitor:       handler.NewMonitorHandler(examService, monitorService, log),
		System:        handler.NewSystemHandler(rdb, dataService, resultService, registry, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Run Server & Workers ─────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	resultWorker := worker.NewResultWorker(resultService, rdb, log)
	g.Go(func() error {
		resultWorker.Start(gctx)
		return nil
	})

	// A nil repository must not reach the interface as a typed nil.
	var violationStore worker.ViolationStore
	if violationRepo != nil {
		violationStore = violationRepo
	}
	violationWorker := worker.NewViolationWorker(violationStore, rdb, log)
	g.Go(func() error {
		violationWorker.Start(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		// Results of force-finished sessions stay queued in Redis when the
		// result worker already stopped; the next start drains them.
		if n := registry.TerminateAll(); n > 0 {
			log.Info().Int("sessions", n).Msg("Running sessions terminated")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
