// Command caseflow is the orchestration engine's single binary: one
// Matrix ingress poller, one job-queue worker pool, and one HTTP API
// server, sharing one process and one database, per spec.md §5.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/carlosapgomes/caseflow/internal/admin"
	"github.com/carlosapgomes/caseflow/internal/api"
	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/config"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/external"
	"github.com/carlosapgomes/caseflow/internal/ingress"
	"github.com/carlosapgomes/caseflow/internal/llm"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/monitoring"
	"github.com/carlosapgomes/caseflow/internal/queue"
	"github.com/carlosapgomes/caseflow/internal/recovery"
	"github.com/carlosapgomes/caseflow/internal/services"
)

func main() {
	envPath := flag.String("env-file", ".env", "path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("no .env file loaded, relying on process environment", "path", *envPath, "error", err)
	}

	if err := run(); err != nil {
		slog.Error("caseflow exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	configureLogging(cfg.LogLevel)

	bootstrapCfg, err := admin.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load admin bootstrap configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg, err := db.ConfigFromDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	client, err := db.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer client.Close()

	cases := db.NewCaseRepository(client)
	messages := db.NewMessageRepository(client)
	auditRepo := db.NewAuditRepository(client)
	jobs := db.NewJobRepository(client)
	prompts := db.NewPromptRepository(client)
	checkpoints := db.NewReactionCheckpointRepository(client)
	users := db.NewUserRepository(client)

	if err := admin.Bootstrap(ctx, bootstrapCfg, users); err != nil {
		return fmt.Errorf("bootstrap admin user: %w", err)
	}

	transport := chat.NewMatrixClient(chat.MatrixClientConfig{
		HomeserverURL: cfg.MatrixHomeserverURL,
		AccessToken:   cfg.MatrixAccessToken,
	})

	gateway, err := buildLLMGateway(cfg)
	if err != nil {
		return fmt.Errorf("build LLM gateway: %w", err)
	}

	llm1 := services.NewGatewayLLM1Service(gateway, prompts)
	llm2 := services.NewGatewayLLM2Service(gateway, prompts)
	priorCase := services.NewCaseRepositoryPriorCaseLookup(cases)
	pdfText := external.NewPlainTextPDFExtractor()
	agencyRec := external.NewRegexAgencyRecordExtractor()

	intake := services.NewRoom1IntakeService(cases, messages, auditRepo, jobs, transport)
	processPDF := services.NewProcessPDFService(cases, messages, auditRepo, jobs, transport, pdfText, agencyRec, llm1, llm2)
	room2Widget := services.NewPostRoom2WidgetService(cases, messages, auditRepo, transport, cfg.Room2ID, priorCase)
	doctorDecisions := services.NewDoctorDecisionService(cases, messages, auditRepo, checkpoints, jobs, transport, cfg.Room2ID)
	room2Reply := services.NewRoom2ReplyService(doctorDecisions, transport, cfg.Room2ID)
	room3Request := services.NewPostRoom3RequestService(cases, messages, auditRepo, checkpoints, transport, cfg.Room3ID)
	room3Reply := services.NewRoom3ReplyService(cases, messages, auditRepo, jobs, transport)
	reactions := services.NewReactionService(cases, messages, auditRepo, checkpoints, jobs, cfg.Room1ID, cfg.Room2ID, cfg.Room3ID)
	room1Final := services.NewPostRoom1FinalService(cases, messages, auditRepo, checkpoints, transport)
	cleanup := services.NewExecuteCleanupService(cases, messages, auditRepo, transport)
	jobFailures := services.NewJobFailureService(cases, auditRepo, jobs)

	registry := queue.NewHandlerRegistry()
	registry.Register(models.JobTypeProcessPDFCase, processPDF)
	registry.Register(models.JobTypePostRoom2Widget, room2Widget)
	registry.Register(models.JobTypePostRoom3Request, room3Request)
	registry.Register(models.JobTypePostRoom1FinalDenialTriage, room1Final)
	registry.Register(models.JobTypePostRoom1FinalApptConfirmed, room1Final)
	registry.Register(models.JobTypePostRoom1FinalApptDenied, room1Final)
	registry.Register(models.JobTypePostRoom1FinalFailure, room1Final)
	registry.Register(models.JobTypeExecuteCleanup, cleanup)

	poolCfg := queue.Config{
		WorkerCount: cfg.WorkerCount,
		PollEvery:   cfg.WorkerPollInterval,
		BatchSize:   cfg.WorkerBatchSize,
	}
	pool := queue.NewPool(jobs, registry, auditRepo, jobFailures, poolCfg)

	poller := ingress.NewPoller(
		transport, messages, intake, room2Reply, room3Reply, reactions,
		cfg.MatrixBotUserID, cfg.Room1ID, cfg.Room2ID, cfg.Room3ID,
		cfg.MatrixSyncTimeout, cfg.MatrixPollInterval,
	)

	caseLister := monitoring.NewCaseLister(client)
	timeline := monitoring.NewTimelineService(client, cases)
	apiServer := api.NewServer(cases, users, doctorDecisions, caseLister, timeline, []byte(cfg.WebhookHMACSecret))

	if _, err := recovery.ReconcileRunningJobs(ctx, jobs); err != nil {
		return fmt.Errorf("reconcile orphaned jobs: %w", err)
	}
	recoveryService := recovery.NewService(cases, jobs)
	if n, err := recoveryService.Recover(ctx); err != nil {
		return fmt.Errorf("recover non-terminal cases: %w", err)
	} else if n > 0 {
		slog.Info("recovery: backfilled missing next-step jobs", "count", n)
	}

	poller.Start(ctx)
	pool.Start(ctx)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting HTTP API server", "addr", ":"+cfg.HTTPPort)
		if err := apiServer.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})

	<-gCtx.Done()
	poller.Stop()
	pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down API server", "error", err)
	}

	return g.Wait()
}

func buildLLMGateway(cfg config.Config) (llm.Gateway, error) {
	switch cfg.LLMRuntimeMode {
	case "provider":
		return llm.NewGRPCGateway(cfg.LLMGatewayAddr)
	default:
		return llm.NewDeterministicGateway(), nil
	}
}

func configureLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
