package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callqa/internal/analysis"
	"callqa/internal/audit"
	"callqa/internal/calls"
	"callqa/internal/config"
	"callqa/internal/llm"
	"callqa/internal/metrics"
	"callqa/internal/reporting"
	"callqa/internal/storage"
	"callqa/internal/transcription"
	"callqa/pkg/logger"
	"callqa/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real env always wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := wire(rootCtx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/metrics"))
	registerRoutes(r, a)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env,
			"storage", a.storageName, "transcription", a.transcriber.Name(), "analyzer", a.analyzerName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := a.calls.Close(shutdownCtx); err != nil {
		log.Error("analysis drain failed", "err", err)
	}
}

// app holds the wired process dependencies.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *sql.DB
	rdb     *redis.Client
	metrics *metrics.Metrics

	local       *storage.Local
	storageName string

	transcriber  transcription.Provider
	analyzerName string

	calls   *calls.Service
	reports *reporting.Service

	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "err", err)
		}
	}
}

// wire picks an adapter for every port. Vendor adapters are used when
// credentials are configured; otherwise the reference adapters run in
// process. Memory persistence never reaches production: config validation
// requires DB and Redis there.
func wire(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var (
		repo      calls.Repository
		auditRepo audit.Repository
	)
	if cfg.UseDB() {
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		if err := utils.ApplySchema(ctx, db, calls.Schema); err != nil {
			return nil, err
		}
		repo = calls.NewPostgresRepo(db)
		auditRepo = audit.NewPostgresRepo(db)
	} else {
		log.Warn("DB_HOST not set, calls are kept in memory")
		repo = calls.NewMemoryRepo()
		auditRepo = audit.NewMemoryRepo()
	}

	var ledger calls.JobLedger
	if cfg.UseRedis() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
		ledger = calls.NewRedisJobLedger(rdb)
	} else {
		log.Warn("REDIS_HOST not set, webhook dedup is process-local")
		ledger = calls.NewMemoryJobLedger()
	}

	var store storage.Provider
	if cfg.UseGCS() {
		g, err := storage.NewGCS(ctx, cfg.Storage.GCSBucket, cfg.Storage.GCSCredentialsFile, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		store, a.storageName = g, "gcs"
	} else {
		signer, err := storage.NewSigner(cfg.Storage.SigningSecret)
		if err != nil {
			return nil, err
		}
		a.local = storage.NewLocal(cfg.App.PublicBaseURL, signer, log)
		store, a.storageName = a.local, "local"
	}

	var client llm.Client
	if cfg.UseLLM() {
		client = llm.NewOpenAI(llm.Config{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model}, log)
	}

	var roles transcription.RoleResolver = transcription.PositionalRoles{}
	if client != nil && cfg.LLM.RoleInference {
		roles = transcription.LLMRoles{Client: client, Log: log}
	}

	if cfg.UseAssemblyAI() {
		a.transcriber = transcription.NewAssemblyAI(transcription.AssemblyAIConfig{
			APIKey:        cfg.Transcription.AssemblyAIKey,
			BaseURL:       cfg.Transcription.AssemblyAIBaseURL,
			WebhookSecret: cfg.Transcription.WebhookSecret,
			WebhookHeader: cfg.Transcription.WebhookHeader,
		}, roles, log)
	} else {
		log.Warn("ASSEMBLYAI_API_KEY not set, using mock transcription")
		a.transcriber = transcription.NewMock(roles)
	}

	var analyzer analysis.Analyzer
	if client != nil {
		analyzer, a.analyzerName = analysis.NewLLMAnalyzer(client, log), "llm"
	} else {
		log.Warn("LLM_API_KEY not set, using mock analyzer")
		analyzer, a.analyzerName = analysis.Mock{}, "mock"
	}

	svc, err := calls.NewService(calls.Deps{
		Repo:        repo,
		Storage:     store,
		Transcriber: a.transcriber,
		Analyzer:    analyzer,
		Ledger:      ledger,
		Audit:       audit.NewService(auditRepo, log),
		Metrics:     a.metrics,
		Log:         log,
	}, calls.Options{
		WebhookURL:         cfg.WebhookURL(),
		EnforceWebhookAuth: cfg.IsProduction(),
		Dispatcher: calls.DispatcherConfig{
			Workers:   cfg.Analysis.Workers,
			QueueSize: cfg.Analysis.QueueSize,
			Timeout:   cfg.Analysis.Timeout,
		},
	})
	if err != nil {
		return nil, err
	}
	a.calls = svc
	a.reports = reporting.NewService(repo)

	ok = true
	return a, nil
}
