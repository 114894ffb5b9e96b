package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/classifier"
	"github.com/brainboxdotcc/beholder/internal/config"
	"github.com/brainboxdotcc/beholder/internal/gateway"
	"github.com/brainboxdotcc/beholder/internal/handler"
	"github.com/brainboxdotcc/beholder/internal/imageproc"
	"github.com/brainboxdotcc/beholder/internal/intake"
	"github.com/brainboxdotcc/beholder/internal/metrics"
	"github.com/brainboxdotcc/beholder/internal/quota"
	"github.com/brainboxdotcc/beholder/internal/remediation"
	"github.com/brainboxdotcc/beholder/internal/repository"
	"github.com/brainboxdotcc/beholder/internal/scanner"
	"github.com/brainboxdotcc/beholder/internal/server"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Load configuration
	cfgPath := "configs/config.yml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Database connection
	db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	repository.MigrateDB(db, logger)

	// Redis is the optional hot cache layer; the service runs without it.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unreachable, continuing with Postgres cache only", zap.Error(err))
			rdb = nil
		}
	}

	registry := prometheus.NewRegistry()
	scanMetrics := metrics.NewScanMetrics(registry)

	// Initialize repositories
	tenantRepo := repository.NewTenantRepository(db, logger)
	cacheRepo := repository.NewCacheRepository(db, rdb, logger)

	gate := quota.NewGate(tenantRepo, logger)
	flattener := imageproc.NewFlattener(cfg.Scanner.ConvertPath, logger)

	// Classification service clients
	basicClient := classifier.NewBasicClient(cfg.BasicAPI.URL)
	premiumClient := classifier.NewPremiumClient(cfg.PremiumAPI.URL, cfg.PremiumAPI.FeedbackURL, cfg.PremiumAPI.Username, cfg.PremiumAPI.Password)
	labelClient := classifier.NewLabelClient(cfg.LabelAPI.URL, cfg.LabelAPI.Key)

	// The pipeline order is fixed: cheap local OCR first, the paid
	// multi-model stage after the free baseline, label rules last.
	stages := []scanner.Stage{
		scanner.NewOCRStage(cacheRepo, cfg.Scanner.TessdPath, scanMetrics, logger),
		scanner.NewNSFWStage(cacheRepo, basicClient, flattener, scanMetrics, logger),
		scanner.NewPremiumStage(cacheRepo, tenantRepo, gate, premiumClient, flattener, scanMetrics, logger),
		scanner.NewLabelStage(cacheRepo, gate, labelClient, flattener, scanMetrics, logger),
	}
	scan := scanner.New(tenantRepo, stages, scanMetrics, logger)

	chat := gateway.NewLoggingChat(logger)
	remediator := remediation.New(chat, tenantRepo, premiumClient, cfg.PremiumAPI.MinFeedback, logger)

	run := func(ctx context.Context, req *scanner.Request) {
		outcome := scan.Scan(ctx, req)
		if outcome.Matched {
			remediator.Remediate(ctx, req.Attachment, outcome, req.Config, req.Hash, req.Content)
		}
	}
	in := intake.New(tenantRepo, run, intake.Options{
		MaxConcurrency: int64(cfg.Scanner.MaxConcurrency),
		MaxBytes:       cfg.Scanner.MaxBytes,
		MaxPixelArea:   cfg.Scanner.MaxPixelArea,
		AllowList:      cfg.Scanner.AllowList,
	}, scanMetrics, logger)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scanHandler := handler.NewScanHandler(scan, tenantRepo, in, remediator, cfg.Scanner.MaxBytes, logger)
	srv := server.NewServer(scanHandler, registry, logger)
	go func() {
		if err := srv.Run(cfg.Server.Port); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down, waiting for in-flight scans")
	in.Wait()
	logger.Info("Application stopped.")
}
