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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/pkg/cache"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/database"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"github.com/wyfcoding/pkg/metrics"
	"golang.org/x/sync/errgroup"

	adjustmentapp "github.com/wyfcoding/portfolioaccounting/internal/adjustment/application"
	adjustmentdomain "github.com/wyfcoding/portfolioaccounting/internal/adjustment/domain"
	adjustmentmysql "github.com/wyfcoding/portfolioaccounting/internal/adjustment/infrastructure/persistence/mysql"
	adjustmenthttp "github.com/wyfcoding/portfolioaccounting/internal/adjustment/interfaces/http"
	auditapp "github.com/wyfcoding/portfolioaccounting/internal/audit/application"
	auditdomain "github.com/wyfcoding/portfolioaccounting/internal/audit/domain"
	auditmessaging "github.com/wyfcoding/portfolioaccounting/internal/audit/infrastructure/messaging"
	auditmysql "github.com/wyfcoding/portfolioaccounting/internal/audit/infrastructure/persistence/mysql"
	auditconsumer "github.com/wyfcoding/portfolioaccounting/internal/audit/interfaces/consumer"
	audithttp "github.com/wyfcoding/portfolioaccounting/internal/audit/interfaces/http"
	caapp "github.com/wyfcoding/portfolioaccounting/internal/corporateaction/application"
	cadomain "github.com/wyfcoding/portfolioaccounting/internal/corporateaction/domain"
	camysql "github.com/wyfcoding/portfolioaccounting/internal/corporateaction/infrastructure/persistence/mysql"
	cahttp "github.com/wyfcoding/portfolioaccounting/internal/corporateaction/interfaces/http"
	incomeapp "github.com/wyfcoding/portfolioaccounting/internal/income/application"
	incomedomain "github.com/wyfcoding/portfolioaccounting/internal/income/domain"
	incomemysql "github.com/wyfcoding/portfolioaccounting/internal/income/infrastructure/persistence/mysql"
	incomehttp "github.com/wyfcoding/portfolioaccounting/internal/income/interfaces/http"
	ledgerapp "github.com/wyfcoding/portfolioaccounting/internal/ledger/application"
	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
	ledgerredis "github.com/wyfcoding/portfolioaccounting/internal/ledger/infrastructure/cache/redis"
	ledgermysql "github.com/wyfcoding/portfolioaccounting/internal/ledger/infrastructure/persistence/mysql"
	ledgerhttp "github.com/wyfcoding/portfolioaccounting/internal/ledger/interfaces/http"
	transferapp "github.com/wyfcoding/portfolioaccounting/internal/transfer/application"
	transferdomain "github.com/wyfcoding/portfolioaccounting/internal/transfer/domain"
	transfermysql "github.com/wyfcoding/portfolioaccounting/internal/transfer/infrastructure/persistence/mysql"
	transferhttp "github.com/wyfcoding/portfolioaccounting/internal/transfer/interfaces/http"
	"github.com/wyfcoding/portfolioaccounting/pkg/middleware"
)

var configPath = flag.String("config", "configs/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logging
	logCfg := &logging.Config{Service: cfg.Server.Name, Level: cfg.Log.Level}
	logger := logging.NewFromConfig(logCfg)
	slog.SetDefault(logger.Logger)

	// 3. Metrics
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)

	// 4. Database
	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(
			&ledgerdomain.Operation{},
			&ledgerdomain.Position{},
			&cadomain.CorporateEvent{},
			&transferdomain.Transfer{},
			&incomedomain.IncomeEvent{},
			&adjustmentdomain.ManualAdjustment{},
			&auditdomain.AuditEntry{},
			&outbox.Message{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Kafka & Outbox
	kafkaProducer := kafka.NewProducer(&cfg.MessageQueue.Kafka, logger, metricsImpl)
	outboxMgr := outbox.NewManager(db.RawDB(), logger.Logger)
	pusher := func(ctx context.Context, topic, key string, payload []byte) error {
		return kafkaProducer.PublishToTopic(ctx, topic, []byte(key), payload)
	}
	outboxProcessor := outbox.NewProcessor(outboxMgr, pusher, 100, 2*time.Second)

	// 6. Redis
	redisCache, err := cache.NewRedisCache(&cfg.Data.Redis, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	// 7. Repositories
	operationRepo := ledgermysql.NewOperationRepository(db.RawDB())
	positionRepo := ledgermysql.NewPositionRepository(db.RawDB())
	eventRepo := camysql.NewEventRepository(db.RawDB())
	transferRepo := transfermysql.NewTransferRepository(db.RawDB())
	incomeRepo := incomemysql.NewIncomeRepository(db.RawDB())
	adjustmentRepo := adjustmentmysql.NewAdjustmentRepository(db.RawDB())
	auditRepo := auditmysql.NewAuditRepository(db.RawDB())
	snapshotCache := ledgerredis.NewSnapshotCache(redisCache.GetClient())

	// 8. Application services; the audit service doubles as the recorder
	// every other module reports into.
	auditSvc := auditapp.NewAuditService(auditRepo, auditmessaging.NewOutboxPublisher(outboxMgr), logger.Logger)
	ledgerSvc := ledgerapp.NewLedgerService(operationRepo, positionRepo, snapshotCache, auditSvc, logger.Logger)
	caSvc := caapp.NewCorporateActionService(eventRepo, operationRepo, positionRepo, auditSvc, logger.Logger)
	transferSvc := transferapp.NewTransferService(transferRepo, operationRepo, positionRepo, nil, snapshotCache, auditSvc, logger.Logger)
	incomeSvc := incomeapp.NewIncomeService(incomeRepo, positionRepo, auditSvc, logger.Logger)
	adjustmentSvc := adjustmentapp.NewAdjustmentService(adjustmentRepo, positionRepo, auditSvc, logger.Logger)

	// 9. Audit event consumer
	consumerCfg := cfg.MessageQueue.Kafka
	consumerCfg.GroupID = "portfolioaccounting-audit"
	consumerCfg.Topic = auditmessaging.TopicAuditEntryRecorded
	auditConsumer := kafka.NewConsumer(&consumerCfg, logger, metricsImpl)
	auditHandler := auditconsumer.NewAuditEventHandler(logger.Logger, prometheus.DefaultRegisterer)

	// 10. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(logger.Logger), middleware.Logging(logger.Logger))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	ledgerhttp.NewHandler(ledgerSvc).RegisterRoutes(api)
	cahttp.NewHandler(caSvc).RegisterRoutes(api)
	transferhttp.NewHandler(transferSvc).RegisterRoutes(api)
	incomehttp.NewHandler(incomeSvc).RegisterRoutes(api)
	adjustmenthttp.NewHandler(adjustmentSvc).RegisterRoutes(api)
	audithttp.NewHandler(auditSvc).RegisterRoutes(api)

	// 11. Start
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		outboxProcessor.Start()
		<-ctx.Done()
		outboxProcessor.Stop()
		return nil
	})

	g.Go(func() error {
		auditHandler.Subscribe(ctx, auditConsumer)
		<-ctx.Done()
		return auditConsumer.Close()
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTP.Port),
		Handler: r,
	}
	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
