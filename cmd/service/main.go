package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/internal/cache"
	"fulfillment-service/internal/cleanup"
	"fulfillment-service/internal/identity"
	"fulfillment-service/internal/producer"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/router"
	"fulfillment-service/internal/service"
	"fulfillment-service/pkg/database"
	"fulfillment-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos := repository.New(db)

	// Redis и Kafka опциональны: без них кэш и события отключены
	var orderCache service.Cache = service.NoopCache()
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		orderCache = rc
	}

	var events service.EventBus
	if cfg.Kafka.Enabled {
		p := producer.NewOrderEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer p.Close()
		events = p
		log.Info("kafka producer enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	tolerance, err := decimal.NewFromString(cfg.Order.PriceTolerance)
	if err != nil {
		log.Warn("invalid ORDER_PRICE_TOLERANCE, using default", zap.String("value", cfg.Order.PriceTolerance))
		tolerance = service.DefaultPriceTolerance
	}

	orders := service.NewOrderService(service.OrderServiceDeps{
		Repo:   repos,
		Cache:  orderCache,
		Events: events,
		Logger: log,
		Options: service.OrderOptions{
			TxTimeout:      cfg.Order.TxTimeout,
			MaxTxAttempts:  cfg.Order.MaxTxAttempts,
			PriceTolerance: tolerance,
			ListCacheTTL:   time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		},
	})
	carts := service.NewCartService(repos, log)
	verifier := identity.NewHSProvider(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)

	if cfg.Cleanup.Enabled {
		scheduler := cleanup.NewScheduler(cleanup.NewCleanupService(repos, cfg.Cleanup.CartIdleDays, log), log)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	// gRPC: только health и reflection
	lis, err := net.Listen("tcp", cfg.GRPCPort)
	if err != nil {
		log.Fatal("failed to listen", zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	go func() {
		log.Info("Starting gRPC health server", zap.String("addr", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           router.Router(orders, carts, verifier, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to run http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down fulfillment service...")
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("Fulfillment service stopped gracefully")
}
