package main

import (
	"context"
	"fmt"
	"os"

	"fulfillment-service/config"
	"fulfillment-service/internal/cleanup"
	"fulfillment-service/internal/repository"
	"fulfillment-service/pkg/database"
	"fulfillment-service/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	log := logger.L()

	if len(os.Args) < 2 {
		fmt.Println("Usage: cleanup [expired|carts|stock|all]")
		fmt.Println("  expired - списать свободные штуки с истёкшим сроком")
		fmt.Println("  carts   - удалить брошенные корзины")
		fmt.Println("  stock   - пересчитать суммарный остаток товаров с вариантами")
		fmt.Println("  all     - выполнить все задачи")
		os.Exit(1)
	}

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	svc := cleanup.NewCleanupService(repository.New(db), cfg.Cleanup.CartIdleDays, log)
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "expired":
		err = svc.ExpireUnits(ctx)
	case "carts":
		err = svc.PurgeIdleCarts(ctx)
	case "stock":
		err = svc.RecomputeAggregateStock(ctx)
	case "all":
		err = svc.RunFullCleanup(ctx)
	default:
		log.Error("unknown command", zap.String("command", os.Args[1]))
		os.Exit(1)
	}

	if err != nil {
		log.Fatal("cleanup failed", zap.Error(err))
	}

	log.Info("cleanup completed successfully")
}
