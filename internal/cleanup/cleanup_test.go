package cleanup_test

import (
	"context"
	"testing"
	"time"

	"fulfillment-service/internal/cleanup"
	"fulfillment-service/internal/migrate"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
	"fulfillment-service/pkg/testutil"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestCleanupService_RunFullCleanup(t *testing.T) {
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigrateDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.New(db)
	ctx := context.Background()

	fish := &models.PerishableProduct{Name: "Koi", InventoryMode: models.InventoryModeUnit}
	if err := repo.Perishables.Create(ctx, fish); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cat := &models.SizeCategory{PerishableProductID: fish.ID, Label: "medium", PricePerKg: decimal.NewFromInt(350)}
	if err := repo.Perishables.CreateSizeCategory(ctx, cat); err != nil {
		t.Fatalf("CreateSizeCategory: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	units := []models.InventoryUnit{
		{PerishableProductID: fish.ID, SizeCategoryID: cat.ID, ActualWeightKg: decimal.RequireFromString("1.1"), ExpiresAt: &past},
		{PerishableProductID: fish.ID, SizeCategoryID: cat.ID, ActualWeightKg: decimal.RequireFromString("1.2")},
	}
	if err := repo.Units.BulkCreate(ctx, units); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}

	p := &models.Product{Name: "Bag", Price: decimal.NewFromInt(10), HasVariants: true, Variants: []models.Variant{
		{Label: "red", Price: decimal.NewFromInt(10), Stock: 4, IsDefault: true},
	}}
	if err := repo.Products.Create(ctx, p); err != nil {
		t.Fatalf("Create product: %v", err)
	}

	svc := cleanup.NewCleanupService(repo, 30, zap.NewNop())
	if err := cleanup.NewScheduler(svc, zap.NewNop()).RunOnceNow(ctx); err != nil {
		t.Fatalf("RunOnceNow: %v", err)
	}

	c, _ := repo.Perishables.GetSizeCategory(ctx, fish.ID, cat.ID)
	if c.Stock != 1 {
		t.Fatalf("category stock = %d, want 1", c.Stock)
	}
	got, _ := repo.Products.GetByID(ctx, p.ID)
	if got.Stock != 4 {
		t.Fatalf("aggregate stock = %d, want 4", got.Stock)
	}
}
