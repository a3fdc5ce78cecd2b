package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepo interface {
	Create(ctx context.Context, p *models.Product) error
	CreateVariant(ctx context.Context, v *models.Variant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)

	// Чтение под блокировкой строки (SELECT ... FOR UPDATE), только внутри транзакции
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.Variant, error)
	GetVariantForUpdate(ctx context.Context, productID, variantID uuid.UUID) (*models.Variant, error)
	DefaultVariant(ctx context.Context, productID uuid.UUID) (*models.Variant, error)

	// Атомарное списание: if stock >= qty then stock -= qty; sold += qty
	DecrementVariantStock(ctx context.Context, variantID uuid.UUID, qty int32) (bool, error)
	DecrementProductStock(ctx context.Context, productID uuid.UUID, qty int32) (bool, error)
	// Возврат: stock += qty; sold -= qty
	IncrementVariantStock(ctx context.Context, variantID uuid.UUID, qty int32) (bool, error)
	IncrementProductStock(ctx context.Context, productID uuid.UUID, qty int32) (bool, error)

	// products.stock = сумма stock по вариантам
	RecomputeAggregateStock(ctx context.Context, productID uuid.UUID) error
	RecomputeAllAggregateStock(ctx context.Context) (int64, error)
}

type productRepo struct{ db *gorm.DB }

func NewProductRepo(db *gorm.DB) ProductRepo { return &productRepo{db: db} }

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productRepo) CreateVariant(ctx context.Context, v *models.Variant) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("is_default DESC, label ASC") }).
		First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *productRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *productRepo) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.Variant, error) {
	var v models.Variant
	err := r.db.WithContext(ctx).First(&v, "id = ? AND product_id = ?", variantID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &v, err
}

func (r *productRepo) GetVariantForUpdate(ctx context.Context, productID, variantID uuid.UUID) (*models.Variant, error) {
	var v models.Variant
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&v, "id = ? AND product_id = ?", variantID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &v, err
}

func (r *productRepo) DefaultVariant(ctx context.Context, productID uuid.UUID) (*models.Variant, error) {
	var v models.Variant
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND is_default", productID).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &v, err
}

func (r *productRepo) DecrementVariantStock(ctx context.Context, variantID uuid.UUID, qty int32) (bool, error) {
	// при обнулении остатка вариант уходит в out_of_stock
	tx := r.db.WithContext(ctx).Exec(`
UPDATE product_variants
SET stock  = stock - @q,
    sold   = sold + @q,
    status = CASE WHEN stock - @q = 0 THEN 'out_of_stock' ELSE status END,
    updated_at = now()
WHERE id = @id
  AND status = 'active'
  AND stock >= @q
`, map[string]any{
		"id": variantID,
		"q":  qty,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *productRepo) DecrementProductStock(ctx context.Context, productID uuid.UUID, qty int32) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE products
SET stock = stock - @q,
    sold  = sold + @q,
    updated_at = now()
WHERE id = @id
  AND status = 'active'
  AND NOT has_variants
  AND stock >= @q
`, map[string]any{
		"id": productID,
		"q":  qty,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *productRepo) IncrementVariantStock(ctx context.Context, variantID uuid.UUID, qty int32) (bool, error) {
	// out_of_stock снова становится active; inactive не трогаем
	tx := r.db.WithContext(ctx).Exec(`
UPDATE product_variants
SET stock  = stock + @q,
    sold   = GREATEST(sold - @q, 0),
    status = CASE WHEN status = 'out_of_stock' THEN 'active' ELSE status END,
    updated_at = now()
WHERE id = @id
`, map[string]any{
		"id": variantID,
		"q":  qty,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *productRepo) IncrementProductStock(ctx context.Context, productID uuid.UUID, qty int32) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE products
SET stock = stock + @q,
    sold  = GREATEST(sold - @q, 0),
    updated_at = now()
WHERE id = @id
  AND NOT has_variants
`, map[string]any{
		"id": productID,
		"q":  qty,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *productRepo) RecomputeAggregateStock(ctx context.Context, productID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`
UPDATE products p
SET stock = COALESCE((SELECT SUM(v.stock) FROM product_variants v WHERE v.product_id = p.id), 0),
    sold  = COALESCE((SELECT SUM(v.sold)  FROM product_variants v WHERE v.product_id = p.id), 0),
    updated_at = now()
WHERE p.id = @id
  AND p.has_variants
`, map[string]any{"id": productID}).Error
}

func (r *productRepo) RecomputeAllAggregateStock(ctx context.Context) (int64, error) {
	// обновляем только разошедшиеся агрегаты
	tx := r.db.WithContext(ctx).Exec(`
UPDATE products p
SET stock = agg.stock,
    sold  = agg.sold,
    updated_at = now()
FROM (
    SELECT product_id, SUM(stock) AS stock, SUM(sold) AS sold
    FROM product_variants
    GROUP BY product_id
) agg
WHERE p.id = agg.product_id
  AND p.has_variants
  AND (p.stock <> agg.stock OR p.sold <> agg.sold)
`)
	return tx.RowsAffected, tx.Error
}
