package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PerishableRepo interface {
	Create(ctx context.Context, p *models.PerishableProduct) error
	CreateSizeCategory(ctx context.Context, c *models.SizeCategory) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PerishableProduct, error)
	// Разделяемая блокировка: товар в транзакции не меняется, но и не должен смениться
	GetForShare(ctx context.Context, id uuid.UUID) (*models.PerishableProduct, error)

	GetSizeCategory(ctx context.Context, productID, categoryID uuid.UUID) (*models.SizeCategory, error)
	GetSizeCategoryForUpdate(ctx context.Context, productID, categoryID uuid.UUID) (*models.SizeCategory, error)

	// Счётная модель: if stock >= qty then stock -= qty; sold += qty
	DecrementCategoryStock(ctx context.Context, categoryID uuid.UUID, qty int32) (bool, error)
	IncrementCategoryStock(ctx context.Context, categoryID uuid.UUID, qty int32) (bool, error)
}

type perishableRepo struct{ db *gorm.DB }

func NewPerishableRepo(db *gorm.DB) PerishableRepo { return &perishableRepo{db: db} }

func (r *perishableRepo) Create(ctx context.Context, p *models.PerishableProduct) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *perishableRepo) CreateSizeCategory(ctx context.Context, c *models.SizeCategory) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *perishableRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PerishableProduct, error) {
	var p models.PerishableProduct
	err := r.db.WithContext(ctx).
		Preload("SizeCategories", func(db *gorm.DB) *gorm.DB { return db.Order("label ASC") }).
		First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *perishableRepo) GetForShare(ctx context.Context, id uuid.UUID) (*models.PerishableProduct, error) {
	var p models.PerishableProduct
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *perishableRepo) GetSizeCategory(ctx context.Context, productID, categoryID uuid.UUID) (*models.SizeCategory, error) {
	var c models.SizeCategory
	err := r.db.WithContext(ctx).
		First(&c, "id = ? AND perishable_product_id = ?", categoryID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *perishableRepo) GetSizeCategoryForUpdate(ctx context.Context, productID, categoryID uuid.UUID) (*models.SizeCategory, error) {
	var c models.SizeCategory
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ? AND perishable_product_id = ?", categoryID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *perishableRepo) DecrementCategoryStock(ctx context.Context, categoryID uuid.UUID, qty int32) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE size_categories
SET stock  = stock - @q,
    sold   = sold + @q,
    status = CASE WHEN stock - @q = 0 THEN 'out_of_stock' ELSE status END,
    updated_at = now()
WHERE id = @id
  AND status = 'active'
  AND stock >= @q
`, map[string]any{
		"id": categoryID,
		"q":  qty,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *perishableRepo) IncrementCategoryStock(ctx context.Context, categoryID uuid.UUID, qty int32) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE size_categories
SET stock  = stock + @q,
    sold   = GREATEST(sold - @q, 0),
    status = CASE WHEN status = 'out_of_stock' THEN 'active' ELSE status END,
    updated_at = now()
WHERE id = @id
`, map[string]any{
		"id": categoryID,
		"q":  qty,
	})
	return tx.RowsAffected > 0, tx.Error
}
