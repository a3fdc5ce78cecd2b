package repository

import (
	"context"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryUnitRepo interface {
	BulkCreate(ctx context.Context, units []models.InventoryUnit) error
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryUnit, error)

	// Свободные штуки категории по возрастанию веса (при равенстве по id), под FOR UPDATE
	ListAvailableForUpdate(ctx context.Context, categoryID uuid.UUID) ([]models.InventoryUnit, error)

	// available -> reserved; возвращает число реально переведённых штук
	MarkReserved(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID, at time.Time) (int64, error)
	// reserved -> available только для штук, зарезервированных этим заказом
	Release(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) (int64, error)
	// reserved -> sold, терминальный переход
	MarkSold(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID, at time.Time) (int64, error)

	// size_categories.stock = число available штук
	ResyncCategoryStock(ctx context.Context, categoryID uuid.UUID) error
	// available с истёкшим expires_at -> expired; возвращает затронутые категории
	ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, int64, error)
}

type inventoryUnitRepo struct{ db *gorm.DB }

func NewInventoryUnitRepo(db *gorm.DB) InventoryUnitRepo { return &inventoryUnitRepo{db: db} }

func (r *inventoryUnitRepo) BulkCreate(ctx context.Context, units []models.InventoryUnit) error {
	if len(units) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&units).Error
}

func (r *inventoryUnitRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryUnit, error) {
	if len(ids) == 0 {
		return []models.InventoryUnit{}, nil
	}
	var list []models.InventoryUnit
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("actual_weight_kg ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *inventoryUnitRepo) ListAvailableForUpdate(ctx context.Context, categoryID uuid.UUID) ([]models.InventoryUnit, error) {
	var list []models.InventoryUnit
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("size_category_id = ? AND status = ?", categoryID, models.UnitStatusAvailable).
		Order("actual_weight_kg ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (r *inventoryUnitRepo) MarkReserved(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Model(&models.InventoryUnit{}).
		Where("id IN ? AND status = ?", ids, models.UnitStatusAvailable).
		Updates(map[string]any{
			"status":            models.UnitStatusReserved,
			"reserved_order_id": orderID,
			"reserved_at":       at,
		})
	return tx.RowsAffected, tx.Error
}

func (r *inventoryUnitRepo) Release(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Model(&models.InventoryUnit{}).
		Where("id IN ? AND status = ? AND reserved_order_id = ?", ids, models.UnitStatusReserved, orderID).
		Updates(map[string]any{
			"status":            models.UnitStatusAvailable,
			"reserved_order_id": nil,
			"reserved_at":       nil,
		})
	return tx.RowsAffected, tx.Error
}

func (r *inventoryUnitRepo) MarkSold(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Model(&models.InventoryUnit{}).
		Where("id IN ? AND status = ? AND reserved_order_id = ?", ids, models.UnitStatusReserved, orderID).
		Updates(map[string]any{
			"status":        models.UnitStatusSold,
			"sold_order_id": orderID,
			"sold_at":       at,
		})
	return tx.RowsAffected, tx.Error
}

func (r *inventoryUnitRepo) ResyncCategoryStock(ctx context.Context, categoryID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`
UPDATE size_categories c
SET stock  = cnt.n,
    status = CASE
        WHEN c.status = 'inactive' THEN c.status
        WHEN cnt.n = 0 THEN 'out_of_stock'
        ELSE 'active'
    END,
    updated_at = now()
FROM (
    SELECT COUNT(*) AS n
    FROM inventory_units
    WHERE size_category_id = @id AND status = 'available'
) cnt
WHERE c.id = @id
`, map[string]any{"id": categoryID}).Error
}

func (r *inventoryUnitRepo) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, int64, error) {
	var rows []models.InventoryUnit
	tx := r.db.WithContext(ctx).Model(&rows).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "size_category_id"}}}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.UnitStatusAvailable, now).
		Update("status", models.UnitStatusExpired)
	if tx.Error != nil {
		return nil, 0, tx.Error
	}

	seen := make(map[uuid.UUID]struct{}, len(rows))
	categories := make([]uuid.UUID, 0, len(rows))
	for _, u := range rows {
		if _, ok := seen[u.SizeCategoryID]; ok {
			continue
		}
		seen[u.SizeCategoryID] = struct{}{}
		categories = append(categories, u.SizeCategoryID)
	}
	return categories, tx.RowsAffected, nil
}
