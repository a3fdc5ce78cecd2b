package repository

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AllocationRepo interface {
	BulkCreate(ctx context.Context, rows []models.Allocation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Allocation, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Allocation, error)
	// Переход статуса с защитой: WHERE status = from. false: строку уже перевёл кто-то другой.
	Transition(ctx context.Context, id uuid.UUID, from, to models.AllocationStatus, at time.Time) (bool, error)
}

type allocationRepo struct{ db *gorm.DB }

func NewAllocationRepo(db *gorm.DB) AllocationRepo { return &allocationRepo{db: db} }

func (r *allocationRepo) BulkCreate(ctx context.Context, rows []models.Allocation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *allocationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Allocation, error) {
	var a models.Allocation
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &a, err
}

func (r *allocationRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Allocation, error) {
	var rows []models.Allocation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *allocationRepo) Transition(ctx context.Context, id uuid.UUID, from, to models.AllocationStatus, at time.Time) (bool, error) {
	upd := map[string]any{"status": to}
	switch to {
	case models.AllocationReleased:
		upd["released_at"] = at
	case models.AllocationFinalized:
		upd["finalized_at"] = at
	}

	tx := r.db.WithContext(ctx).Model(&models.Allocation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(upd)
	return tx.RowsAffected > 0, tx.Error
}
