package service

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCartQuantity = 999

// Корзина не трогает склад: резервирование происходит только при оформлении заказа.
type cartService struct {
	repo    *repository.Repository
	catalog CatalogReader
	log     *zap.Logger
}

func NewCartService(repo *repository.Repository, log *zap.Logger) CartService {
	if log == nil {
		log = zap.NewNop()
	}
	return &cartService{repo: repo, log: log}
}

func (s *cartService) GetCart(ctx context.Context) (*models.Cart, error) {
	uid, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.Carts.GetByUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		// пустая корзина без записи в БД
		return &models.Cart{UserID: uid, Items: []models.CartItem{}}, nil
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, in AddCartItemInput) (*models.Cart, error) {
	uid, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if in.Quantity <= 0 || in.Quantity > maxCartQuantity {
		return nil, ErrQuantityInvalid
	}

	snap, err := s.catalog.Snapshot(ctx, s.repo, OrderLine{
		ProductID: in.ProductID,
		VariantID: in.VariantID,
		Quantity:  in.Quantity,
	}, false)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		cart, err := tx.Carts.GetOrCreate(ctx, uid)
		if err != nil {
			return err
		}

		existing, err := tx.Carts.FindItem(ctx, cart.ID, snap.ProductID, snap.VariantID)
		if err != nil {
			return err
		}
		if existing != nil {
			qty := existing.Quantity + in.Quantity
			if qty > maxCartQuantity {
				return ErrQuantityInvalid
			}
			if _, err := tx.Carts.UpdateItemQuantity(ctx, cart.ID, existing.ID, qty); err != nil {
				return err
			}
		} else {
			if err := tx.Carts.AddItem(ctx, &models.CartItem{
				CartID:       cart.ID,
				ProductID:    snap.ProductID,
				ProductName:  snap.ProductName,
				VariantID:    snap.VariantID,
				VariantLabel: snap.Label,
				Quantity:     in.Quantity,
				PriceAtAdd:   snap.UnitPrice,
			}); err != nil {
				return err
			}
		}
		return tx.Carts.Touch(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.GetCart(ctx)
}

func (s *cartService) UpdateQuantity(ctx context.Context, itemID uuid.UUID, qty int32) (*models.Cart, error) {
	uid, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if qty > maxCartQuantity || qty < 0 {
		return nil, ErrQuantityInvalid
	}
	if qty == 0 {
		return s.RemoveItem(ctx, itemID)
	}

	cart, err := s.repo.Carts.GetByUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, ErrCartItemNotFound
	}

	ok, err := s.repo.Carts.UpdateItemQuantity(ctx, cart.ID, itemID, qty)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}
	if err := s.repo.Carts.Touch(ctx, cart.ID); err != nil {
		return nil, err
	}
	return s.GetCart(ctx)
}

func (s *cartService) RemoveItem(ctx context.Context, itemID uuid.UUID) (*models.Cart, error) {
	uid, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.Carts.GetByUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, ErrCartItemNotFound
	}

	ok, err := s.repo.Carts.RemoveItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}
	if err := s.repo.Carts.Touch(ctx, cart.ID); err != nil {
		return nil, err
	}
	return s.GetCart(ctx)
}

func (s *cartService) Clear(ctx context.Context) error {
	uid, _, err := requireAuth(ctx)
	if err != nil {
		return err
	}

	cart, err := s.repo.Carts.GetByUser(ctx, uid)
	if err != nil || cart == nil {
		return err
	}

	n, err := s.repo.Carts.Clear(ctx, cart.ID)
	if err != nil {
		return err
	}
	s.log.Debug("корзина очищена", zap.String("user_id", uid.String()), zap.Int64("items", n))
	return s.repo.Carts.Touch(ctx, cart.ID)
}
