package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/estore/internal/catalog"
)

var (
	ErrItemNotInCart      = errors.New("item not in cart")
	ErrProductUnavailable = errors.New("product is out of stock")
)

type ProductLookup interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
}

type Service interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*Cart, error)
	UpdateItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, userID string, productID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, userID string) error
}

type service struct {
	repo     Repository
	products ProductLookup
}

func NewService(repo Repository, products ProductLookup) Service {
	return &service{repo: repo, products: products}
}

func (s *service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return c, nil
}

// AddItem snapshots the product's current name, price and image into the
// cart. quantity <= 0 adds one.
func (s *service) AddItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*Cart, error) {
	if quantity <= 0 {
		quantity = 1
	}

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.InStock {
		return nil, ErrProductUnavailable
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.add(Item{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Category:  p.Category,
		Quantity:  quantity,
	})

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}
	return c, nil
}

func (s *service) UpdateItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !c.setQuantity(productID, quantity) {
		return nil, ErrItemNotInCart
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}
	return c, nil
}

func (s *service) RemoveItem(ctx context.Context, userID string, productID uuid.UUID) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !c.remove(productID) {
		return nil, ErrItemNotInCart
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}
	return c, nil
}

func (s *service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
