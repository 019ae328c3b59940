package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid catalog input")

// maxPrice matches the NUMERIC(12,2) price column.
var maxPrice = decimal.New(1, 10)

type Service interface {
	CreateCategory(ctx context.Context, c *Category) (*Category, error)
	UpdateCategory(ctx context.Context, c *Category) (*Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	GetCategory(ctx context.Context, id uuid.UUID) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CreateProduct(ctx context.Context, p *Product) (*Product, error)
	UpdateProduct(ctx context.Context, p *Product) (*Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	ListProducts(ctx context.Context, category string) ([]Product, error)
	CountProducts(ctx context.Context) (int, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func validateCategory(c *Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}
	return nil
}

func validateProduct(p *Product) error {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	case !p.Price.GreaterThan(decimal.Zero):
		return fmt.Errorf("%w: product price must be greater than zero", ErrInvalidInput)
	case !p.Price.Equal(p.Price.Truncate(2)):
		return fmt.Errorf("%w: product price has more than two decimal places", ErrInvalidInput)
	case !p.Price.LessThan(maxPrice):
		return fmt.Errorf("%w: product price is too large", ErrInvalidInput)
	case p.CategoryID == uuid.Nil:
		return fmt.Errorf("%w: product category is required", ErrInvalidInput)
	case p.StockQuantity < 0:
		return fmt.Errorf("%w: stock quantity cannot be negative", ErrInvalidInput)
	}
	return nil
}

func (s *service) CreateCategory(ctx context.Context, c *Category) (*Category, error) {
	if err := validateCategory(c); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate category id: %w", err)
	}
	now := time.Now().UTC()
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	c.ProductCount = 0

	if err := s.repo.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, ErrCategoryNameExists) {
			return nil, ErrCategoryNameExists
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	log.Info().Stringer("category_id", c.ID).Str("name", c.Name).Msg("Category created")
	return c, nil
}

func (s *service) UpdateCategory(ctx context.Context, c *Category) (*Category, error) {
	if err := validateCategory(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		if errors.Is(err, ErrCategoryNotFound) || errors.Is(err, ErrCategoryNameExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update category %s: %w", c.ID, err)
	}

	return s.repo.GetCategory(ctx, c.ID)
}

func (s *service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, ErrCategoryNotFound) || errors.Is(err, ErrCategoryInUse) {
			return err
		}
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}

	log.Info().Stringer("category_id", id).Msg("Category deleted")
	return nil
}

func (s *service) GetCategory(ctx context.Context, id uuid.UUID) (*Category, error) {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category %s: %w", id, err)
	}
	return c, nil
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *service) CreateProduct(ctx context.Context, p *Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate product id: %w", err)
	}
	now := time.Now().UTC()
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	log.Info().Stringer("product_id", p.ID).Str("name", p.Name).Msg("Product created")
	return s.repo.GetProduct(ctx, p.ID)
}

func (s *service) UpdateProduct(ctx context.Context, p *Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrCategoryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product %s: %w", p.ID, err)
	}

	return s.repo.GetProduct(ctx, p.ID)
}

func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}

	log.Info().Stringer("product_id", id).Msg("Product deleted")
	return nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return p, nil
}

// ListProducts filters by category name; "" and "all" return everything.
func (s *service) ListProducts(ctx context.Context, category string) ([]Product, error) {
	category = strings.TrimSpace(category)
	if strings.EqualFold(category, AllCategories) {
		category = ""
	}

	products, err := s.repo.ListProducts(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *service) CountProducts(ctx context.Context) (int, error) {
	n, err := s.repo.CountProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}
