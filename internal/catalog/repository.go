package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCategoryNotFound   = errors.New("category not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrCategoryNameExists = errors.New("category with this name already exists")
	ErrCategoryInUse      = errors.New("category still has products")
)

type Repository interface {
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	GetCategory(ctx context.Context, id uuid.UUID) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	ListProducts(ctx context.Context, categoryName string) ([]Product, error)
	CountProducts(ctx context.Context) (int, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const categoryColumns = `
	c.id, c.name, c.description, c.image,
	(SELECT COUNT(*) FROM products p WHERE p.category_id = c.id),
	c.created_at, c.updated_at
`

const productColumns = `
	p.id, p.name, p.description, p.price, p.image, c.name, p.category_id,
	p.in_stock, p.stock_quantity, p.featured, p.created_at, p.updated_at
`

func scanCategory(row pgx.Row, c *Category) error {
	return row.Scan(&c.ID, &c.Name, &c.Description, &c.Image, &c.ProductCount, &c.CreatedAt, &c.UpdatedAt)
}

func scanProduct(row pgx.Row, p *Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Category, &p.CategoryID,
		&p.InStock, &p.StockQuantity, &p.Featured, &p.CreatedAt, &p.UpdatedAt)
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (r *postgresRepository) CreateCategory(ctx context.Context, c *Category) error {
	query := `
		INSERT INTO categories (id, name, description, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query, c.ID, c.Name, c.Description, c.Image, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.UniqueViolation {
			return ErrCategoryNameExists
		}
		return fmt.Errorf("repository: failed to insert category: %w", err)
	}

	return nil
}

func (r *postgresRepository) UpdateCategory(ctx context.Context, c *Category) error {
	query := `
		UPDATE categories
		SET name = $1, description = $2, image = $3, updated_at = $4
		WHERE id = $5
	`

	cmdTag, err := r.db.Exec(ctx, query, c.Name, c.Description, c.Image, c.UpdatedAt, c.ID)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.UniqueViolation {
			return ErrCategoryNameExists
		}
		return fmt.Errorf("repository: failed to update category %s: %w", c.ID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}

	return nil
}

func (r *postgresRepository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.ForeignKeyViolation {
			return ErrCategoryInUse
		}
		return fmt.Errorf("repository: failed to delete category %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}

	return nil
}

func (r *postgresRepository) GetCategory(ctx context.Context, id uuid.UUID) (*Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories c WHERE c.id = $1`

	var c Category
	if err := scanCategory(r.db.QueryRow(ctx, query, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("repository: failed to select category %s: %w", id, err)
	}

	return &c, nil
}

func (r *postgresRepository) ListCategories(ctx context.Context) ([]Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories c ORDER BY c.name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := scanCategory(rows, &c); err != nil {
			return nil, fmt.Errorf("repository: failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating categories: %w", err)
	}

	return categories, nil
}

func (r *postgresRepository) CreateProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (id, name, description, price, image, category_id, in_stock, stock_quantity, featured, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query, p.ID, p.Name, p.Description, p.Price, p.Image, p.CategoryID,
		p.InStock, p.StockQuantity, p.Featured, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.ForeignKeyViolation {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}

	return nil
}

func (r *postgresRepository) UpdateProduct(ctx context.Context, p *Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, image = $4, category_id = $5,
			in_stock = $6, stock_quantity = $7, featured = $8, updated_at = $9
		WHERE id = $10
	`

	cmdTag, err := r.db.Exec(ctx, query, p.Name, p.Description, p.Price, p.Image, p.CategoryID,
		p.InStock, p.StockQuantity, p.Featured, p.UpdatedAt, p.ID)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.ForeignKeyViolation {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("repository: failed to update product %s: %w", p.ID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *postgresRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete product %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *postgresRepository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p JOIN categories c ON c.id = p.category_id WHERE p.id = $1`

	var p Product
	if err := scanProduct(r.db.QueryRow(ctx, query, id), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product %s: %w", id, err)
	}

	return &p, nil
}

// ListProducts returns products newest first. An empty categoryName returns
// every product.
func (r *postgresRepository) ListProducts(ctx context.Context, categoryName string) ([]Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE ($1::text = '' OR c.name = $1::text)
		ORDER BY p.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, categoryName)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating products: %w", err)
	}

	return products, nil
}

func (r *postgresRepository) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: failed to count products: %w", err)
	}
	return n, nil
}
