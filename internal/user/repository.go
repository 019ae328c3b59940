package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrUserExists = errors.New("user already exists")
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]User, error)
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	UpdateProfile(ctx context.Context, id string, profile Profile, updatedAt time.Time) error
	Count(ctx context.Context) (int, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, email, display_name, photo_url, phone, address, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	updatedAt := u.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = u.CreatedAt
	}

	_, err := r.db.Exec(ctx, query, u.ID, u.Email, u.DisplayName, u.PhotoURL, u.Phone, u.Address, u.IsAdmin, u.CreatedAt, updatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrUserExists
		}
		return fmt.Errorf("repository: failed to insert user %s: %w", u.ID, err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, display_name, photo_url, phone, address, is_admin, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var u User
	err := r.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Phone, &u.Address, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user %s: %w", id, err)
	}

	return &u, nil
}

func (r *postgresRepository) List(ctx context.Context) ([]User, error) {
	query := `
		SELECT id, email, display_name, photo_url, phone, address, is_admin, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Phone, &u.Address, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating users: %w", err)
	}

	return users, nil
}

func (r *postgresRepository) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE users SET is_admin = $1 WHERE id = $2`, isAdmin, id)
	if err != nil {
		return fmt.Errorf("repository: failed to update admin flag for user %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *postgresRepository) UpdateProfile(ctx context.Context, id string, profile Profile, updatedAt time.Time) error {
	query := `
		UPDATE users
		SET display_name = $1, phone = $2, address = $3, updated_at = $4
		WHERE id = $5
	`

	cmdTag, err := r.db.Exec(ctx, query, profile.DisplayName, profile.Phone, profile.Address, updatedAt, id)
	if err != nil {
		return fmt.Errorf("repository: failed to update profile for user %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *postgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: failed to count users: %w", err)
	}
	return n, nil
}
