package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix = "cart:"
	cartTTL   = 30 * 24 * time.Hour
)

type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, userID string) error
}

type redisRepository struct {
	rdb *redis.Client
}

func NewRepository(rdb *redis.Client) Repository {
	return &redisRepository{rdb: rdb}
}

func key(userID string) string {
	return keyPrefix + userID
}

// Get returns an empty cart when the user has none stored.
func (r *redisRepository) Get(ctx context.Context, userID string) (*Cart, error) {
	raw, err := r.rdb.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Cart{UserID: userID, Items: []Item{}}, nil
		}
		return nil, fmt.Errorf("repository: failed to get cart for user %s: %w", userID, err)
	}

	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("repository: corrupt cart for user %s: %w", userID, err)
	}
	c.UserID = userID
	if c.Items == nil {
		c.Items = []Item{}
	}

	return &c, nil
}

func (r *redisRepository) Save(ctx context.Context, c *Cart) error {
	if len(c.Items) == 0 {
		return r.Delete(ctx, c.UserID)
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("repository: failed to encode cart: %w", err)
	}

	if err := r.rdb.Set(ctx, key(c.UserID), raw, cartTTL).Err(); err != nil {
		return fmt.Errorf("repository: failed to save cart for user %s: %w", c.UserID, err)
	}

	return nil
}

func (r *redisRepository) Delete(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("repository: failed to delete cart for user %s: %w", userID, err)
	}
	return nil
}
