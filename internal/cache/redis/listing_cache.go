package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refmet/catmarket/internal/domain"
)

const listingTTL = 2 * time.Minute

// ListingCache implements domain.ListingCache with JSON-serialized listing
// snapshots. The tender board re-reads the listing on every render, so a
// short TTL keeps the hot path off Postgres while settlement invalidates
// eagerly on every status change.
type ListingCache struct {
	rdb *redis.Client
}

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.Underlying()}
}

func listingKey(id string) string { return "listing:" + id }

// Set stores a listing snapshot with the package TTL.
func (lc *ListingCache) Set(ctx context.Context, listing domain.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("redis: marshal listing %s: %w", listing.ID, err)
	}
	if err := lc.rdb.Set(ctx, listingKey(listing.ID), data, listingTTL).Err(); err != nil {
		return fmt.Errorf("redis: set listing %s: %w", listing.ID, err)
	}
	return nil
}

// Get retrieves a listing by ID. It returns domain.ErrNotFound on a miss.
func (lc *ListingCache) Get(ctx context.Context, id string) (domain.Listing, error) {
	data, err := lc.rdb.Get(ctx, listingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("redis: get listing %s: %w", id, err)
	}

	var listing domain.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return domain.Listing{}, fmt.Errorf("redis: unmarshal listing %s: %w", id, err)
	}
	return listing, nil
}

// Invalidate removes a listing snapshot.
func (lc *ListingCache) Invalidate(ctx context.Context, id string) error {
	if err := lc.rdb.Del(ctx, listingKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate listing %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ListingCache = (*ListingCache)(nil)
