// Package presence keeps the profile fields the realtime/presence layer caches per user.
// Other instances read the same Redis hash, so an avatar change is visible everywhere
// as soon as SetAvatar returns.
package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const imageField = "image"

// Store writes cached user profiles in Redis.
// Keys: <prefix>:user:<userID> -> hash {image, ...}
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a Store using keys under prefix.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

// SetAvatar sets the cached avatar image for userID, leaving other profile fields alone.
func (s *Store) SetAvatar(ctx context.Context, userID, url string) error {
	if err := s.client.HSet(ctx, s.userKey(userID), imageField, url).Err(); err != nil {
		return fmt.Errorf("set cached avatar: %w", err)
	}
	return nil
}
