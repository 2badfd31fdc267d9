// Package avatar replaces a user's profile picture: the previous object is removed, the new
// one is stored under avatars/, and both the users row and the presence cache are repointed.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radif/media/internal/media"
	"github.com/radif/media/internal/metrics"
	"github.com/radif/media/internal/user"
)

// MaxSize is the byte cap for an avatar image.
const MaxSize int64 = 512 << 10

const keyPrefix = "avatars/"

// UserStore holds the authoritative avatar pointer.
type UserStore interface {
	AvatarURL(ctx context.Context, userID string) (string, error)
	UpdateAvatarURL(ctx context.Context, userID, url string) error
}

// ProfileCache is the presence layer's copy of the profile.
type ProfileCache interface {
	SetAvatar(ctx context.Context, userID, url string) error
}

// Replacer performs avatar replacement.
type Replacer struct {
	users   UserStore
	cache   ProfileCache
	store   media.ObjectStore
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewReplacer creates a Replacer.
func NewReplacer(users UserStore, cache ProfileCache, store media.ObjectStore, m *metrics.Metrics, log *zap.SugaredLogger) *Replacer {
	return &Replacer{
		users:   users,
		cache:   cache,
		store:   store,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Validate checks the avatar constraints without touching any store.
func Validate(f media.File) error {
	t, ok := media.TypeOf(f.ContentType)
	if !ok || t != media.TypeImage {
		return fmt.Errorf("%w: avatar must be an image, got %q", media.ErrUnsupportedMediaType, f.ContentType)
	}
	if f.Size > MaxSize {
		return fmt.Errorf("%w: avatar exceeds maximum size of %d KiB", media.ErrPayloadTooLarge, MaxSize>>10)
	}
	return nil
}

// Replace stores f as userID's avatar and returns its public URL.
//
// The previous avatar object is deleted before the upload; a failed delete is logged and
// ignored. Once the new object is stored, the users row and the presence cache are both
// updated. If either update fails the call returns ErrProfileUpdateFailed and the new object
// stays in place.
func (r *Replacer) Replace(ctx context.Context, userID string, f media.File) (string, error) {
	// The id becomes part of the object key, so anything but a UUID is refused.
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", media.ErrUnauthorized
	}
	userID = id.String()
	if err := Validate(f); err != nil {
		r.metrics.AvatarReplaced.WithLabelValues("rejected").Inc()
		return "", err
	}

	current, err := r.users.AvatarURL(ctx, userID)
	switch {
	case errors.Is(err, user.ErrNotFound):
		return "", media.ErrUnauthorized
	case err != nil:
		// Without the old pointer there is nothing to clean up; the upload can still proceed.
		r.log.Warnw("could not read current avatar", "user_id", userID, "error", err)
	default:
		r.deleteOld(ctx, userID, current)
	}

	key := fmt.Sprintf("%s%s_%d.%s", keyPrefix, userID, r.now().UnixMilli(), media.Extension(f.Name, f.ContentType))
	if err := r.store.Upload(ctx, key, f.Body, f.Size, f.ContentType); err != nil {
		r.metrics.AvatarReplaced.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("%w: %w", media.ErrStorageWriteFailed, err)
	}
	url := r.store.PublicURL(key)

	var g errgroup.Group
	g.Go(func() error {
		if err := r.users.UpdateAvatarURL(ctx, userID, url); err != nil {
			return fmt.Errorf("update user avatar: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return r.cache.SetAvatar(ctx, userID, url)
	})
	if err := g.Wait(); err != nil {
		r.metrics.AvatarReplaced.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("%w: %w", media.ErrProfileUpdateFailed, err)
	}

	r.metrics.AvatarReplaced.WithLabelValues("ok").Inc()
	return url, nil
}

// deleteOld removes the object behind current when it is one of our avatar keys.
// URLs from other origins (e.g. an OAuth provider picture) are left alone.
func (r *Replacer) deleteOld(ctx context.Context, userID, current string) {
	if current == "" {
		return
	}
	key, ok := r.store.KeyFromURL(current)
	if !ok || !strings.HasPrefix(key, keyPrefix) {
		return
	}
	if err := r.store.Delete(ctx, key); err != nil {
		r.metrics.OldAvatarErrors.Inc()
		r.log.Warnw("failed to delete previous avatar", "user_id", userID, "key", key, "error", err)
	}
}
