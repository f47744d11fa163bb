package platform

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/gamepass-store/internal/port"
)

// CachedResolver puts an IdentityCache in front of a resolver. Only successful
// lookups are cached; cache failures fall through to the resolver.
type CachedResolver struct {
	next  port.IdentityResolver
	cache port.IdentityCache
	log   *zap.Logger
}

func NewCachedResolver(next port.IdentityResolver, cache port.IdentityCache, log *zap.Logger) *CachedResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedResolver{next: next, cache: cache, log: log}
}

func (c *CachedResolver) ResolveUser(ctx context.Context, username string) (int64, error) {
	if id, ok, err := c.cache.GetUserID(ctx, username); err != nil {
		c.log.Warn("identity cache read failed", zap.String("username", username), zap.Error(err))
	} else if ok {
		return id, nil
	}

	id, err := c.next.ResolveUser(ctx, username)
	if err != nil {
		return 0, err
	}

	if err := c.cache.SetUserID(ctx, username, id); err != nil {
		c.log.Warn("identity cache write failed", zap.String("username", username), zap.Error(err))
	}
	return id, nil
}
