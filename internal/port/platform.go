package port

import "context"

type IdentityResolver interface {
	// ResolveUser returns domain.ErrAccountNotFound or domain.ErrPlatformUnavailable on failure
	ResolveUser(ctx context.Context, username string) (int64, error)
}

type EntitlementChecker interface {
	// OwnsGamePass is false whenever ownership cannot be confirmed
	OwnsGamePass(ctx context.Context, userID int64, gamePassID string) (bool, error)
}
