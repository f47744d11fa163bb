package port

import "context"

type ReferenceLocker interface {
	// LockReference blocks until no other workflow holds tx or ctx is done
	LockReference(ctx context.Context, tx string) (unlock func(), err error)
}

type IdentityCache interface {
	// GetUserID returns ok=false on a cache miss
	GetUserID(ctx context.Context, username string) (userID int64, ok bool, err error)

	// SetUserID stores a resolved account id
	SetUserID(ctx context.Context, username string, userID int64) error
}
