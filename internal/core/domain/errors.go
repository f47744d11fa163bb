package domain

import "errors"

var (
	ErrAlreadyRedeemed     = errors.New("transaction already redeemed")
	ErrOrderNotFound       = errors.New("order not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrPlatformUnavailable = errors.New("platform service unavailable")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidCatalog      = errors.New("invalid catalog")
)
