package apperrors

import "errors"

// Standardized provider-transport errors.
var (
	ErrNetwork              = errors.New("network error")
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrExchangeMaintenance  = errors.New("exchange maintenance")
	ErrSystemOverload       = errors.New("system overload")
	ErrTimestampOutOfBounds = errors.New("timestamp out of bounds")
)

// Broker rejection errors, returned (non-fatal) in a broker call's
// errors[] slice. Never retried.
var (
	ErrKillSwitchActive      = errors.New("KILL_SWITCH_ACTIVE")
	ErrNotionalCapExceeded   = errors.New("REJECTED: Order notional exceeds limit")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrPositionCapExceeded   = errors.New("position cap exceeded")
	ErrVolumeCapInsufficient = errors.New("volume cap insufficient")
	ErrDuplicateOrderID      = errors.New("duplicate order id")
	ErrInvalidPrice          = errors.New("invalid price")
)
