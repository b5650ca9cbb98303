package ports

import (
	"errors"
	"fmt"
)

// Error classes. Components wrap one of the specific errors below; callers
// classify with errors.Is against either the specific error or its class.
var (
	// ErrConfiguration marks errors caused by how the engine was wired or configured.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvariant marks ledger invariant violations (caller or data-feed bugs).
	ErrInvariant = errors.New("invariant violation")
)

// Configuration errors
var (
	ErrNoNotifier          = fmt.Errorf("%w: no notifier registered for event kind", ErrConfiguration)
	ErrDuplicateNotifier   = fmt.Errorf("%w: notifier already registered for event kind", ErrConfiguration)
	ErrListenerMismatch    = fmt.Errorf("%w: listener type does not match notifier", ErrConfiguration)
	ErrYearFixedRule       = fmt.Errorf("%w: rule fixes the year field, no next occurrence exists", ErrConfiguration)
	ErrEmptyTrigger        = fmt.Errorf("%w: rule fixes no trigger field", ErrConfiguration)
	ErrInvalidRule         = fmt.Errorf("%w: invalid time rule", ErrConfiguration)
	ErrDuplicateSingleShot = fmt.Errorf("%w: single-shot event already registered at this timestamp", ErrConfiguration)
	ErrUnknownKind         = fmt.Errorf("%w: event kind has no registered rule", ErrConfiguration)
	ErrDuplicateKind       = fmt.Errorf("%w: event kind already has a rule", ErrConfiguration)
	ErrClockDirection      = fmt.Errorf("%w: clock cannot move backwards", ErrConfiguration)
)

// Invariant violations
var (
	ErrPositionClosed     = fmt.Errorf("%w: position is closed", ErrInvariant)
	ErrInstrumentMismatch = fmt.Errorf("%w: transaction instrument does not match position", ErrInvariant)
	ErrZeroQuantity       = fmt.Errorf("%w: transaction quantity is zero", ErrInvariant)
	ErrInvalidQuantity    = fmt.Errorf("%w: transaction quantity must be finite", ErrInvariant)
	ErrInvalidPrice       = fmt.Errorf("%w: price must be positive and finite", ErrInvariant)
	ErrInvalidCommission  = fmt.Errorf("%w: commission must be a finite non-negative amount", ErrInvariant)
	ErrDirectionFlip      = fmt.Errorf("%w: transaction flips position direction, split it first", ErrInvariant)
	ErrPositionOpen       = fmt.Errorf("%w: position is still open", ErrInvariant)
)

// Adapter errors. Infrastructure failures are wrapped with these.
var (
	ErrUnknown              = errors.New("unknown error occurred")
	ErrInvalidRequest       = errors.New("invalid request parameters or format")
	ErrNotFound             = errors.New("resource not found")
	ErrTimeout              = errors.New("operation timed out")
	ErrContextCanceled      = errors.New("operation canceled via context")
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrDuplicateEntry       = errors.New("database record already exists")
	ErrDBConnection         = errors.New("database connection error")
	ErrQueryFailed          = errors.New("database query failed")
	ErrMalformedRecord      = errors.New("malformed input record")
)
