// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Ledger errors
	ErrCorruptState       = errors.New("corrupt persisted state")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrAlreadyUnlocked    = errors.New("already unlocked")
	ErrExpired            = errors.New("expired")
	ErrVersionConflict    = errors.New("version conflict")
	ErrNetworkUnavailable = errors.New("network unavailable")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "curator", "sync"
	Op      string // Operation that failed, e.g., "SpendCurrency"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// Errorf creates a domain error with a formatted message.
func Errorf(domain, op string, kind error, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, kind, fmt.Sprintf(format, args...))
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the Kind of the outermost DomainError in err's chain, or nil.
func KindOf(err error) error {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}

// Ledger domain errors
var (
	ErrStateNotFound   = NewDomainError("ledger", "Get", ErrNotFound, "progress state not found")
	ErrLessonNotFound  = NewDomainError("ledger", "CompleteLesson", ErrNotFound, "lesson not found")
	ErrItemNotFound    = NewDomainError("ledger", "Shop", ErrNotFound, "shop item not found")
	ErrUnknownAchieve  = NewDomainError("ledger", "EvaluateAchievement", ErrNotFound, "achievement not found")
	ErrInvalidTelegram = NewDomainError("ledger", "Validate", ErrInvalidID, "invalid Telegram ID")
)

// Curator domain errors
var (
	ErrCuratorNotFound    = NewDomainError("curator", "Find", ErrNotFound, "curator not found")
	ErrAccessCodeNotFound = NewDomainError("curator", "RedeemCode", ErrNotFound, "access code not found")
	ErrAccessCodeExpired  = WrapError("curator", "RedeemCode", ErrInvalidOperation, "access code expired", ErrExpired)
	ErrAccessCodeUsed     = NewDomainError("curator", "RedeemCode", ErrInvalidOperation, "access code already redeemed")
	ErrBadCredentials     = NewDomainError("curator", "Authenticate", ErrUnauthorized, "invalid curator credentials")
)

// External service errors
var (
	ErrSyncAPIUnavailable = NewDomainError("sync", "Request", ErrNetworkUnavailable, "sync API is unreachable")
	ErrSyncAPIRateLimited = NewDomainError("sync", "Request", ErrRateLimited, "sync API rate limit exceeded")
	ErrSyncAPIInvalid     = NewDomainError("sync", "Parse", ErrInvalidFormat, "invalid response from sync API")
	ErrTelegramAPIFailed  = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsCorruptState checks if persisted state failed to decode or validate.
func IsCorruptState(err error) bool {
	return errors.Is(err, ErrCorruptState)
}

// IsInsufficientFunds checks if a spend was rejected for lack of balance.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsInvalidOperation checks if the operation is not allowed in the current state.
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsAlreadyUnlocked checks if an achievement unlock was repeated.
func IsAlreadyUnlocked(err error) bool {
	return errors.Is(err, ErrAlreadyUnlocked)
}

// IsNetworkUnavailable checks if the remote side could not be reached.
func IsNetworkUnavailable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}

// IsConflict checks if an upsert lost against a newer stored version.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrConcurrentModification)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConcurrentModification)
}
