// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFeedDisconnected is returned by a feed subscription when the stream drops.
	ErrFeedDisconnected = errors.New("feed disconnected")

	// ErrNotASwap marks a transaction that is not a swap of the tracked wallet.
	ErrNotASwap = errors.New("not a swap")

	// ErrSlippageExceeded rejects a quote before submission.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrConfirmationTimeout is recorded on results left pending.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrInsufficientBalance fails a single order.
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrWalletNotFound   = errors.New("wallet not tracked")
	ErrWalletExists     = errors.New("wallet already tracked")
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionBusy     = errors.New("position is closing")
	ErrPositionClosed   = errors.New("position is closed")
	ErrNotFound         = errors.New("not found")
	ErrLimitNotFound    = errors.New("limit order not found")
	ErrLimitNotPending  = errors.New("limit order is no longer pending")
)

// NotASwap wraps ErrNotASwap with the reason the transaction was dropped.
func NotASwap(reason string) error {
	return fmt.Errorf("%w: %s", ErrNotASwap, reason)
}

// SkipReason is a machine-readable reason a detected trade was not copied.
type SkipReason string

const (
	SkipCopyDisabled   SkipReason = "copy_disabled"
	SkipWalletDisabled SkipReason = "wallet_disabled"
	SkipDirection      SkipReason = "direction_filtered"
	SkipBlacklisted    SkipReason = "blacklisted"
	SkipNotWhitelisted SkipReason = "not_whitelisted"
	SkipBelowMinSize   SkipReason = "below_min_size"
	SkipAboveMaxSize   SkipReason = "above_max_size"
	SkipZeroSize       SkipReason = "zero_size"
	SkipNoPosition     SkipReason = "no_open_position"
)

// Skipped is the non-error outcome of an evaluation that produced no order.
type Skipped struct {
	Reason SkipReason
	Detail string
}

func (s *Skipped) Error() string {
	if s.Detail == "" {
		return "skipped: " + string(s.Reason)
	}
	return fmt.Sprintf("skipped: %s (%s)", s.Reason, s.Detail)
}

// ErrorCategory classifies an execution failure.
type ErrorCategory string

const (
	CategorySlippage            ErrorCategory = "slippage"
	CategoryInsufficientBalance ErrorCategory = "insufficient_balance"
	CategoryProgramError        ErrorCategory = "program_error"
	CategoryRouter              ErrorCategory = "router"
	CategoryExpired             ErrorCategory = "expired"
	CategoryUnknown             ErrorCategory = "unknown"
)

// ExecutionError is a categorized execution failure.
type ExecutionError struct {
	Category ErrorCategory
	Detail   string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution failed [%s]: %s: %v", e.Category, e.Detail, e.Err)
	}
	return fmt.Sprintf("execution failed [%s]: %s", e.Category, e.Detail)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError builds an ExecutionError.
func NewExecutionError(category ErrorCategory, detail string, err error) *ExecutionError {
	return &ExecutionError{Category: category, Detail: detail, Err: err}
}

// CategorizeChainError maps an on-chain error string to a category.
func CategorizeChainError(msg string) ErrorCategory {
	m := strings.ToLower(msg)
	switch {
	case m == "":
		return CategoryUnknown
	case strings.Contains(m, "slippage"),
		strings.Contains(m, "0x1771"), // jupiter SlippageToleranceExceeded
		strings.Contains(m, "exceedsdesiredslippagelimit"):
		return CategorySlippage
	case strings.Contains(m, "insufficient"):
		return CategoryInsufficientBalance
	case strings.Contains(m, "blockhash not found"),
		strings.Contains(m, "expired"):
		return CategoryExpired
	case strings.Contains(m, "instructionerror"),
		strings.Contains(m, "custom program error"),
		strings.Contains(m, "custom"):
		return CategoryProgramError
	default:
		return CategoryUnknown
	}
}

// CategoryOf extracts the category from err, if any.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	var ee *ExecutionError
	switch {
	case errors.As(err, &ee):
		return ee.Category
	case errors.Is(err, ErrSlippageExceeded):
		return CategorySlippage
	case errors.Is(err, ErrInsufficientBalance):
		return CategoryInsufficientBalance
	default:
		return CategoryUnknown
	}
}
