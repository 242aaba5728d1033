package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for trade rejections. The handler layer maps these to
// the human-readable reason strings in buy/sell responses. None of them
// mutate ledger state.
var (
	ErrUnknownSymbol       = errors.New("unknown_symbol")
	ErrInvalidSize         = errors.New("invalid_size")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInsufficientHolding = errors.New("insufficient_holding")
	ErrNotApproved         = errors.New("not_approved")
	ErrApprovalTimeout     = errors.New("approval_timeout")
	ErrCircuitOpen         = errors.New("circuit_open")
)

// ApprovalError wraps an unexpected failure from the approval gate,
// keeping the underlying detail for the response reason.
type ApprovalError struct {
	Detail string
	Err    error
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("approval_error: %s", e.Detail)
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}
