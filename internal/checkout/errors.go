package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrPaymentTokenConflict means the token already paid for another
	// customer's order.
	ErrPaymentTokenConflict = errors.New("payment token belongs to another order")
)

// TxError reports a persistence failure or timeout inside a checkout unit of
// work. Nothing was committed; the caller may retry.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("checkout: %s: %v: %v", e.Op, ErrTransactionFailed, e.Err)
}

func (e *TxError) Unwrap() []error {
	return []error{ErrTransactionFailed, e.Err}
}

// Retryable is always true: the unit of work was rolled back.
func (e *TxError) Retryable() bool {
	return true
}

// IsRetryable reports whether err carries a retryable checkout failure.
func IsRetryable(err error) bool {
	var txErr *TxError
	return errors.As(err, &txErr) && txErr.Retryable()
}
