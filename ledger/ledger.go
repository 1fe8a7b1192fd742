// Package ledger implements the credit ledger prizes are paid into.
package ledger

import "errors"

// ErrAccountNotFound is returned when no account matches the reference.
var ErrAccountNotFound = errors.New("ledger: account not found")
