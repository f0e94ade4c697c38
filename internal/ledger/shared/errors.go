package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateAccountCode indicates the account code is already registered.
	ErrDuplicateAccountCode = errors.New("ledger: account code already exists")
	// ErrAccountNotFound indicates a missing account reference.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrTooFewLines indicates less than two journal lines.
	ErrTooFewLines = errors.New("ledger: journal entry requires at least two lines")
	// ErrInvalidAmount indicates a non-positive amount or more than two decimal places.
	ErrInvalidAmount = errors.New("ledger: amount must be positive with at most two decimal places")
	// ErrCurrencyMismatch indicates a line currency differing from the entry currency.
	ErrCurrencyMismatch = errors.New("ledger: all lines must use the entry currency")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrAlreadyPosted indicates posting was attempted on a non-draft entry.
	ErrAlreadyPosted = errors.New("ledger: journal entry already posted")
	// ErrEntryNotPosted indicates voiding was attempted on a non-posted entry.
	ErrEntryNotPosted = errors.New("ledger: journal entry is not posted")
	// ErrAlreadyVoided indicates a reversal already exists for the entry.
	ErrAlreadyVoided = errors.New("ledger: journal entry already voided")
	// ErrNotDraft indicates a draft-only operation on a posted or void entry.
	ErrNotDraft = errors.New("ledger: journal entry is not a draft")
	// ErrTenantRequired indicates a call without a tenant identifier.
	ErrTenantRequired = errors.New("ledger: tenant id required")
	// ErrIdempotencyConflict indicates a concurrent posting won the idempotency
	// key; callers re-read the winner's entry.
	ErrIdempotencyConflict = errors.New("ledger: idempotency key already used")
)

// UnbalancedError reports a balance invariant violation with per-side totals,
// so callers can diagnose the exact delta.
type UnbalancedError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("ledger: journal lines must balance: debits (%s) != credits (%s), delta %s",
		e.Debit.StringFixed(2), e.Credit.StringFixed(2), e.Delta().StringFixed(2))
}

// Delta returns the absolute difference between the two sides.
func (e *UnbalancedError) Delta() decimal.Decimal {
	return e.Debit.Sub(e.Credit).Abs()
}
