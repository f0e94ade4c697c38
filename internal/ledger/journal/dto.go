package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/ledger/accounts"
	"github.com/corefin/corefin/internal/ledger/shared"
)

// LineInput describes one journal line for a draft request.
type LineInput struct {
	AccountID int64
	Side      accounts.Side
	Amount    decimal.Decimal
	Currency  string
}

// DraftInput groups the fields required to create a draft journal entry.
type DraftInput struct {
	TenantID     int64
	Description  string
	EntryDate    time.Time
	Currency     string
	SourceModule string
	SourceID     uuid.UUID
	Lines        []LineInput
}

// Validate enforces the draft-time invariants: tenant and currency present,
// at least two lines, every amount strictly positive with at most two decimal
// places, every line in the entry currency. Balance is deliberately not
// checked here; drafts may be unbalanced until Post.
func (in DraftInput) Validate() error {
	if in.TenantID == 0 {
		return shared.ErrTenantRequired
	}
	if strings.TrimSpace(in.Currency) == "" {
		return fmt.Errorf("ledger: entry currency required")
	}
	if in.EntryDate.IsZero() {
		return fmt.Errorf("ledger: entry date required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account: %w", idx, shared.ErrAccountNotFound)
		}
		if !line.Side.Valid() {
			return fmt.Errorf("ledger: line %d has invalid side %q", idx, line.Side)
		}
		if !validAmount(line.Amount) {
			return fmt.Errorf("ledger: line %d: %w", idx, shared.ErrInvalidAmount)
		}
		if line.Currency != "" && line.Currency != in.Currency {
			return fmt.Errorf("ledger: line %d currency %q: %w", idx, line.Currency, shared.ErrCurrencyMismatch)
		}
	}
	return nil
}

func validAmount(amt decimal.Decimal) bool {
	return amt.IsPositive() && amt.Equal(amt.Truncate(2))
}
