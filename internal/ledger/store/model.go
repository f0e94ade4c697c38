package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is the posted, immutable effect of one journal line on one
// account. The amount is signed in the account's normal-side polarity:
// positive when the line increases the account's normal balance.
//
// Rows are created only inside the posting transaction and are never updated
// or deleted; voiding posts new rows from a reversing entry instead.
type LedgerEntry struct {
	ID             int64
	JournalEntryID int64
	TenantID       int64
	AccountID      int64
	Amount         decimal.Decimal
	Currency       string
	EntryDate      time.Time
	PostedAt       time.Time
}
