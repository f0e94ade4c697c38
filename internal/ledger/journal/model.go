package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/ledger/accounts"
)

// Status enumerates the journal entry lifecycle.
//
// DRAFT -> POSTED is the only forward transition. VOID marks a posted entry
// that has been neutralised by a reversing entry; the rows themselves are
// never edited or deleted.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// JournalEntry is a transaction header. After posting, the entry and its
// lines are immutable; a later reversal is a new entry pointing back through
// ReversesEntryID.
type JournalEntry struct {
	ID              int64
	TenantID        int64
	Description     string
	EntryDate       time.Time
	Currency        string
	Status          Status
	IdempotencyKey  string
	ReversesEntryID *int64
	SourceModule    string
	SourceID        uuid.UUID
	CreatedAt       time.Time
	PostedAt        *time.Time
	Lines           []JournalLine
}

// JournalLine is one side-tagged amount within an entry.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Side      accounts.Side
	Amount    decimal.Decimal
}

// Totals sums the given lines per side.
func Totals(lines []JournalLine) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		if line.Side == accounts.SideDebit {
			debit = debit.Add(line.Amount)
		} else {
			credit = credit.Add(line.Amount)
		}
	}
	return debit, credit
}
