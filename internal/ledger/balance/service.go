package balance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/ledger/accounts"
	"github.com/corefin/corefin/internal/ledger/store"
)

// AccountsPort resolves chart of accounts entries.
type AccountsPort interface {
	Get(ctx context.Context, id int64) (accounts.Account, error)
	List(ctx context.Context) ([]accounts.Account, error)
}

// Service computes point-in-time balances and trial balances from the ledger
// store. Balances are reported in the account's normal-side polarity, so a
// healthy asset account reads as a non-negative number. Negative balances are
// returned as-is; they signal a data or business problem upstream and are
// never clamped here.
type Service struct {
	reader   store.Reader
	accounts AccountsPort
	cache    *Cache
}

// NewService builds a Service. cache may be nil.
func NewService(reader store.Reader, accounts AccountsPort, cache *Cache) *Service {
	return &Service{reader: reader, accounts: accounts, cache: cache}
}

// Balance returns the signed sum of the account's ledger entries with
// entry_date <= asOf. A nil asOf means the current balance, which may be
// served from cache; as-of queries always recompute.
func (s *Service) Balance(ctx context.Context, tenantID, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return decimal.Zero, err
	}
	if asOf == nil {
		if cached, ok := s.cache.Get(ctx, tenantID, accountID); ok {
			return cached, nil
		}
	}
	sum := decimal.Zero
	err := s.reader.ScanAccount(ctx, tenantID, accountID, asOf, func(e store.LedgerEntry) error {
		sum = sum.Add(e.Amount)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if asOf == nil {
		s.cache.Set(ctx, tenantID, accountID, sum)
	}
	return sum, nil
}

// Row is one account's balance inside a trial balance.
type Row struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.AccountType
	Balance   decimal.Decimal
}

// TrialBalance holds every account's balance at one instant.
type TrialBalance struct {
	AsOf *time.Time
	Rows []Row
}

// IsBalanced checks the global invariant: balances weighted by normal side
// sum to zero. This is a diagnostic, not a write-time gate; the per-entry
// invariant already guarantees it inductively.
func (tb TrialBalance) IsBalanced() bool {
	total := decimal.Zero
	for _, row := range tb.Rows {
		if accounts.NormalSide(row.Type) == accounts.SideDebit {
			total = total.Add(row.Balance)
		} else {
			total = total.Sub(row.Balance)
		}
	}
	return total.IsZero()
}

// TrialBalance computes the balance of every registered account for a tenant.
// Accounts without postings report zero.
func (s *Service) TrialBalance(ctx context.Context, tenantID int64, asOf *time.Time) (TrialBalance, error) {
	chart, err := s.accounts.List(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	totals, err := s.reader.AccountTotals(ctx, tenantID, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{AsOf: asOf, Rows: make([]Row, 0, len(chart))}
	for _, acct := range chart {
		bal, ok := totals[acct.ID]
		if !ok {
			bal = decimal.Zero
		}
		tb.Rows = append(tb.Rows, Row{
			AccountID: acct.ID,
			Code:      acct.Code,
			Name:      acct.Name,
			Type:      acct.Type,
			Balance:   bal,
		})
	}
	return tb, nil
}
