package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Reader is the query surface over posted ledger entries. The interface has
// no update or delete methods: once a row is visible it stays exactly as
// written. Appends happen only inside the journal posting transaction.
type Reader interface {
	// EntriesForAccount returns entries ordered by entry_date then insertion
	// order. A nil asOf means no upper bound.
	EntriesForAccount(ctx context.Context, tenantID, accountID int64, asOf *time.Time) ([]LedgerEntry, error)
	// ScanAccount streams entries in the same order without materialising
	// them. Restart by calling again.
	ScanAccount(ctx context.Context, tenantID, accountID int64, asOf *time.Time, fn func(LedgerEntry) error) error
	// AccountTotals returns the signed sum per account for a tenant.
	AccountTotals(ctx context.Context, tenantID int64, asOf *time.Time) (map[int64]decimal.Decimal, error)
}

type reader struct {
	db *pgxpool.Pool
}

// NewReader builds a Postgres-backed ledger reader.
func NewReader(db *pgxpool.Pool) Reader {
	return &reader{db: db}
}

const entryColumns = `id, journal_entry_id, tenant_id, account_id, amount::text, currency, entry_date, posted_at`

func (r *reader) EntriesForAccount(ctx context.Context, tenantID, accountID int64, asOf *time.Time) ([]LedgerEntry, error) {
	var out []LedgerEntry
	err := r.ScanAccount(ctx, tenantID, accountID, asOf, func(e LedgerEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func (r *reader) ScanAccount(ctx context.Context, tenantID, accountID int64, asOf *time.Time, fn func(LedgerEntry) error) error {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE tenant_id=$1 AND account_id=$2 AND ($3::date IS NULL OR entry_date <= $3)
ORDER BY entry_date, id`, tenantID, accountID, asOf)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e LedgerEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.JournalEntryID, &e.TenantID, &e.AccountID, &amount, &e.Currency, &e.EntryDate, &e.PostedAt); err != nil {
			return err
		}
		dec, err := decimal.NewFromString(amount)
		if err != nil {
			return err
		}
		e.Amount = dec
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *reader) AccountTotals(ctx context.Context, tenantID int64, asOf *time.Time) (map[int64]decimal.Decimal, error) {
	rows, err := r.db.Query(ctx, `SELECT account_id, COALESCE(SUM(amount),0)::text FROM ledger_entries
WHERE tenant_id=$1 AND ($2::date IS NULL OR entry_date <= $2)
GROUP BY account_id`, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var accountID int64
		var sum string
		if err := rows.Scan(&accountID, &sum); err != nil {
			return nil, err
		}
		dec, err := decimal.NewFromString(sum)
		if err != nil {
			return nil, err
		}
		totals[accountID] = dec
	}
	return totals, rows.Err()
}
