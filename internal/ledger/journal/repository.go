package journal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/ledger/accounts"
	"github.com/corefin/corefin/internal/ledger/shared"
	"github.com/corefin/corefin/internal/ledger/store"
	"github.com/corefin/corefin/internal/platform/db"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, entryID int64) (JournalEntry, error)
	FindPostedByKey(ctx context.Context, tenantID int64, key string) (JournalEntry, bool, error)
}

// TxRepository exposes the operations available inside the posting
// transaction. Account lookups and ledger appends live here too, so the
// balance check, the status transition and the ledger writes share one
// atomic unit of work.
type TxRepository interface {
	InsertEntry(ctx context.Context, entry JournalEntry, lines []LineInput) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, entryID int64) (JournalEntry, error)
	GetLines(ctx context.Context, entryID int64) ([]JournalLine, error)
	FindPostedByKey(ctx context.Context, tenantID int64, key string) (JournalEntry, bool, error)
	HasReversal(ctx context.Context, entryID int64) (bool, error)
	MarkPosted(ctx context.Context, entryID int64, key string, at time.Time) error
	MarkVoid(ctx context.Context, entryID int64) error
	DeleteDraft(ctx context.Context, entryID int64) error
	GetAccount(ctx context.Context, accountID int64) (accounts.Account, error)
	AppendLedgerEntries(ctx context.Context, entries []store.LedgerEntry) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Postgres-backed journal repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// WithTx runs fn inside a RepeatableRead transaction. Row locks taken via
// GetEntryForUpdate serialise concurrent posts of the same entry; the partial
// unique index on (tenant_id, idempotency_key) makes the first writer win
// when two posts race on one key.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const entryColumns = `id, tenant_id, description, entry_date, currency, status, idempotency_key, reverses_entry_id, source_module, source_id, created_at, posted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.Description, &e.EntryDate, &e.Currency, &e.Status,
		&e.IdempotencyKey, &e.ReversesEntryID, &e.SourceModule, &e.SourceID, &e.CreatedAt, &e.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func queryLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, side, amount::text
FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		var amount string
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Side, &amount); err != nil {
			return nil, err
		}
		dec, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		line.Amount = dec
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = queryLines(ctx, r.pool, entryID)
	return entry, err
}

func (r *repository) FindPostedByKey(ctx context.Context, tenantID int64, key string) (JournalEntry, bool, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND idempotency_key=$2 AND status <> 'DRAFT'`, tenantID, key))
	if err != nil {
		if errors.Is(err, shared.ErrEntryNotFound) {
			return JournalEntry{}, false, nil
		}
		return JournalEntry{}, false, err
	}
	entry.Lines, err = queryLines(ctx, r.pool, entry.ID)
	return entry, true, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry, lines []LineInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(tenant_id, description, entry_date, currency, status, reverses_entry_id, source_module, source_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		entry.TenantID, entry.Description, entry.EntryDate, entry.Currency, entry.Status,
		entry.ReversesEntryID, entry.SourceModule, entry.SourceID)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = entry.Lines[:0]
	for _, line := range lines {
		var lineID int64
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, side, amount)
VALUES ($1,$2,$3,$4) RETURNING id`, entry.ID, line.AccountID, line.Side, line.Amount.StringFixed(2)).Scan(&lineID)
		if err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, JournalLine{
			ID:        lineID,
			EntryID:   entry.ID,
			AccountID: line.AccountID,
			Side:      line.Side,
			Amount:    line.Amount,
		})
	}
	return entry, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, entryID int64) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, entryID))
}

func (r *txRepository) GetLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	return queryLines(ctx, r.tx, entryID)
}

func (r *txRepository) FindPostedByKey(ctx context.Context, tenantID int64, key string) (JournalEntry, bool, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND idempotency_key=$2 AND status <> 'DRAFT'`, tenantID, key))
	if err != nil {
		if errors.Is(err, shared.ErrEntryNotFound) {
			return JournalEntry{}, false, nil
		}
		return JournalEntry{}, false, err
	}
	entry.Lines, err = queryLines(ctx, r.tx, entry.ID)
	return entry, true, err
}

func (r *txRepository) HasReversal(ctx context.Context, entryID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE reverses_entry_id=$1)`, entryID).Scan(&exists)
	return exists, err
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID int64, key string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', idempotency_key=$2, posted_at=$3 WHERE id=$1`,
		entryID, key, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrIdempotencyConflict
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkVoid(ctx context.Context, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='VOID' WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) DeleteDraft(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1 AND status='DRAFT'`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotDraft
	}
	return nil
}

// GetAccount fetches an account inside the posting transaction; kept here so
// the sign of every ledger row derives from account state visible to the
// same snapshot.
func (r *txRepository) GetAccount(ctx context.Context, accountID int64) (accounts.Account, error) {
	var a accounts.Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, subtype, is_active, created_at, updated_at
FROM accounts WHERE id=$1`, accountID).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, shared.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return a, nil
}

func (r *txRepository) AppendLedgerEntries(ctx context.Context, entries []store.LedgerEntry) error {
	for _, e := range entries {
		_, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries
(journal_entry_id, tenant_id, account_id, amount, currency, entry_date, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			e.JournalEntryID, e.TenantID, e.AccountID, e.Amount.StringFixed(2), e.Currency, e.EntryDate, e.PostedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
