package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/period"
)

// ErrScheduleNotFound indicates a missing billing schedule.
var ErrScheduleNotFound = errors.New("billing: schedule not found")

// Repository persists billing schedules and their rates.
type Repository interface {
	Create(ctx context.Context, s Schedule) (Schedule, error)
	Get(ctx context.Context, id int64) (Schedule, error)
	// ListDue returns active schedules whose NextRunPeriod precedes the
	// given period. This is a coarse filter: the runner still checks
	// Schedule.SpanElapsed, since an annual span starts before it ends.
	ListDue(ctx context.Context, before period.Period) ([]Schedule, error)
	// Advance moves NextRunPeriod forward after a successful run and, when
	// a posting happened, records the journal entry it produced.
	Advance(ctx context.Context, scheduleID int64, next period.Period, journalEntryID *int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a Postgres-backed schedule repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, s Schedule) (Schedule, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Schedule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `INSERT INTO billing_schedules
(tenant_id, frequency, base_fee, currency, ar_account_id, base_fee_account_id, next_run_period, active)
VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE) RETURNING id, created_at, updated_at`,
		s.TenantID, s.Frequency, s.BaseFee.StringFixed(2), s.Currency,
		s.ARAccountID, s.BaseFeeAccountID, s.NextRunPeriod.String())
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Schedule{}, err
	}
	for i := range s.Rates {
		rate := &s.Rates[i]
		rate.ScheduleID = s.ID
		err := tx.QueryRow(ctx, `INSERT INTO billing_schedule_rates (schedule_id, metric, unit_rate, revenue_account_id)
VALUES ($1,$2,$3,$4) RETURNING id`, s.ID, rate.Metric, rate.UnitRate.String(), rate.RevenueAccountID).Scan(&rate.ID)
		if err != nil {
			return Schedule{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Schedule{}, err
	}
	s.Active = true
	return s, nil
}

const scheduleColumns = `id, tenant_id, frequency, base_fee::text, currency, ar_account_id, base_fee_account_id, next_run_period, last_billed_journal_entry_id, active, created_at, updated_at`

func (r *repository) scanSchedule(row pgx.Row) (Schedule, error) {
	var s Schedule
	var baseFee, nextRun string
	err := row.Scan(&s.ID, &s.TenantID, &s.Frequency, &baseFee, &s.Currency, &s.ARAccountID,
		&s.BaseFeeAccountID, &nextRun, &s.LastBilledJournalEntryID, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Schedule{}, ErrScheduleNotFound
		}
		return Schedule{}, err
	}
	if s.BaseFee, err = decimal.NewFromString(baseFee); err != nil {
		return Schedule{}, err
	}
	if s.NextRunPeriod, err = period.Parse(nextRun); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func (r *repository) loadRates(ctx context.Context, s *Schedule) error {
	rows, err := r.db.Query(ctx, `SELECT id, schedule_id, metric, unit_rate::text, revenue_account_id
FROM billing_schedule_rates WHERE schedule_id=$1 ORDER BY id`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var rate Rate
		var unitRate string
		if err := rows.Scan(&rate.ID, &rate.ScheduleID, &rate.Metric, &unitRate, &rate.RevenueAccountID); err != nil {
			return err
		}
		if rate.UnitRate, err = decimal.NewFromString(unitRate); err != nil {
			return err
		}
		s.Rates = append(s.Rates, rate)
	}
	return rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Schedule, error) {
	s, err := r.scanSchedule(r.db.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM billing_schedules WHERE id=$1`, id))
	if err != nil {
		return Schedule{}, err
	}
	if err := r.loadRates(ctx, &s); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func (r *repository) ListDue(ctx context.Context, before period.Period) ([]Schedule, error) {
	// next_run_period is stored as YYYY-MM, so lexicographic order matches
	// chronological order.
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM billing_schedules
WHERE active AND next_run_period < $1 ORDER BY id`, before.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		s, err := r.scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadRates(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *repository) Advance(ctx context.Context, scheduleID int64, next period.Period, journalEntryID *int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE billing_schedules
SET next_run_period=$2, last_billed_journal_entry_id=COALESCE($3, last_billed_journal_entry_id), updated_at=NOW()
WHERE id=$1`, scheduleID, next.String(), journalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}
