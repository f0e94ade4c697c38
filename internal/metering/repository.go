package metering

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/period"
)

// Repository persists usage observations. Append-only: there is no update or
// delete surface.
type Repository interface {
	Append(ctx context.Context, log UsageLog) (UsageLog, error)
	// ListForKey returns all observations for one tenant/metric/period,
	// ordered by recorded_at then insertion order.
	ListForKey(ctx context.Context, tenantID int64, metric UsageMetricType, p period.Period) ([]UsageLog, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a Postgres-backed usage log repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Append(ctx context.Context, log UsageLog) (UsageLog, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO usage_logs (tenant_id, metric, billing_period, quantity, recorded_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		log.TenantID, log.Metric, log.Period.String(), log.Quantity.String(), log.RecordedAt)
	if err := row.Scan(&log.ID); err != nil {
		return UsageLog{}, err
	}
	return log, nil
}

func (r *repository) ListForKey(ctx context.Context, tenantID int64, metric UsageMetricType, p period.Period) ([]UsageLog, error) {
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, metric, billing_period, quantity::text, recorded_at
FROM usage_logs WHERE tenant_id=$1 AND metric=$2 AND billing_period=$3
ORDER BY recorded_at, id`, tenantID, metric, p.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UsageLog
	for rows.Next() {
		var log UsageLog
		var rawPeriod, rawQty string
		if err := rows.Scan(&log.ID, &log.TenantID, &log.Metric, &rawPeriod, &rawQty, &log.RecordedAt); err != nil {
			return nil, err
		}
		if log.Period, err = period.Parse(rawPeriod); err != nil {
			return nil, err
		}
		if log.Quantity, err = decimal.NewFromString(rawQty); err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}
