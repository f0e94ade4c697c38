package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/corefin/corefin/internal/jobs"
	"github.com/corefin/corefin/internal/ledger/balance"
)

// TrialBalanceCheckJob recomputes the trial balance for every tenant with
// ledger activity and fails loudly when any tenant drifts from zero. Posting
// guarantees balance per entry, so a drift here means corruption outside the
// write path and warrants an alert.
type TrialBalanceCheckJob struct {
	balances *balance.Service
	pool     *pgxpool.Pool
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewTrialBalanceCheckJob constructs the handler. metrics may be nil.
func NewTrialBalanceCheckJob(balances *balance.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *TrialBalanceCheckJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrialBalanceCheckJob{balances: balances, pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeTrialBalanceCheck tasks.
func (j *TrialBalanceCheckJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("trial_balance_check")
	var payload TrialBalanceCheckPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			j.logger.Error("trial balance payload", slog.Any("error", err))
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
	}
	var asOf *time.Time
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			j.logger.Error("trial balance as_of", slog.String("as_of", payload.AsOf), slog.Any("error", err))
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		asOf = &parsed
	}

	tenants, err := j.listTenants(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("list tenants: %w", err))
	}

	drifted := 0
	for _, tenantID := range tenants {
		tb, err := j.balances.TrialBalance(ctx, tenantID, asOf)
		if err != nil {
			return tracker.End(fmt.Errorf("trial balance tenant %d: %w", tenantID, err))
		}
		if !tb.IsBalanced() {
			drifted++
			j.logger.Error("trial balance drift detected", slog.Int64("tenant_id", tenantID))
		}
	}
	if drifted > 0 {
		return tracker.End(fmt.Errorf("trial balance drift in %d tenant(s)", drifted))
	}
	j.logger.Info("trial balance check passed", slog.Int("tenants", len(tenants)))
	return tracker.End(nil)
}

func (j *TrialBalanceCheckJob) listTenants(ctx context.Context) ([]int64, error) {
	rows, err := j.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM ledger_entries ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
