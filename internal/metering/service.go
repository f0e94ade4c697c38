package metering

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/period"
)

// Service collects metered usage and aggregates it for billing.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record appends one observation. Earlier observations for the same key are
// never overwritten; the reducer sorts it out at aggregation time.
func (s *Service) Record(ctx context.Context, tenantID int64, metric UsageMetricType, p period.Period, quantity decimal.Decimal) (UsageLog, error) {
	log := UsageLog{
		TenantID:   tenantID,
		Metric:     metric,
		Period:     p,
		Quantity:   quantity,
		RecordedAt: s.now().UTC(),
	}
	if err := log.Validate(); err != nil {
		return UsageLog{}, err
	}
	return s.repo.Append(ctx, log)
}

// Aggregate folds all observations for the key into a single quantity using
// the metric's configured reducer. No observations yields zero.
func (s *Service) Aggregate(ctx context.Context, tenantID int64, metric UsageMetricType, p period.Period) (decimal.Decimal, error) {
	logs, err := s.repo.ListForKey(ctx, tenantID, metric, p)
	if err != nil {
		return decimal.Zero, err
	}
	if len(logs) == 0 {
		return decimal.Zero, nil
	}
	switch metric.Reducer() {
	case ReduceSum:
		total := decimal.Zero
		for _, log := range logs {
			total = total.Add(log.Quantity)
		}
		return total, nil
	default:
		return logs[len(logs)-1].Quantity, nil
	}
}
