package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/metering"
	"github.com/corefin/corefin/internal/period"
)

// BillingFrequency is how often a schedule bills.
type BillingFrequency string

const (
	FrequencyMonthly BillingFrequency = "MONTHLY"
	FrequencyAnnual  BillingFrequency = "ANNUAL"
)

// Valid reports whether f is a known frequency.
func (f BillingFrequency) Valid() bool {
	return f == FrequencyMonthly || f == FrequencyAnnual
}

// Months returns the period advance per billing run.
func (f BillingFrequency) Months() int {
	if f == FrequencyAnnual {
		return 12
	}
	return 1
}

// Rate prices one usage metric on a schedule. Each rate credits its own
// revenue account, so subscription and usage revenue stay separable.
type Rate struct {
	ID               int64
	ScheduleID       int64
	Metric           metering.UsageMetricType
	UnitRate         decimal.Decimal
	RevenueAccountID int64
}

// Schedule is one tenant's recurring billing configuration. NextRunPeriod is
// mutated only by the runner after a successful posting (or a deliberate
// zero-charge skip); a failed run leaves it untouched so the next pass
// retries the same period.
type Schedule struct {
	ID                       int64
	TenantID                 int64
	Frequency                BillingFrequency
	BaseFee                  decimal.Decimal
	Currency                 string
	ARAccountID              int64
	BaseFeeAccountID         int64
	Rates                    []Rate
	NextRunPeriod            period.Period
	LastBilledJournalEntryID *int64
	Active                   bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// SpanElapsed reports whether every month of the schedule's next billing
// span has ended relative to current. A monthly span is its single month;
// an annual span is billed in arrears once all twelve months have elapsed,
// so no month's usage falls outside a billed span.
func (s Schedule) SpanElapsed(current period.Period) bool {
	return s.NextRunPeriod.AddMonths(s.Frequency.Months() - 1).Before(current)
}

// IdempotencyKey is the posting key for one schedule and period. Retried runs
// reuse it, which is what makes recurring billing safe to re-run.
func IdempotencyKey(scheduleID int64, p period.Period) string {
	return fmt.Sprintf("%d:%s", scheduleID, p)
}
