package metering

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/period"
)

// UsageMetricType enumerates the billable metrics the platform meters.
type UsageMetricType string

const (
	// MetricActiveEmployees is a point-in-time headcount gauge pushed by the
	// HR module.
	MetricActiveEmployees UsageMetricType = "ACTIVE_EMPLOYEES"
	// MetricDepositVolume is a cumulative counter pushed by the banking
	// module.
	MetricDepositVolume UsageMetricType = "DEPOSIT_VOLUME"
)

// Reducer names the aggregation applied over a period's observations.
type Reducer string

const (
	// ReduceSum adds all observations; used for cumulative counters.
	ReduceSum Reducer = "SUM"
	// ReduceLast keeps the most recent observation; used for gauges.
	ReduceLast Reducer = "LAST"
)

// Reducer returns the aggregation configured for the metric. The choice is
// part of the metric's definition, not a call parameter, so billing behaves
// identically everywhere the metric is read.
func (m UsageMetricType) Reducer() Reducer {
	switch m {
	case MetricDepositVolume:
		return ReduceSum
	case MetricActiveEmployees:
		return ReduceLast
	default:
		return ReduceLast
	}
}

// Valid reports whether m is a known metric.
func (m UsageMetricType) Valid() bool {
	switch m {
	case MetricActiveEmployees, MetricDepositVolume:
		return true
	}
	return false
}

// UsageLog is one metered observation. Rows are append-only; multiple
// observations for the same tenant/metric/period are all retained and
// reduced at billing time.
type UsageLog struct {
	ID         int64
	TenantID   int64
	Metric     UsageMetricType
	Period     period.Period
	Quantity   decimal.Decimal
	RecordedAt time.Time
}

// Validate checks the observation before it is appended.
func (u UsageLog) Validate() error {
	if u.TenantID == 0 {
		return fmt.Errorf("metering: tenant id required")
	}
	if !u.Metric.Valid() {
		return fmt.Errorf("metering: unknown metric %q", u.Metric)
	}
	if u.Period.IsZero() {
		return fmt.Errorf("metering: period required")
	}
	if u.Quantity.IsNegative() {
		return fmt.Errorf("metering: quantity must not be negative")
	}
	return nil
}
