package billing

import (
	"github.com/shopspring/decimal"

	"github.com/corefin/corefin/internal/metering"
)

// RateInput configures one metered rate on a new schedule.
type RateInput struct {
	Metric           metering.UsageMetricType `validate:"required"`
	UnitRate         decimal.Decimal
	RevenueAccountID int64 `validate:"required,gt=0"`
}

// CreateScheduleInput carries the billing-plan definition supplied by
// subscription management.
type CreateScheduleInput struct {
	TenantID         int64            `validate:"required,gt=0"`
	Frequency        BillingFrequency `validate:"required,oneof=MONTHLY ANNUAL"`
	BaseFee          decimal.Decimal
	Currency         string `validate:"required,len=3"`
	ARAccountID      int64  `validate:"required,gt=0"`
	BaseFeeAccountID int64
	StartPeriod      string `validate:"required"`
	Rates            []RateInput `validate:"dive"`
}
