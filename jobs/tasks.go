package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeBillingRun triggers a recurring-billing pass over due schedules.
	TaskTypeBillingRun = "billing:run"
	// TaskTypeTrialBalanceCheck verifies the trial balance per tenant.
	TaskTypeTrialBalanceCheck = "ledger:trial_balance_check"
)

// BillingRunPayload parameterises one billing pass. RunAt is optional; when
// empty the handler bills up to the current wall-clock period, so the cron
// task can use a static payload.
type BillingRunPayload struct {
	RunAt string `json:"run_at,omitempty"`
}

// runAtTime resolves the explicit clock for the pass.
func (p BillingRunPayload) runAtTime(fallback func() time.Time) (time.Time, error) {
	if p.RunAt == "" {
		return fallback(), nil
	}
	return time.Parse(time.RFC3339, p.RunAt)
}

// NewBillingRunTask constructs an Asynq task for a billing pass.
func NewBillingRunTask(payload BillingRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBillingRun, data), nil
}

// TrialBalanceCheckPayload parameterises the integrity check. An empty AsOf
// checks current balances.
type TrialBalanceCheckPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewTrialBalanceCheckTask constructs an Asynq task for the integrity check.
func NewTrialBalanceCheckTask(payload TrialBalanceCheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTrialBalanceCheck, data), nil
}
