package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/corefin/corefin/internal/billing"
	jobmetrics "github.com/corefin/corefin/internal/jobs"
)

// BillingRunJob drives the recurring billing scheduler from the task queue.
type BillingRunJob struct {
	service *billing.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewBillingRunJob constructs the handler. metrics may be nil.
func NewBillingRunJob(service *billing.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *BillingRunJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingRunJob{service: service, logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (j *BillingRunJob) WithNow(now func() time.Time) {
	if now != nil {
		j.now = now
	}
}

// Handle processes TaskTypeBillingRun tasks. The run itself isolates
// per-schedule failures; the task only fails (and is retried by Asynq) when
// the due-schedule listing cannot be loaded at all.
func (j *BillingRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("billing_run")
	var payload BillingRunPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			j.logger.Error("billing run payload", slog.Any("error", err))
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
	}
	runAt, err := payload.runAtTime(j.now)
	if err != nil {
		j.logger.Error("billing run_at", slog.String("run_at", payload.RunAt), slog.Any("error", err))
		_ = tracker.End(err)
		return asynq.SkipRetry
	}

	report, err := j.service.Run(ctx, runAt)
	if err != nil {
		j.logger.Error("billing run", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddBillingOutcomes(report.Posted, report.Skipped, report.Failed)
	j.logger.Info("billing run finished",
		slog.Int("schedules", report.Schedules),
		slog.Int("posted", report.Posted),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	return tracker.End(nil)
}
