package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/corefin/corefin/internal/ledger/accounts"
	"github.com/corefin/corefin/internal/ledger/journal"
	"github.com/corefin/corefin/internal/metering"
	"github.com/corefin/corefin/internal/period"
)

// SourceModule tags journal entries produced by recurring billing.
const SourceModule = "billing"

// JournalPort is the slice of the journal engine the runner needs.
type JournalPort interface {
	CreateDraft(ctx context.Context, in journal.DraftInput) (journal.JournalEntry, error)
	Post(ctx context.Context, entryID int64, idempotencyKey string) (journal.JournalEntry, error)
}

// MeterPort aggregates usage for one tenant/metric/period.
type MeterPort interface {
	Aggregate(ctx context.Context, tenantID int64, metric metering.UsageMetricType, p period.Period) (decimal.Decimal, error)
}

// RunReport summarises one scheduler pass.
type RunReport struct {
	Schedules int
	Posted    int
	Skipped   int
	Failed    int
}

// Service drives recurring billing: it aggregates metered usage for elapsed
// periods and posts one journal entry per schedule per period.
type Service struct {
	repo        Repository
	meter       MeterPort
	journal     JournalPort
	logger      *slog.Logger
	validate    *validator.Validate
	concurrency int
}

// NewService builds a Service instance.
func NewService(repo Repository, meter MeterPort, jrnl JournalPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		meter:       meter,
		journal:     jrnl,
		logger:      logger,
		validate:    validator.New(),
		concurrency: 4,
	}
}

// WithConcurrency bounds the per-schedule fan-out of Run.
func (s *Service) WithConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// CreateSchedule registers a billing schedule from a plan definition.
func (s *Service) CreateSchedule(ctx context.Context, in CreateScheduleInput) (Schedule, error) {
	if err := s.validate.Struct(in); err != nil {
		return Schedule{}, fmt.Errorf("billing: invalid schedule: %w", err)
	}
	start, err := period.Parse(in.StartPeriod)
	if err != nil {
		return Schedule{}, err
	}
	if in.BaseFee.IsNegative() {
		return Schedule{}, fmt.Errorf("billing: base fee must not be negative")
	}
	if in.BaseFee.IsPositive() && in.BaseFeeAccountID == 0 {
		return Schedule{}, fmt.Errorf("billing: base fee revenue account required")
	}
	rates := make([]Rate, 0, len(in.Rates))
	for _, r := range in.Rates {
		if !r.Metric.Valid() {
			return Schedule{}, fmt.Errorf("billing: unknown metric %q", r.Metric)
		}
		if r.UnitRate.IsNegative() {
			return Schedule{}, fmt.Errorf("billing: unit rate for %s must not be negative", r.Metric)
		}
		rates = append(rates, Rate{Metric: r.Metric, UnitRate: r.UnitRate, RevenueAccountID: r.RevenueAccountID})
	}
	return s.repo.Create(ctx, Schedule{
		TenantID:         in.TenantID,
		Frequency:        in.Frequency,
		BaseFee:          in.BaseFee,
		Currency:         in.Currency,
		ARAccountID:      in.ARAccountID,
		BaseFeeAccountID: in.BaseFeeAccountID,
		Rates:            rates,
		NextRunPeriod:    start,
	})
}

// Run processes every schedule whose billing span has elapsed as of now.
// The clock is an explicit argument so runs are reproducible; nothing here
// reads process-wide time. Schedules are independent: one failure is logged
// and counted but never blocks the rest, and a failed schedule's period is
// left un-advanced so the next pass retries it under the same idempotency
// key.
func (s *Service) Run(ctx context.Context, now time.Time) (RunReport, error) {
	current := period.Of(now)
	due, err := s.repo.ListDue(ctx, current)
	if err != nil {
		return RunReport{}, err
	}

	var mu sync.Mutex
	report := RunReport{Schedules: len(due)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, sched := range due {
		g.Go(func() error {
			for sched.SpanElapsed(current) {
				p := sched.NextRunPeriod
				posted, err := s.billPeriod(ctx, &sched)
				mu.Lock()
				switch {
				case err != nil:
					report.Failed++
				case posted:
					report.Posted++
				default:
					report.Skipped++
				}
				mu.Unlock()
				if err != nil {
					s.logger.Error("billing run failed",
						slog.Int64("schedule_id", sched.ID),
						slog.Int64("tenant_id", sched.TenantID),
						slog.String("period", p.String()),
						slog.Any("error", err))
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}

// billPeriod bills the span starting at the schedule's NextRunPeriod and
// advances it. Usage is aggregated month by month so the metric's reducer
// applies per month; an annual charge is the sum of its twelve monthly
// aggregates. A zero charge skips the posting but still advances the period.
func (s *Service) billPeriod(ctx context.Context, sched *Schedule) (bool, error) {
	p := sched.NextRunPeriod
	last := p.AddMonths(sched.Frequency.Months() - 1)
	next := last.AddMonths(1)

	type component struct {
		accountID int64
		amount    decimal.Decimal
	}
	var comps []component
	total := decimal.Zero
	if sched.BaseFee.IsPositive() {
		comps = append(comps, component{sched.BaseFeeAccountID, sched.BaseFee})
		total = total.Add(sched.BaseFee)
	}
	for _, rate := range sched.Rates {
		qty := decimal.Zero
		for m := p; !last.Before(m); m = m.AddMonths(1) {
			q, err := s.meter.Aggregate(ctx, sched.TenantID, rate.Metric, m)
			if err != nil {
				return false, fmt.Errorf("aggregate %s %s: %w", rate.Metric, m, err)
			}
			qty = qty.Add(q)
		}
		amount := rate.UnitRate.Mul(qty).Round(2)
		if amount.IsPositive() {
			comps = append(comps, component{rate.RevenueAccountID, amount})
			total = total.Add(amount)
		}
	}

	if !total.IsPositive() {
		if err := s.repo.Advance(ctx, sched.ID, next, nil); err != nil {
			return false, err
		}
		sched.NextRunPeriod = next
		return false, nil
	}

	lines := make([]journal.LineInput, 0, len(comps)+1)
	lines = append(lines, journal.LineInput{
		AccountID: sched.ARAccountID,
		Side:      accounts.SideDebit,
		Amount:    total,
	})
	for _, comp := range comps {
		lines = append(lines, journal.LineInput{
			AccountID: comp.accountID,
			Side:      accounts.SideCredit,
			Amount:    comp.amount,
		})
	}

	desc := fmt.Sprintf("Recurring billing for %s", p)
	if last != p {
		desc = fmt.Sprintf("Recurring billing for %s to %s", p, last)
	}
	draft, err := s.journal.CreateDraft(ctx, journal.DraftInput{
		TenantID:     sched.TenantID,
		Description:  desc,
		EntryDate:    last.End(),
		Currency:     sched.Currency,
		SourceModule: SourceModule,
		SourceID:     uuid.New(),
		Lines:        lines,
	})
	if err != nil {
		return false, fmt.Errorf("create draft: %w", err)
	}
	posted, err := s.journal.Post(ctx, draft.ID, IdempotencyKey(sched.ID, p))
	if err != nil {
		return false, fmt.Errorf("post: %w", err)
	}
	if err := s.repo.Advance(ctx, sched.ID, next, &posted.ID); err != nil {
		return false, err
	}
	sched.NextRunPeriod = next
	sched.LastBilledJournalEntryID = &posted.ID
	return true, nil
}
