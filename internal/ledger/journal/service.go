package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corefin/corefin/internal/ledger/shared"
	"github.com/corefin/corefin/internal/ledger/store"
)

// BalanceInvalidator drops derived balance caches for the accounts touched by
// a posting. Invalidation happens after commit; the cache is never the source
// of truth.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, tenantID int64, accountIDs []int64)
}

// PostingObserver counts posting outcomes for the ops metrics endpoint.
type PostingObserver interface {
	ObservePosting(source string)
	ObserveVoid()
}

// Service implements the journal entry engine: draft creation, atomic
// posting, and voiding through compensating reversals.
type Service struct {
	repo    Repository
	cache   BalanceInvalidator
	metrics PostingObserver
	now     func() time.Time
}

// NewService builds a Service. cache may be nil.
func NewService(repo Repository, cache BalanceInvalidator) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a posting observer. Metrics are best-effort and never
// affect the outcome of an operation.
func (s *Service) WithMetrics(m PostingObserver) {
	s.metrics = m
}

// CreateDraft validates the input and stores a DRAFT entry with its lines.
// Drafts may be unbalanced; the balance invariant is checked at Post.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for idx, line := range in.Lines {
			if _, err := tx.GetAccount(ctx, line.AccountID); err != nil {
				if errors.Is(err, shared.ErrAccountNotFound) {
					return fmt.Errorf("ledger: line %d account %d: %w", idx, line.AccountID, shared.ErrAccountNotFound)
				}
				return err
			}
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			TenantID:     in.TenantID,
			Description:  in.Description,
			EntryDate:    in.EntryDate,
			Currency:     in.Currency,
			Status:       StatusDraft,
			SourceModule: in.SourceModule,
			SourceID:     in.SourceID,
		}, in.Lines)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Post transitions a DRAFT entry to POSTED and appends its ledger effects,
// all in one transaction. If idempotencyKey names an entry already posted for
// the same tenant, that entry is returned and nothing is written; a retried
// post is therefore safe. Unbalanced entries are rejected with the per-side
// totals.
func (s *Service) Post(ctx context.Context, entryID int64, idempotencyKey string) (JournalEntry, error) {
	var out JournalEntry
	var postedNow bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if idempotencyKey != "" {
			existing, ok, err := tx.FindPostedByKey(ctx, entry.TenantID, idempotencyKey)
			if err != nil {
				return err
			}
			if ok {
				out = existing
				return nil
			}
		}
		if entry.Status != StatusDraft {
			return shared.ErrAlreadyPosted
		}
		lines, err := tx.GetLines(ctx, entry.ID)
		if err != nil {
			return err
		}
		debit, credit := Totals(lines)
		if !debit.Equal(credit) {
			return &shared.UnbalancedError{Debit: debit, Credit: credit}
		}
		postedAt := s.now().UTC()
		rows, err := buildLedgerEntries(ctx, tx, entry, lines, postedAt)
		if err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, entry.ID, idempotencyKey, postedAt); err != nil {
			return err
		}
		if err := tx.AppendLedgerEntries(ctx, rows); err != nil {
			return err
		}
		entry.Status = StatusPosted
		entry.IdempotencyKey = idempotencyKey
		entry.PostedAt = &postedAt
		entry.Lines = lines
		out = entry
		postedNow = true
		return nil
	})
	if err != nil {
		// A concurrent post won the idempotency key between our check and
		// commit: surface the winner's entry instead of a duplicate.
		if errors.Is(err, shared.ErrIdempotencyConflict) && idempotencyKey != "" {
			if existing, ok, ferr := s.findWinner(ctx, entryID, idempotencyKey); ferr == nil && ok {
				return existing, nil
			}
		}
		return JournalEntry{}, err
	}
	if postedNow && s.metrics != nil {
		s.metrics.ObservePosting(out.SourceModule)
	}
	s.invalidate(ctx, out)
	return out, nil
}

// Void neutralises a posted entry by creating and posting a new entry whose
// lines mirror the original with sides swapped. The original is flagged VOID
// but never mutated beyond that flag; both entries stay queryable.
func (s *Service) Void(ctx context.Context, entryID int64, reason string) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		switch original.Status {
		case StatusVoid:
			return shared.ErrAlreadyVoided
		case StatusPosted:
		default:
			return shared.ErrEntryNotPosted
		}
		reversed, err := tx.HasReversal(ctx, original.ID)
		if err != nil {
			return err
		}
		if reversed {
			return shared.ErrAlreadyVoided
		}
		lines, err := tx.GetLines(ctx, original.ID)
		if err != nil {
			return err
		}
		mirror := make([]LineInput, 0, len(lines))
		for _, line := range lines {
			mirror = append(mirror, LineInput{
				AccountID: line.AccountID,
				Side:      line.Side.Opposite(),
				Amount:    line.Amount,
			})
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			TenantID:        original.TenantID,
			Description:     reversalDescription(reason, original.ID),
			EntryDate:       original.EntryDate,
			Currency:        original.Currency,
			Status:          StatusDraft,
			ReversesEntryID: &original.ID,
			SourceModule:    original.SourceModule,
			SourceID:        original.SourceID,
		}, mirror)
		if err != nil {
			return err
		}
		postedAt := s.now().UTC()
		rows, err := buildLedgerEntries(ctx, tx, inserted, inserted.Lines, postedAt)
		if err != nil {
			return err
		}
		if err := tx.AppendLedgerEntries(ctx, rows); err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, inserted.ID, "", postedAt); err != nil {
			return err
		}
		if err := tx.MarkVoid(ctx, original.ID); err != nil {
			return err
		}
		inserted.Status = StatusPosted
		inserted.PostedAt = &postedAt
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveVoid()
	}
	s.invalidate(ctx, reversal)
	return reversal, nil
}

// Get loads an entry with its lines.
func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	return s.repo.Get(ctx, entryID)
}

// DiscardDraft deletes an unposted draft. Posted and void entries are never
// deletable.
func (s *Service) DiscardDraft(ctx context.Context, entryID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return shared.ErrNotDraft
		}
		return tx.DeleteDraft(ctx, entry.ID)
	})
}

// buildLedgerEntries converts posted lines into signed ledger rows. The sign
// is positive when the line side matches the account's normal side.
func buildLedgerEntries(ctx context.Context, tx TxRepository, entry JournalEntry, lines []JournalLine, postedAt time.Time) ([]store.LedgerEntry, error) {
	rows := make([]store.LedgerEntry, 0, len(lines))
	for _, line := range lines {
		acct, err := tx.GetAccount(ctx, line.AccountID)
		if err != nil {
			return nil, err
		}
		amount := line.Amount
		if line.Side != acct.NormalSide() {
			amount = amount.Neg()
		}
		rows = append(rows, store.LedgerEntry{
			JournalEntryID: entry.ID,
			TenantID:       entry.TenantID,
			AccountID:      line.AccountID,
			Amount:         amount,
			Currency:       entry.Currency,
			EntryDate:      entry.EntryDate,
			PostedAt:       postedAt,
		})
	}
	return rows, nil
}

func (s *Service) findWinner(ctx context.Context, entryID int64, key string) (JournalEntry, bool, error) {
	entry, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return JournalEntry{}, false, err
	}
	return s.repo.FindPostedByKey(ctx, entry.TenantID, key)
}

func (s *Service) invalidate(ctx context.Context, entry JournalEntry) {
	if s.cache == nil || len(entry.Lines) == 0 {
		return
	}
	ids := make([]int64, 0, len(entry.Lines))
	seen := make(map[int64]bool, len(entry.Lines))
	for _, line := range entry.Lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}
	s.cache.Invalidate(ctx, entry.TenantID, ids)
}

func reversalDescription(reason string, originalID int64) string {
	if reason != "" {
		return fmt.Sprintf("Reversal of JE %d: %s", originalID, reason)
	}
	return fmt.Sprintf("Reversal of JE %d", originalID)
}
