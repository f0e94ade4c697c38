package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/corefin/corefin/internal/ledger/accounts"
	"github.com/corefin/corefin/internal/ledger/shared"
	"github.com/corefin/corefin/internal/ledger/store"
)

// memRepo implements Repository and TxRepository over maps. The service only
// mutates state after all validations pass, so the fake does not need real
// rollback semantics.
type memRepo struct {
	accounts   map[int64]accounts.Account
	entries    map[int64]JournalEntry
	lines      map[int64][]JournalLine
	ledger     []store.LedgerEntry
	nextEntry  int64
	nextLine   int64
	nextLedger int64
}

func newMemRepo(accts ...accounts.Account) *memRepo {
	r := &memRepo{
		accounts: make(map[int64]accounts.Account),
		entries:  make(map[int64]JournalEntry),
		lines:    make(map[int64][]JournalLine),
	}
	for _, a := range accts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memRepo) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	e, ok := r.entries[entryID]
	if !ok {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	e.Lines = r.lines[entryID]
	return e, nil
}

func (r *memRepo) FindPostedByKey(ctx context.Context, tenantID int64, key string) (JournalEntry, bool, error) {
	for id, e := range r.entries {
		if e.TenantID == tenantID && e.IdempotencyKey == key && e.Status != StatusDraft {
			e.Lines = r.lines[id]
			return e, true, nil
		}
	}
	return JournalEntry{}, false, nil
}

func (r *memRepo) InsertEntry(ctx context.Context, entry JournalEntry, lines []LineInput) (JournalEntry, error) {
	r.nextEntry++
	entry.ID = r.nextEntry
	entry.CreatedAt = time.Now()
	var stored []JournalLine
	for _, line := range lines {
		r.nextLine++
		stored = append(stored, JournalLine{
			ID:        r.nextLine,
			EntryID:   entry.ID,
			AccountID: line.AccountID,
			Side:      line.Side,
			Amount:    line.Amount,
		})
	}
	r.entries[entry.ID] = entry
	r.lines[entry.ID] = stored
	entry.Lines = stored
	return entry, nil
}

func (r *memRepo) GetEntryForUpdate(ctx context.Context, entryID int64) (JournalEntry, error) {
	e, ok := r.entries[entryID]
	if !ok {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	return e, nil
}

func (r *memRepo) GetLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	return r.lines[entryID], nil
}

func (r *memRepo) HasReversal(ctx context.Context, entryID int64) (bool, error) {
	for _, e := range r.entries {
		if e.ReversesEntryID != nil && *e.ReversesEntryID == entryID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) MarkPosted(ctx context.Context, entryID int64, key string, at time.Time) error {
	e, ok := r.entries[entryID]
	if !ok {
		return shared.ErrEntryNotFound
	}
	if key != "" {
		for id, other := range r.entries {
			if id != entryID && other.TenantID == e.TenantID && other.IdempotencyKey == key && other.Status != StatusDraft {
				return shared.ErrIdempotencyConflict
			}
		}
	}
	e.Status = StatusPosted
	e.IdempotencyKey = key
	e.PostedAt = &at
	r.entries[entryID] = e
	return nil
}

func (r *memRepo) MarkVoid(ctx context.Context, entryID int64) error {
	e, ok := r.entries[entryID]
	if !ok {
		return shared.ErrEntryNotFound
	}
	e.Status = StatusVoid
	r.entries[entryID] = e
	return nil
}

func (r *memRepo) DeleteDraft(ctx context.Context, entryID int64) error {
	delete(r.entries, entryID)
	delete(r.lines, entryID)
	return nil
}

func (r *memRepo) GetAccount(ctx context.Context, accountID int64) (accounts.Account, error) {
	a, ok := r.accounts[accountID]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (r *memRepo) AppendLedgerEntries(ctx context.Context, entries []store.LedgerEntry) error {
	for _, e := range entries {
		r.nextLedger++
		e.ID = r.nextLedger
		r.ledger = append(r.ledger, e)
	}
	return nil
}

type recordingCache struct {
	tenants  []int64
	accounts [][]int64
}

func (c *recordingCache) Invalidate(ctx context.Context, tenantID int64, accountIDs []int64) {
	c.tenants = append(c.tenants, tenantID)
	c.accounts = append(c.accounts, accountIDs)
}

var (
	acctAR  = accounts.Account{ID: 1, Code: "1100", Name: "Accounts Receivable", Type: accounts.AccountTypeAsset, Subtype: accounts.SubtypeAccountsReceivable}
	acctRev = accounts.Account{ID: 2, Code: "4000", Name: "Subscription Revenue", Type: accounts.AccountTypeRevenue, Subtype: accounts.SubtypeSubscriptionRevenue}
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func draftLines(debit, credit string) []LineInput {
	return []LineInput{
		{AccountID: acctAR.ID, Side: accounts.SideDebit, Amount: amount(debit)},
		{AccountID: acctRev.ID, Side: accounts.SideCredit, Amount: amount(credit)},
	}
}

func newDraft(t *testing.T, svc *Service, debit, credit string) JournalEntry {
	t.Helper()
	entry, err := svc.CreateDraft(context.Background(), DraftInput{
		TenantID:    7,
		Description: "subscription invoice",
		EntryDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:    "USD",
		Lines:       draftLines(debit, credit),
	})
	require.NoError(t, err)
	return entry
}

func TestCreateDraftValidation(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	svc := NewService(repo, nil)
	ctx := context.Background()
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreateDraft(ctx, DraftInput{TenantID: 7, Currency: "USD", EntryDate: date,
		Lines: []LineInput{{AccountID: 1, Side: accounts.SideDebit, Amount: amount("10")}}})
	require.ErrorIs(t, err, shared.ErrTooFewLines)

	_, err = svc.CreateDraft(ctx, DraftInput{TenantID: 7, Currency: "USD", EntryDate: date,
		Lines: []LineInput{
			{AccountID: 99, Side: accounts.SideDebit, Amount: amount("10")},
			{AccountID: 2, Side: accounts.SideCredit, Amount: amount("10")},
		}})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)

	_, err = svc.CreateDraft(ctx, DraftInput{TenantID: 7, Currency: "USD", EntryDate: date,
		Lines: []LineInput{
			{AccountID: 1, Side: accounts.SideDebit, Amount: amount("-10")},
			{AccountID: 2, Side: accounts.SideCredit, Amount: amount("10")},
		}})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.CreateDraft(ctx, DraftInput{TenantID: 7, Currency: "USD", EntryDate: date,
		Lines: []LineInput{
			{AccountID: 1, Side: accounts.SideDebit, Amount: amount("10.005")},
			{AccountID: 2, Side: accounts.SideCredit, Amount: amount("10.005")},
		}})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.CreateDraft(ctx, DraftInput{TenantID: 7, Currency: "USD", EntryDate: date,
		Lines: []LineInput{
			{AccountID: 1, Side: accounts.SideDebit, Amount: amount("10"), Currency: "EUR"},
			{AccountID: 2, Side: accounts.SideCredit, Amount: amount("10")},
		}})
	require.ErrorIs(t, err, shared.ErrCurrencyMismatch)

	_, err = svc.CreateDraft(ctx, DraftInput{Currency: "USD", EntryDate: date, Lines: draftLines("10", "10")})
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestPostBalancedEntry(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	cache := &recordingCache{}
	svc := NewService(repo, cache)

	draft := newDraft(t, svc, "599.00", "599.00")
	require.Equal(t, StatusDraft, draft.Status)

	posted, err := svc.Post(context.Background(), draft.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)

	require.Len(t, repo.ledger, 2)
	byAccount := map[int64]decimal.Decimal{}
	for _, row := range repo.ledger {
		byAccount[row.AccountID] = row.Amount
	}
	// Both rows are positive: each line sits on its account's normal side.
	require.True(t, byAccount[acctAR.ID].Equal(amount("599.00")))
	require.True(t, byAccount[acctRev.ID].Equal(amount("599.00")))

	require.Equal(t, []int64{7}, cache.tenants)
	require.ElementsMatch(t, []int64{acctAR.ID, acctRev.ID}, cache.accounts[0])
}

func TestPostUnbalancedEntry(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	svc := NewService(repo, nil)

	draft := newDraft(t, svc, "100.00", "99.99")
	_, err := svc.Post(context.Background(), draft.ID, "")

	var unbalanced *shared.UnbalancedError
	require.ErrorAs(t, err, &unbalanced)
	require.True(t, unbalanced.Delta().Equal(amount("0.01")))
	require.True(t, unbalanced.Debit.Equal(amount("100.00")))
	require.True(t, unbalanced.Credit.Equal(amount("99.99")))

	require.Empty(t, repo.ledger)
	got, err := svc.Get(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
}

func TestPostIdempotency(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	svc := NewService(repo, nil)
	ctx := context.Background()

	first := newDraft(t, svc, "252.00", "252.00")
	second := newDraft(t, svc, "252.00", "252.00")

	posted, err := svc.Post(ctx, first.ID, "sched-9:2025-02")
	require.NoError(t, err)

	// Posting a different draft under the same key returns the original.
	dup, err := svc.Post(ctx, second.ID, "sched-9:2025-02")
	require.NoError(t, err)
	require.Equal(t, posted.ID, dup.ID)
	require.Len(t, repo.ledger, 2)

	// Re-posting the same entry under the same key is a no-op too.
	again, err := svc.Post(ctx, first.ID, "sched-9:2025-02")
	require.NoError(t, err)
	require.Equal(t, posted.ID, again.ID)
	require.Len(t, repo.ledger, 2)
}

func TestPostAlreadyPosted(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	svc := NewService(repo, nil)
	ctx := context.Background()

	draft := newDraft(t, svc, "10.00", "10.00")
	_, err := svc.Post(ctx, draft.ID, "")
	require.NoError(t, err)

	_, err = svc.Post(ctx, draft.ID, "")
	require.ErrorIs(t, err, shared.ErrAlreadyPosted)
}

func TestVoidMirrorsAndNeutralises(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	svc := NewService(repo, nil)
	ctx := context.Background()

	draft := newDraft(t, svc, "599.00", "599.00")
	posted, err := svc.Post(ctx, draft.ID, "")
	require.NoError(t, err)

	reversal, err := svc.Void(ctx, posted.ID, "customer refund")
	require.NoError(t, err)
	require.Equal(t, StatusPosted, reversal.Status)
	require.NotNil(t, reversal.ReversesEntryID)
	require.Equal(t, posted.ID, *reversal.ReversesEntryID)

	// Sides swapped line by line.
	require.Len(t, reversal.Lines, 2)
	for i, line := range reversal.Lines {
		require.Equal(t, posted.Lines[i].AccountID, line.AccountID)
		require.Equal(t, posted.Lines[i].Side.Opposite(), line.Side)
		require.True(t, posted.Lines[i].Amount.Equal(line.Amount))
	}

	// Net ledger effect per account is zero.
	net := map[int64]decimal.Decimal{}
	for _, row := range repo.ledger {
		prev, ok := net[row.AccountID]
		if !ok {
			prev = decimal.Zero
		}
		net[row.AccountID] = prev.Add(row.Amount)
	}
	for accountID, sum := range net {
		require.True(t, sum.IsZero(), "account %d net %s", accountID, sum)
	}

	// Original flagged VOID, still queryable with its lines intact.
	original, err := svc.Get(ctx, posted.ID)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, original.Status)
	require.Len(t, original.Lines, 2)

	_, err = svc.Void(ctx, posted.ID, "again")
	require.ErrorIs(t, err, shared.ErrAlreadyVoided)
}

func TestVoidRequiresPostedEntry(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	svc := NewService(repo, nil)

	draft := newDraft(t, svc, "10.00", "10.00")
	_, err := svc.Void(context.Background(), draft.ID, "nope")
	require.ErrorIs(t, err, shared.ErrEntryNotPosted)
}

func TestDiscardDraft(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	svc := NewService(repo, nil)
	ctx := context.Background()

	draft := newDraft(t, svc, "10.00", "10.00")
	require.NoError(t, svc.DiscardDraft(ctx, draft.ID))
	_, err := svc.Get(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrEntryNotFound)

	posted := newDraft(t, svc, "10.00", "10.00")
	_, err = svc.Post(ctx, posted.ID, "")
	require.NoError(t, err)
	err = svc.DiscardDraft(ctx, posted.ID)
	require.ErrorIs(t, err, shared.ErrNotDraft)
}

func TestPostSurvivesIdempotencyRace(t *testing.T) {
	repo := newMemRepo(acctAR, acctRev)
	svc := NewService(repo, nil)
	ctx := context.Background()

	winner := newDraft(t, svc, "50.00", "50.00")
	loser := newDraft(t, svc, "50.00", "50.00")

	// Simulate the race: the winner commits between the loser's key check
	// and its MarkPosted, so the loser hits the unique index.
	raced := &racingRepo{memRepo: repo, winnerSvc: svc, winnerID: winner.ID, key: "race:1"}
	loserSvc := NewService(raced, nil)

	got, err := loserSvc.Post(ctx, loser.ID, "race:1")
	require.NoError(t, err)
	require.Equal(t, winner.ID, got.ID)
	require.Len(t, repo.ledger, 2)
}

// racingRepo posts the winner entry lazily, after the caller's idempotency
// pre-check has already come back empty.
type racingRepo struct {
	*memRepo
	winnerSvc *Service
	winnerID  int64
	key       string
	fired     bool
}

func (r *racingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *racingRepo) FindPostedByKey(ctx context.Context, tenantID int64, key string) (JournalEntry, bool, error) {
	if !r.fired {
		r.fired = true
		if _, err := r.winnerSvc.Post(ctx, r.winnerID, r.key); err != nil {
			return JournalEntry{}, false, err
		}
		return JournalEntry{}, false, nil
	}
	return r.memRepo.FindPostedByKey(ctx, tenantID, key)
}

func TestPostMissingEntry(t *testing.T) {
	svc := NewService(newMemRepo(acctAR, acctRev), nil)
	_, err := svc.Post(context.Background(), 404, "")
	require.ErrorIs(t, err, shared.ErrEntryNotFound)
	require.False(t, errors.Is(err, shared.ErrAlreadyPosted))
}
