package balance

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/corefin/corefin/internal/ledger/accounts"
	"github.com/corefin/corefin/internal/ledger/shared"
	"github.com/corefin/corefin/internal/ledger/store"
)

type memReader struct {
	entries []store.LedgerEntry
	scans   int
}

func (r *memReader) EntriesForAccount(ctx context.Context, tenantID, accountID int64, asOf *time.Time) ([]store.LedgerEntry, error) {
	var out []store.LedgerEntry
	err := r.ScanAccount(ctx, tenantID, accountID, asOf, func(e store.LedgerEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func (r *memReader) ScanAccount(ctx context.Context, tenantID, accountID int64, asOf *time.Time, fn func(store.LedgerEntry) error) error {
	r.scans++
	sorted := make([]store.LedgerEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].EntryDate.Equal(sorted[j].EntryDate) {
			return sorted[i].EntryDate.Before(sorted[j].EntryDate)
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, e := range sorted {
		if e.TenantID != tenantID || e.AccountID != accountID {
			continue
		}
		if asOf != nil && e.EntryDate.After(*asOf) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *memReader) AccountTotals(ctx context.Context, tenantID int64, asOf *time.Time) (map[int64]decimal.Decimal, error) {
	totals := make(map[int64]decimal.Decimal)
	for _, e := range r.entries {
		if e.TenantID != tenantID {
			continue
		}
		if asOf != nil && e.EntryDate.After(*asOf) {
			continue
		}
		prev, ok := totals[e.AccountID]
		if !ok {
			prev = decimal.Zero
		}
		totals[e.AccountID] = prev.Add(e.Amount)
	}
	return totals, nil
}

type memAccounts struct {
	byID map[int64]accounts.Account
}

func (m *memAccounts) Get(ctx context.Context, id int64) (accounts.Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (m *memAccounts) List(ctx context.Context) ([]accounts.Account, error) {
	out := make([]accounts.Account, 0, len(m.byID))
	for _, a := range m.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func chart() *memAccounts {
	return &memAccounts{byID: map[int64]accounts.Account{
		1: {ID: 1, Code: "1100", Name: "Accounts Receivable", Type: accounts.AccountTypeAsset},
		2: {ID: 2, Code: "4000", Name: "Subscription Revenue", Type: accounts.AccountTypeRevenue},
	}}
}

func TestBalanceScenario(t *testing.T) {
	jan1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reader := &memReader{entries: []store.LedgerEntry{
		{ID: 1, JournalEntryID: 1, TenantID: 7, AccountID: 1, Amount: dec("599.00"), Currency: "USD", EntryDate: jan1},
		{ID: 2, JournalEntryID: 1, TenantID: 7, AccountID: 2, Amount: dec("599.00"), Currency: "USD", EntryDate: jan1},
	}}
	svc := NewService(reader, chart(), nil)
	ctx := context.Background()

	ar, err := svc.Balance(ctx, 7, 1, &jan1)
	require.NoError(t, err)
	require.True(t, ar.Equal(dec("599.00")))

	rev, err := svc.Balance(ctx, 7, 2, &jan1)
	require.NoError(t, err)
	require.True(t, rev.Equal(dec("599.00")))

	// Another tenant sees nothing.
	other, err := svc.Balance(ctx, 8, 1, nil)
	require.NoError(t, err)
	require.True(t, other.IsZero())

	_, err = svc.Balance(ctx, 7, 999, nil)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestBalanceAsOfCutoff(t *testing.T) {
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	reader := &memReader{entries: []store.LedgerEntry{
		{ID: 1, TenantID: 7, AccountID: 1, Amount: dec("100.00"), EntryDate: jan},
		{ID: 2, TenantID: 7, AccountID: 1, Amount: dec("50.00"), EntryDate: feb},
	}}
	svc := NewService(reader, chart(), nil)
	ctx := context.Background()

	cutoff := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	got, err := svc.Balance(ctx, 7, 1, &cutoff)
	require.NoError(t, err)
	require.True(t, got.Equal(dec("100.00")))

	full, err := svc.Balance(ctx, 7, 1, nil)
	require.NoError(t, err)
	require.True(t, full.Equal(dec("150.00")))
}

func TestNegativeBalanceSurfaced(t *testing.T) {
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	reader := &memReader{entries: []store.LedgerEntry{
		{ID: 1, TenantID: 7, AccountID: 1, Amount: dec("-25.00"), EntryDate: jan},
	}}
	svc := NewService(reader, chart(), nil)

	got, err := svc.Balance(context.Background(), 7, 1, nil)
	require.NoError(t, err)
	require.True(t, got.Equal(dec("-25.00")))
}

func TestTrialBalance(t *testing.T) {
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	reader := &memReader{entries: []store.LedgerEntry{
		{ID: 1, TenantID: 7, AccountID: 1, Amount: dec("599.00"), EntryDate: jan},
		{ID: 2, TenantID: 7, AccountID: 2, Amount: dec("599.00"), EntryDate: jan},
	}}
	svc := NewService(reader, chart(), nil)

	tb, err := svc.TrialBalance(context.Background(), 7, nil)
	require.NoError(t, err)
	require.Len(t, tb.Rows, 2)
	require.True(t, tb.IsBalanced())

	// Empty ledger for another tenant is trivially balanced with zero rows.
	empty, err := svc.TrialBalance(context.Background(), 8, nil)
	require.NoError(t, err)
	require.True(t, empty.IsBalanced())
	for _, row := range empty.Rows {
		require.True(t, row.Balance.IsZero())
	}
}

func TestTrialBalanceDetectsDrift(t *testing.T) {
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	// Hand-crafted corrupt state: a ledger row without its counterpart.
	reader := &memReader{entries: []store.LedgerEntry{
		{ID: 1, TenantID: 7, AccountID: 1, Amount: dec("100.00"), EntryDate: jan},
	}}
	svc := NewService(reader, chart(), nil)

	tb, err := svc.TrialBalance(context.Background(), 7, nil)
	require.NoError(t, err)
	require.False(t, tb.IsBalanced())
}

func TestBalanceCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	reader := &memReader{entries: []store.LedgerEntry{
		{ID: 1, TenantID: 7, AccountID: 1, Amount: dec("42.00"), EntryDate: jan},
	}}
	svc := NewService(reader, chart(), cache)
	ctx := context.Background()

	first, err := svc.Balance(ctx, 7, 1, nil)
	require.NoError(t, err)
	require.True(t, first.Equal(dec("42.00")))
	require.Equal(t, 1, reader.scans)

	// Second current-balance read is served from cache.
	second, err := svc.Balance(ctx, 7, 1, nil)
	require.NoError(t, err)
	require.True(t, second.Equal(dec("42.00")))
	require.Equal(t, 1, reader.scans)

	// As-of reads bypass the cache.
	_, err = svc.Balance(ctx, 7, 1, &jan)
	require.NoError(t, err)
	require.Equal(t, 2, reader.scans)

	// Invalidation forces a recompute.
	cache.Invalidate(ctx, 7, []int64{1})
	reader.entries = append(reader.entries, store.LedgerEntry{ID: 2, TenantID: 7, AccountID: 1, Amount: dec("8.00"), EntryDate: jan})
	third, err := svc.Balance(ctx, 7, 1, nil)
	require.NoError(t, err)
	require.True(t, third.Equal(dec("50.00")))
	require.Equal(t, 3, reader.scans)
}
