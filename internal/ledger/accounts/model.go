package accounts

import "time"

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// AccountSubtype is the finer classification within a type.
type AccountSubtype string

const (
	SubtypeCash                AccountSubtype = "CASH"
	SubtypeAccountsReceivable  AccountSubtype = "ACCOUNTS_RECEIVABLE"
	SubtypePrepaidExpense      AccountSubtype = "PREPAID_EXPENSE"
	SubtypeAccountsPayable     AccountSubtype = "ACCOUNTS_PAYABLE"
	SubtypeDeferredRevenue     AccountSubtype = "DEFERRED_REVENUE"
	SubtypeRetainedEarnings    AccountSubtype = "RETAINED_EARNINGS"
	SubtypeSubscriptionRevenue AccountSubtype = "SUBSCRIPTION_REVENUE"
	SubtypeUsageRevenue        AccountSubtype = "USAGE_REVENUE"
	SubtypeOperatingExpense    AccountSubtype = "OPERATING_EXPENSE"
)

// Side is the debit/credit polarity of a journal line or an account's
// normal balance.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Valid reports whether s is DEBIT or CREDIT.
func (s Side) Valid() bool {
	return s == SideDebit || s == SideCredit
}

// Opposite returns the mirrored side.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// NormalSide derives the normal balance side from the account type.
// Assets and expenses grow on the debit side; everything else on credit.
func NormalSide(t AccountType) Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account models a chart of accounts node. Type and Subtype are fixed at
// registration; only the display name may change afterwards, since changing
// the type would invalidate historical postings.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	Subtype   AccountSubtype
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalSide returns the account's normal balance side.
func (a Account) NormalSide() Side {
	return NormalSide(a.Type)
}
