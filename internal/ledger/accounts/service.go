package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service exposes registry operations over the chart of accounts.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new account. The type and subtype are fixed for the
// lifetime of the account.
func (s *Service) Register(ctx context.Context, code, name string, typ AccountType, subtype AccountSubtype) (Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Account{}, errors.New("ledger: account code required")
	}
	if strings.TrimSpace(name) == "" {
		return Account{}, errors.New("ledger: account name required")
	}
	if !typ.Valid() {
		return Account{}, fmt.Errorf("ledger: unknown account type %q", typ)
	}
	return s.repo.Insert(ctx, Account{Code: code, Name: name, Type: typ, Subtype: subtype})
}

// Get resolves an account by id.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByCode resolves an account by its code.
func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// Rename updates the display name only. There is intentionally no operation
// to change an account's type or subtype.
func (s *Service) Rename(ctx context.Context, id int64, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("ledger: account name required")
	}
	return s.repo.Rename(ctx, id, name)
}

// List returns the full chart of accounts ordered by code.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}
