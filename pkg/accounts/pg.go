package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

// Store is the account persistence surface.
type Store interface {
	Upsert(ctx context.Context, account *Account) error
	Get(ctx context.Context, address string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	SetTier(ctx context.Context, address, tier string) error
	SetExempt(ctx context.Context, address string, exempt bool) error
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the account store
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Upsert(ctx context.Context, account *Account) error {
	dao := toAccountDao(account)

	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (address) DO UPDATE").
		Set("tier = EXCLUDED.tier").
		Set("exempt = EXCLUDED.exempt").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, address string) (*Account, error) {
	dao := new(AccountDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("address = ?", address).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return toAccount(dao), nil
}

func (s *pgStore) List(ctx context.Context) ([]*Account, error) {
	var daos []AccountDao
	if err := s.db.NewSelect().Model(&daos).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]*Account, len(daos))
	for i := range daos {
		accounts[i] = toAccount(&daos[i])
	}
	return accounts, nil
}

func (s *pgStore) SetTier(ctx context.Context, address, tier string) error {
	res, err := s.db.NewUpdate().
		Model((*AccountDao)(nil)).
		Set("tier = ?", tier).
		Set("updated_at = NOW()").
		Where("address = ?", address).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *pgStore) SetExempt(ctx context.Context, address string, exempt bool) error {
	res, err := s.db.NewUpdate().
		Model((*AccountDao)(nil)).
		Set("exempt = ?", exempt).
		Set("updated_at = NOW()").
		Where("address = ?", address).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set exempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
