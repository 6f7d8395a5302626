// Package accounts stores account records: the tier and exemption flags
// the rate limiter consults on every reservation.
package accounts

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// ErrAccountNotFound is returned when no record exists for an address.
var ErrAccountNotFound = errors.New("account not found")

// Account is one registered account.
type Account struct {
	Address   string
	Tier      string
	Exempt    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountDao is a data access object that maps directly to the 'accounts' table in PostgreSQL.
type AccountDao struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`
	Address       string    `bun:"address,pk,type:varchar(255)"`
	Tier          string    `bun:"tier,notnull,type:varchar(32),default:'standard'"`
	Exempt        bool      `bun:"exempt,notnull,default:false"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toAccountDao(a *Account) *AccountDao {
	return &AccountDao{
		Address:   a.Address,
		Tier:      a.Tier,
		Exempt:    a.Exempt,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAccount(dao *AccountDao) *Account {
	return &Account{
		Address:   dao.Address,
		Tier:      dao.Tier,
		Exempt:    dao.Exempt,
		CreatedAt: dao.CreatedAt,
		UpdatedAt: dao.UpdatedAt,
	}
}
