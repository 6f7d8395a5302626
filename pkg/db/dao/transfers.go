// Package dao holds the bun data access objects for the bridge database.
package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// TransferDao is a data access object that maps directly to the 'transfers' table in PostgreSQL.
type TransferDao struct {
	bun.BaseModel `bun:"table:transfers,alias:t"`
	ID            string     `bun:"id,pk,type:varchar(128)"`
	Sender        string     `bun:"sender,notnull,type:varchar(255)"`
	Recipient     string     `bun:"recipient,notnull,type:varchar(255)"`
	Amount        string     `bun:"amount,notnull,type:numeric(38,18)"`
	SourceChain   int64      `bun:"source_chain,notnull"`
	DestChain     int64      `bun:"dest_chain,notnull"`
	Protocol      string     `bun:"protocol,notnull,type:varchar(20)"`
	Status        string     `bun:"status,notnull,type:varchar(20)"`
	Timestamp     time.Time  `bun:"timestamp,notnull"`
	MessageHash   *string    `bun:"message_hash,type:varchar(66)"`
	Nonce         int64      `bun:"nonce,use_zero"`
	CorrelationID *string    `bun:"correlation_id,type:varchar(128)"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,default:current_timestamp"`
	CompletedAt   *time.Time `bun:"completed_at"`
	ErrorMessage  *string    `bun:"error_message,type:text"`
}
