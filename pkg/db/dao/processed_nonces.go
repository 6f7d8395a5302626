package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ProcessedNonceDao maps to the 'processed_nonces' table: the journal of
// consumed inbound nonces per (protocol, chain). The composite primary
// key makes duplicate journal writes impossible.
type ProcessedNonceDao struct {
	bun.BaseModel `bun:"table:processed_nonces,alias:pn"`
	Protocol      string    `bun:"protocol,pk,type:varchar(20)"`
	ChainID       int64     `bun:"chain_id,pk"`
	Nonce         int64     `bun:"nonce,pk"`
	ProcessedAt   time.Time `bun:"processed_at,nullzero,default:current_timestamp"`
}
