package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// RateWindowDao maps to the 'rate_windows' table: persisted sliding-window
// state so quotas survive a restart. The account column is empty for the
// global aggregate windows.
type RateWindowDao struct {
	bun.BaseModel `bun:"table:rate_windows,alias:rw"`
	Account       string    `bun:"account,pk,type:varchar(255)"`
	OpType        string    `bun:"op_type,pk,type:varchar(20)"`
	TokensUsed    string    `bun:"tokens_used,notnull,type:numeric(38,18)"`
	TxCount       int       `bun:"tx_count,use_zero"`
	WindowStart   time.Time `bun:"window_start,nullzero"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}
