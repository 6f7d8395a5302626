package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ChainSupplyDao maps to the 'chain_supplies' table: the last attested
// supply per registered chain.
type ChainSupplyDao struct {
	bun.BaseModel     `bun:"table:chain_supplies,alias:cs"`
	ChainID           int64     `bun:"chain_id,pk"`
	TotalSupply       string    `bun:"total_supply,notnull,type:numeric(38,18)"`
	LockedSupply      string    `bun:"locked_supply,notnull,type:numeric(38,18)"`
	CirculatingSupply string    `bun:"circulating_supply,notnull,type:numeric(38,18)"`
	LastUpdateTime    time.Time `bun:"last_update_time,nullzero"`
	UpdateCount       int64     `bun:"update_count,use_zero"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}
