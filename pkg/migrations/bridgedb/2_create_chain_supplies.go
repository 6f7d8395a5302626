package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/spantoken/bridge-hub/pkg/db/dao"
	mghelper "github.com/spantoken/bridge-hub/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating chain_supplies table...")
		return mghelper.CreateSchema(ctx, db, &dao.ChainSupplyDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping chain_supplies table...")
		return mghelper.DropTables(ctx, db, &dao.ChainSupplyDao{})
	})
}
