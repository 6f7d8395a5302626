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
		log.Println("creating rate_windows table...")
		return mghelper.CreateSchema(ctx, db, &dao.RateWindowDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping rate_windows table...")
		return mghelper.DropTables(ctx, db, &dao.RateWindowDao{})
	})
}
