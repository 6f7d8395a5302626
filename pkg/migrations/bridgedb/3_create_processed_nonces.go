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
		log.Println("creating processed_nonces table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.ProcessedNonceDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.ProcessedNonceDao{}, "chain_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping processed_nonces table...")
		return mghelper.DropTables(ctx, db, &dao.ProcessedNonceDao{})
	})
}
