package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("adding exempt column to accounts...")
		if _, err := db.ExecContext(ctx, `
			ALTER TABLE accounts
			ADD COLUMN IF NOT EXISTS exempt BOOLEAN NOT NULL DEFAULT FALSE
		`); err != nil {
			return err
		}
		// Backfill: internal accounts were exempt by convention before the
		// flag existed.
		_, err := db.ExecContext(ctx, `
			UPDATE accounts SET exempt = TRUE WHERE tier = 'internal'
		`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping exempt column from accounts...")
		_, err := db.ExecContext(ctx, `
			ALTER TABLE accounts DROP COLUMN IF EXISTS exempt
		`)
		return err
	})
}
