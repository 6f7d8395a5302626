package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/spantoken/bridge-hub/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating accounts table...")
		// Created with raw SQL at its original shape; migration 6 brings
		// the table up to the current AccountDao schema.
		_, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS accounts (
				address    VARCHAR(255) PRIMARY KEY,
				tier       VARCHAR(32) NOT NULL DEFAULT 'standard',
				created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
			)
		`)
		if err != nil {
			return err
		}
		return mghelper.CreateIndexes(ctx, db, "accounts", "tier")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping accounts table...")
		_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS accounts CASCADE`)
		return err
	})
}
