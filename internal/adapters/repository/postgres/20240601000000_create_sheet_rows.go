package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.NewCreateTable().Model((*SheetRow)(nil)).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("create sheet_rows: %w", err)
			}
			if _, err := db.NewCreateIndex().
				Model((*SheetRow)(nil)).
				Index("sheet_rows_resource_idx").
				Column("resource", "is_header", "id").
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("create sheet_rows_resource_idx: %w", err)
			}
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.NewDropTable().Model((*SheetRow)(nil)).IfExists().Cascade().Exec(ctx); err != nil {
				return fmt.Errorf("drop sheet_rows: %w", err)
			}
			return nil
		},
	)
}
