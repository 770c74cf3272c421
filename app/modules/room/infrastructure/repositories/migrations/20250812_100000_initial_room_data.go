package roommigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating rooms table...")
		_, err := db.NewCreateTable().Model((*roomtypes.Room)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create rooms table: %w", err)
		}

		fmt.Println("Creating players table...")
		_, err = db.NewCreateTable().Model((*roomtypes.Player)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create players table: %w", err)
		}

		// Join-code lookups are case-insensitive.
		_, err = db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_join_code ON rooms (upper(join_code))`)
		if err != nil {
			return fmt.Errorf("failed to create join code index: %w", err)
		}

		_, err = db.ExecContext(ctx,
			`CREATE INDEX IF NOT EXISTS idx_players_room_joined ON players (room_id, joined_at)`)
		if err != nil {
			return fmt.Errorf("failed to create player room index: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Rolling back rooms and players tables...")
		if _, err := db.NewDropTable().Model((*roomtypes.Player)(nil)).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop players table: %w", err)
		}
		if _, err := db.NewDropTable().Model((*roomtypes.Room)(nil)).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop rooms table: %w", err)
		}
		return nil
	})
}
