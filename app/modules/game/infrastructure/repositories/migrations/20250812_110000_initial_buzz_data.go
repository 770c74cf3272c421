package gamemigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating buzzes table...")
		_, err := db.NewCreateTable().Model((*gametypes.Buzz)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create buzzes table: %w", err)
		}

		// One buzz per player per round; a demoted buzz keeps its row so the
		// player stays locked out for the rest of the round.
		_, err = db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_buzzes_one_per_round ON buzzes (room_id, song_id, player_id)`)
		if err != nil {
			return fmt.Errorf("failed to create buzz uniqueness index: %w", err)
		}

		// Fairness ordering: store clock first, insertion sequence breaks ties.
		_, err = db.ExecContext(ctx,
			`CREATE INDEX IF NOT EXISTS idx_buzzes_fairness ON buzzes (room_id, song_id, buzzed_at, seq)`)
		if err != nil {
			return fmt.Errorf("failed to create buzz fairness index: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Rolling back buzzes table...")
		if _, err := db.NewDropTable().Model((*gametypes.Buzz)(nil)).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop buzzes table: %w", err)
		}
		return nil
	})
}
