package migration

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/countercore/tally/internal/config"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, genID *snowflake.Node, cfg config.Config) error {
		if err := RunMigrations(conn); err != nil {
			return err
		}
		if err := EnsurePolicy(conn, genID); err != nil {
			return err
		}
		return EnsureLoyaltySettings(conn, genID, cfg)
	}),
)
