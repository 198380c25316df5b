package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_mirror/internal/journal"
	"trade_mirror/internal/mirror"
	"trade_mirror/internal/modules/config"
	"trade_mirror/pkg/db"
)

// Module provides the mirror audit journal. Without db_dsn the journal is a no-op.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (mirror.Journal, error) {
				if cfg.DB == "" {
					log.Info("db_dsn is empty, audit journal disabled")
					return mirror.NopJournal{}, nil
				}
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.DB,
					MaxConns: 4,
				})
				if err != nil {
					return nil, errors.Wrap(err, "failed to create poolMaster")
				}
				manager := db.NewPgTxManager(poolMaster)

				j := journal.New(manager, uuid.NewString())
				if err := j.Migrate(ctx); err != nil {
					manager.Close()
					return nil, err
				}

				async := journal.NewAsync(j, journal.DefaultBuffer, journal.DefaultWriteTimeout, log)
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						defer manager.Close()
						return async.Close(ctx)
					},
				})
				return async, nil
			},
		),
	)
}
