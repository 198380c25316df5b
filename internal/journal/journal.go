// Package journal appends mirror audit events to postgres. The table is
// write-only: nothing in the service reads it back.
package journal

import (
	"context"

	"github.com/pkg/errors"

	"trade_mirror/internal/mirror"
	"trade_mirror/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS mirror_events (
	id          BIGSERIAL PRIMARY KEY,
	session     TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	target      INT         NOT NULL DEFAULT 0,
	account     TEXT        NOT NULL DEFAULT '',
	instrument  TEXT        NOT NULL DEFAULT '',
	action      TEXT        NOT NULL DEFAULT '',
	quantity    INT         NOT NULL DEFAULT 0,
	price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	oco         TEXT        NOT NULL DEFAULT '',
	detail      TEXT        NOT NULL DEFAULT '',
	at          TIMESTAMPTZ NOT NULL
)`

const insertEvent = `
INSERT INTO mirror_events (session, kind, target, account, instrument, action, quantity, price, oco, detail, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

type Journal struct {
	tx      db.TxManager
	session string
}

// New returns a journal writing rows tagged with session.
func New(tx db.TxManager, session string) *Journal {
	return &Journal{tx: tx, session: session}
}

// Migrate creates the events table when it is missing.
func (j *Journal) Migrate(ctx context.Context) error {
	return j.tx.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctx, schema)
		return errors.Wrap(err, "create mirror_events")
	})
}

func (j *Journal) Record(ctx context.Context, ev mirror.Event) error {
	return j.tx.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctx, insertEvent,
			j.session, string(ev.Kind), ev.Target, ev.Account, ev.Instrument,
			ev.Action, ev.Quantity, ev.Price, ev.OCO, ev.Detail, ev.At,
		)
		return errors.Wrap(err, "insert mirror event")
	})
}
