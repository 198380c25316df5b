package journal

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_mirror/internal/mirror"
	"trade_mirror/pkg/db"
)

type execCall struct {
	sql  string
	args []any
}

type fakeTx struct {
	calls []execCall
	err   error
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakeTx) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (f *fakeTx) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }

type fakeManager struct{ tx *fakeTx }

func (m *fakeManager) RunMaster(ctx context.Context, fn func(ctx context.Context, tx db.Transaction) error) error {
	return fn(ctx, m.tx)
}

func TestJournal_Record(t *testing.T) {
	tx := &fakeTx{}
	j := New(&fakeManager{tx: tx}, "session-1")
	at := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	err := j.Record(context.Background(), mirror.Event{
		Kind:       mirror.EventOrder,
		Target:     2,
		Account:    "Sim102",
		Instrument: "MES",
		Action:     "SELL_SHORT MARKET",
		Quantity:   6,
		OCO:        "oco-1",
		Detail:     "entry",
		At:         at,
	})
	require.NoError(t, err)
	require.Len(t, tx.calls, 1)
	assert.Contains(t, tx.calls[0].sql, "INSERT INTO mirror_events")
	assert.Equal(t, []any{"session-1", "order", 2, "Sim102", "MES", "SELL_SHORT MARKET", 6, 0.0, "oco-1", "entry", at}, tx.calls[0].args)
}

func TestJournal_ErrorsAreWrapped(t *testing.T) {
	tx := &fakeTx{err: errors.New("connection reset")}
	j := New(&fakeManager{tx: tx}, "s")

	err := j.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create mirror_events")
	assert.Contains(t, tx.calls[0].sql, "CREATE TABLE IF NOT EXISTS mirror_events")
}
