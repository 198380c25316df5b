package mirror

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade_mirror/internal/models"
	"trade_mirror/internal/platform/paper"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(_ context.Context, msg string) error {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	return nil
}

func newReconcilerFixture(t *testing.T, alertOnDesync bool) (*paper.Platform, *Reconciler, *recordingNotifier) {
	t.Helper()
	p := paper.New(nil)
	p.AddInstrument(mnq)
	p.AddInstrument(mes)
	p.AddAccount("Primary")
	p.AddAccount("SimA")

	reg := NewRegistry("Primary", "MNQ", []TargetSpec{
		{Instrument: "MES", Account: "SimA", Direction: models.DirectionOpposite, Multiplier: 1},
	}, zap.NewNop())
	require.NoError(t, reg.Resolve(context.Background(), p))

	n := &recordingNotifier{}
	r := NewReconciler(ReconcilerOptions{
		Platform:      p,
		Registry:      reg,
		AlertOnDesync: alertOnDesync,
		Notifier:      n,
	})
	return p, r, n
}

func TestReconciler_MainClosedFiresOncePerTransition(t *testing.T) {
	p, r, n := newReconcilerFixture(t, true)
	ctx := context.Background()

	// primary Flat -> Long -> Flat -> Flat, mirror Short throughout
	p.SetPosition("SimA", "MES", -1, 5000)

	assert.Empty(t, r.Poll(ctx))

	p.SetPosition("Primary", "MNQ", 1, 18000)
	assert.Empty(t, r.Poll(ctx))

	p.SetPosition("Primary", "MNQ", 0, 0)
	alerts := r.Poll(ctx)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMainClosedMirrorOpen, alerts[0].Kind)
	assert.Equal(t, models.Short, alerts[0].Mirror.Market)

	assert.Empty(t, r.Poll(ctx))
	assert.Empty(t, r.Poll(ctx))

	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0], "primary is flat")
}

func TestReconciler_MirrorClosedMainOpen(t *testing.T) {
	p, r, _ := newReconcilerFixture(t, false)
	ctx := context.Background()

	p.SetPosition("Primary", "MNQ", 2, 18000)
	p.SetPosition("SimA", "MES", -2, 5000)
	assert.Empty(t, r.Poll(ctx))

	p.SetPosition("SimA", "MES", 0, 0)
	alerts := r.Poll(ctx)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMirrorClosedMainOpen, alerts[0].Kind)

	assert.Empty(t, r.Poll(ctx))
}

func TestReconciler_BothClosedIsNotDesync(t *testing.T) {
	p, r, _ := newReconcilerFixture(t, true)
	ctx := context.Background()

	p.SetPosition("Primary", "MNQ", 1, 18000)
	p.SetPosition("SimA", "MES", -1, 5000)
	r.Poll(ctx)

	p.SetPosition("Primary", "MNQ", 0, 0)
	p.SetPosition("SimA", "MES", 0, 0)
	assert.Empty(t, r.Poll(ctx))
}

func TestReconciler_NotifiesOnlyWhenEnabled(t *testing.T) {
	p, r, n := newReconcilerFixture(t, false)
	ctx := context.Background()

	p.SetPosition("Primary", "MNQ", 1, 18000)
	p.SetPosition("SimA", "MES", -1, 5000)
	r.Poll(ctx)
	p.SetPosition("Primary", "MNQ", 0, 0)

	assert.Len(t, r.Poll(ctx), 1)
	assert.Empty(t, n.msgs)
}

func TestReconciler_StoresSnapshotsEveryPoll(t *testing.T) {
	p, r, _ := newReconcilerFixture(t, true)
	ctx := context.Background()
	key := models.PositionKey{Account: "SimA", Instrument: "MES"}

	_, ok := r.Snapshot(key)
	assert.False(t, ok)

	p.SetPosition("SimA", "MES", -3, 5000)
	r.Poll(ctx)
	s, ok := r.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, models.Short, s.Market)
	assert.Equal(t, -3, s.Quantity)

	primary, ok := r.Snapshot(models.PositionKey{Account: "Primary", Instrument: "MNQ"})
	require.True(t, ok)
	assert.False(t, primary.Market.IsOpen())
}

func TestReconciler_FailedMirrorReadKeepsPrimaryEdge(t *testing.T) {
	p, r, n := newReconcilerFixture(t, true)
	ctx := context.Background()
	key := models.PositionKey{Account: "SimA", Instrument: "MES"}

	p.SetPosition("Primary", "MNQ", 1, 18000)
	p.SetPosition("SimA", "MES", -1, 5000)
	assert.Empty(t, r.Poll(ctx))

	// primary closes while the mirror cannot be read
	p.FailPositions("SimA", errors.New("timeout"))
	p.SetPosition("Primary", "MNQ", 0, 0)
	assert.Empty(t, r.Poll(ctx))
	s, ok := r.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, models.Short, s.Market)

	// first poll after recovery reports the desync, exactly once
	p.FailPositions("SimA", nil)
	alerts := r.Poll(ctx)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMainClosedMirrorOpen, alerts[0].Kind)
	assert.Empty(t, r.Poll(ctx))
	assert.Len(t, n.msgs, 1)
}
