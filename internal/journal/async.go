package journal

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_mirror/internal/mirror"
)

const (
	DefaultBuffer       = 256
	DefaultWriteTimeout = 2 * time.Second
)

var (
	ErrBufferFull = errors.New("journal buffer full")
	ErrClosed     = errors.New("journal closed")
)

// Async queues events for a background writer so Record never waits on the
// sink. Each write gets its own deadline, detached from the caller's context.
type Async struct {
	next    mirror.Journal
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	events chan mirror.Event
	done   chan struct{}
}

var _ mirror.Journal = (*Async)(nil)

func NewAsync(next mirror.Journal, buffer int, timeout time.Duration, log *zap.Logger) *Async {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		log:     log,
		events:  make(chan mirror.Event, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues ev. It fails fast when the buffer is full or the writer is closed.
func (a *Async) Record(_ context.Context, ev mirror.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.events <- ev:
		return nil
	default:
		return errors.Wrapf(ErrBufferFull, "drop %s event", ev.Kind)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Record(ctx, ev); err != nil {
			a.log.Warn("journal write failed",
				zap.String("kind", string(ev.Kind)),
				zap.Int("target", ev.Target),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "drain journal")
	}
}
