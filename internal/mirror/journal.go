package mirror

import (
	"context"
	"time"
)

type EventKind string

const (
	EventFillAccepted EventKind = "fill_accepted"
	EventOrder        EventKind = "order"
	EventFailure      EventKind = "failure"
	EventDesync       EventKind = "desync"
)

// Event is one audit record of what the mirror did.
type Event struct {
	Kind       EventKind
	Target     int // 0 for the primary
	Account    string
	Instrument string
	Action     string
	Quantity   int
	Price      float64
	OCO        string
	Detail     string
	At         time.Time
}

// Journal receives audit events. Writes are best effort and Record is called
// on the order path, so implementations must return without waiting on I/O.
type Journal interface {
	Record(ctx context.Context, ev Event) error
}

type NopJournal struct{}

func (NopJournal) Record(context.Context, Event) error { return nil }

// Notifier delivers human-readable lines to an operator.
type Notifier interface {
	Send(ctx context.Context, msg string) error
}
