// Package platform describes the trading platform the mirror core talks to.
// Instrument metadata, order routing, fills and position bookkeeping all live
// behind this boundary.
package platform

import (
	"context"

	"github.com/pkg/errors"

	"trade_mirror/internal/models"
)

// ErrNotFound is returned when an instrument or account cannot be resolved.
var ErrNotFound = errors.New("not found")

type Platform interface {
	Name() string

	ResolveInstrument(ctx context.Context, name string) (models.Instrument, error)
	ResolveAccount(ctx context.Context, name string) (models.Account, error)

	// Position returns a flat position when the account holds nothing.
	Position(ctx context.Context, account models.Account, instrument models.Instrument) (models.Position, error)
	LastPrice(ctx context.Context, instrument models.Instrument) (float64, error)

	// Submit routes orders for one account. Orders sharing an OCO id are linked.
	// Submission is fire-and-forget: outcomes arrive on the fill stream.
	Submit(ctx context.Context, account models.Account, orders ...models.Order) error
	// CancelOCO cancels every working order linked under oco.
	CancelOCO(ctx context.Context, account models.Account, oco string) error

	// SubscribeFills streams executions of one account until unsubscribe is called
	// or ctx is done.
	SubscribeFills(ctx context.Context, account models.Account) (<-chan models.FillEvent, func(), error)
	// Ticks streams last-price updates for one instrument until ctx is done.
	Ticks(ctx context.Context, instrument models.Instrument) (<-chan models.Tick, error)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
