package triage

import (
	"context"

	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/pulse/internal/signal"
)

var (
	// ErrNotFound is returned when a signal ID does not exist.
	ErrNotFound = xerrors.New("signal not found")

	// ErrInvalidSignal is returned when submitted or patched fields fail validation.
	ErrInvalidSignal = xerrors.New("invalid signal")

	// ErrDuplicate is returned by Store.Create when the ID is already taken.
	ErrDuplicate = xerrors.New("duplicate signal id")
)

// Store persists signal records. Implementations must return copies so
// callers can never alias stored state.
type Store interface {
	// Get returns the signal with the given ID, ok=false when absent.
	Get(ctx context.Context, id string) (*signal.Signal, bool, error)

	// List returns every stored signal ordered by signal number.
	List(ctx context.Context) ([]signal.Signal, error)

	// Create inserts a new signal and assigns s.Number from a monotonic
	// sequence. It returns ErrDuplicate if s.ID exists.
	Create(ctx context.Context, s *signal.Signal) error

	// Put replaces an existing signal. It returns ErrNotFound if s.ID is unknown.
	Put(ctx context.Context, s *signal.Signal) error
}
