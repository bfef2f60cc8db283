package triage

import (
	"context"
	"errors"

	"github.com/linnemanlabs/pulse/internal/signal"
)

// Suggestion holds the fields a Suggester proposes for a new signal. Zero
// values mean "no opinion". Suggestions are engine input only.
type Suggestion struct {
	Type       signal.Type
	Urgency    signal.Urgency
	Confidence *float64
	FlagReason string
}

// Suggester proposes classification inputs from a signal's free text.
type Suggester interface {
	Suggest(ctx context.Context, s *signal.Signal) (*Suggestion, error)
}

// Notifier receives classified signals that need human attention.
type Notifier interface {
	Notify(ctx context.Context, cs *ClassifiedSignal) error
}

// Notifiers fans a notification out to every wrapped notifier. All are
// attempted; errors are joined.
type Notifiers []Notifier

// Notify calls every notifier in order.
func (ns Notifiers) Notify(ctx context.Context, cs *ClassifiedSignal) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, cs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
