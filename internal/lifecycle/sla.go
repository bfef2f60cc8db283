package lifecycle

import (
	"fmt"
	"math"
	"time"

	"github.com/linnemanlabs/pulse/internal/signal"
)

// warningFraction is the share of the SLA below which a signal is "at risk".
const warningFraction = 0.25

// SLAStatus is the time-based assessment of a signal against its SLA.
type SLAStatus struct {
	Overdue bool   `json:"overdue"`
	Warning bool   `json:"warning"`
	Label   string `json:"label"`
}

// GetSLAStatus evaluates s against slaHours at the current wall-clock time.
func GetSLAStatus(s *signal.Signal, slaHours *int) *SLAStatus {
	return SLAStatusAt(s, slaHours, time.Now())
}

// SLAStatusAt evaluates s against slaHours as of now. It returns nil when no
// SLA is tracked (nil or non-positive hours) or the signal is terminal. A
// signal without a creation time gets the static label.
func SLAStatusAt(s *signal.Signal, slaHours *int, now time.Time) *SLAStatus {
	if slaHours == nil || *slaHours <= 0 || s.Terminal() {
		return nil
	}
	sla := *slaHours
	static := &SLAStatus{Label: fmt.Sprintf("SLA: %dh", sla)}

	if s.CreatedAt.IsZero() {
		return static
	}

	elapsed := now.Sub(s.CreatedAt).Hours()
	remaining := float64(sla) - elapsed

	switch {
	case remaining < 0:
		return &SLAStatus{
			Overdue: true,
			Label:   fmt.Sprintf("%dh overdue", int(math.Round(math.Abs(remaining)))),
		}
	case remaining < warningFraction*float64(sla):
		return &SLAStatus{
			Warning: true,
			Label:   fmt.Sprintf("%dh remaining", int(math.Round(remaining))),
		}
	default:
		return static
	}
}
