package triage

import (
	"github.com/linnemanlabs/pulse/internal/lifecycle"
	"github.com/linnemanlabs/pulse/internal/signal"
)

// RiskLevel is how much scrutiny a signal's data warrants.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// UrgencyTier is a coarse priority used for sorting and visual emphasis.
type UrgencyTier string

const (
	TierNormal   UrgencyTier = "normal"
	TierHigh     UrgencyTier = "high"
	TierCritical UrgencyTier = "critical"
)

// DecisionType is the kind of human attention a signal needs.
type DecisionType string

const (
	// DecisionApproval means a human financial decision is required
	DecisionApproval DecisionType = "approval"

	// DecisionException means an anomaly or compliance item, reviewable but not blocking
	DecisionException DecisionType = "exception"

	// DecisionAlert means a lower-priority exception
	DecisionAlert DecisionType = "alert"

	// DecisionInformational means awareness only
	DecisionInformational DecisionType = "informational"
)

// Layer names a decision layer.
type Layer string

const (
	LayerJudgment      Layer = "judgment"
	LayerExceptions    Layer = "exceptions"
	LayerInformational Layer = "informational"
)

// Severity orders risk levels, higher is riskier.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Severity orders urgency tiers, higher is more urgent.
func (u UrgencyTier) Severity() int {
	switch u {
	case TierCritical:
		return 2
	case TierHigh:
		return 1
	default:
		return 0
	}
}

// Layer returns the decision layer a decision type is routed to.
func (d DecisionType) Layer() Layer {
	switch d {
	case DecisionApproval:
		return LayerJudgment
	case DecisionException, DecisionAlert:
		return LayerExceptions
	default:
		return LayerInformational
	}
}

// ClassifiedSignal is a signal plus its derived classification. It is
// recomputed on every pass and never persisted.
type ClassifiedSignal struct {
	signal.Signal
	RiskLevel    RiskLevel    `json:"risk_level"`
	UrgencyTier  UrgencyTier  `json:"urgency_tier"`
	DecisionType DecisionType `json:"decision_type"`
	DueLabel     string       `json:"due_label,omitempty"`
}

// DecisionLayers partitions the non-terminal signals of a snapshot.
type DecisionLayers struct {
	Judgment      []ClassifiedSignal `json:"judgment"`
	Exceptions    []ClassifiedSignal `json:"exceptions"`
	Informational []ClassifiedSignal `json:"informational"`
}

// Buckets is the flatter three-bucket view. Alerts is the high-severity
// subset of Exceptions, so the two overlap.
type Buckets struct {
	Approvals  []ClassifiedSignal `json:"approvals"`
	Exceptions []ClassifiedSignal `json:"exceptions"`
	Alerts     []ClassifiedSignal `json:"alerts"`
}

// Detail is everything the engine derives for a single signal.
type Detail struct {
	ClassifiedSignal
	Layer     Layer                   `json:"layer,omitempty"`
	Lifecycle lifecycle.Info          `json:"lifecycle"`
	SLA       *lifecycle.SLAStatus    `json:"sla,omitempty"`
	Workflow  lifecycle.WorkflowStage `json:"workflow"`
}

// Len returns the total number of signals across all layers.
func (l DecisionLayers) Len() int {
	return len(l.Judgment) + len(l.Exceptions) + len(l.Informational)
}

// Limit returns a copy of l with each layer truncated to at most n entries.
// n <= 0 returns l unchanged.
func (l DecisionLayers) Limit(n int) DecisionLayers {
	if n <= 0 {
		return l
	}
	return DecisionLayers{
		Judgment:      head(l.Judgment, n),
		Exceptions:    head(l.Exceptions, n),
		Informational: head(l.Informational, n),
	}
}

func head(s []ClassifiedSignal, n int) []ClassifiedSignal {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
