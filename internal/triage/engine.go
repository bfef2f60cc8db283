// internal/triage/engine.go
package triage

import (
	"time"

	"github.com/linnemanlabs/pulse/internal/lifecycle"
	"github.com/linnemanlabs/pulse/internal/signal"
)

// Classifier derives risk, urgency tier, decision type and due label for
// signals. It is pure: it holds only read-only configuration and a clock,
// never mutates its input, and never fails.
type Classifier struct {
	policy Policy
	stages *lifecycle.Table
	now    func() time.Time
}

// NewClassifier creates a classifier. A nil stages table selects the default
// table; a nil clock selects time.Now.
func NewClassifier(policy Policy, stages *lifecycle.Table, now func() time.Time) *Classifier {
	if stages == nil {
		stages = lifecycle.DefaultTable()
	}
	if now == nil {
		now = time.Now
	}
	return &Classifier{
		policy: policy,
		stages: stages,
		now:    now,
	}
}

// Policy returns the thresholds in use.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// Stages returns the stage table in use.
func (c *Classifier) Stages() *lifecycle.Table {
	return c.stages
}

// ClassifyRisk derives the risk level from flag presence, amount and confidence.
func (c *Classifier) ClassifyRisk(s *signal.Signal) RiskLevel {
	amount := s.EffectiveAmount()
	confidence, hasConfidence := s.EffectiveConfidence()
	flagged := s.Flagged()

	switch {
	case flagged && amount > c.policy.HighRiskAmountThreshold:
		return RiskHigh
	case hasConfidence && confidence < c.policy.LowConfidence:
		return RiskHigh
	case flagged:
		return RiskMedium
	case hasConfidence && confidence < c.policy.ReviewConfidence:
		return RiskMedium
	default:
		return RiskLow
	}
}

// MapUrgencyTier combines stated urgency with risk and amount.
func (c *Classifier) MapUrgencyTier(s *signal.Signal, risk RiskLevel) UrgencyTier {
	urgency := signal.ParseUrgency(string(s.Urgency))

	switch {
	case urgency == signal.UrgencyCritical:
		return TierCritical
	case risk == RiskHigh && s.EffectiveAmount() > c.policy.AutoApprovalThreshold:
		return TierCritical
	case urgency == signal.UrgencyUrgent:
		return TierHigh
	case risk.Severity() >= RiskMedium.Severity():
		// high risk at or under the approval threshold lands here, not normal
		return TierHigh
	default:
		return TierNormal
	}
}

// ClassifyDecisionType decides what kind of attention a signal needs. Rules
// are applied in priority order; the first match wins.
func (c *Classifier) ClassifyDecisionType(s *signal.Signal) DecisionType {
	typ := signal.ParseType(string(s.Type))
	status := signal.ParseStatus(string(s.Status))
	flagged := s.Flagged()
	amount := s.EffectiveAmount()
	reviewType := typ == signal.TypeCompliance || typ == signal.TypeIncident

	// pure awareness items
	if typ == signal.TypeShiftHandover || (amount <= 0 && !flagged && !reviewType) {
		return DecisionInformational
	}

	if spendType(typ) && awaitingDecision(status) && amount > c.policy.AutoApprovalThreshold {
		return DecisionApproval
	}

	// needs-clarity with money attached is a three-way-match style variance
	if flagged || reviewType || (status == signal.StatusNeedsClarity && amount > 0) {
		return DecisionException
	}

	if confidence, ok := s.EffectiveConfidence(); ok && confidence < c.policy.ReviewConfidence {
		return DecisionAlert
	}
	if signal.ParseUrgency(string(s.Urgency)) == signal.UrgencyCritical {
		return DecisionAlert
	}

	return DecisionInformational
}

// ClassifySignal returns s with every derived field filled in.
func (c *Classifier) ClassifySignal(s *signal.Signal) ClassifiedSignal {
	risk := c.ClassifyRisk(s)
	return ClassifiedSignal{
		Signal:       *s,
		RiskLevel:    risk,
		UrgencyTier:  c.MapUrgencyTier(s, risk),
		DecisionType: c.ClassifyDecisionType(s),
		DueLabel:     c.dueLabel(s),
	}
}

// Detail classifies s and attaches its lifecycle, SLA and workflow views.
func (c *Classifier) Detail(s *signal.Signal) Detail {
	cs := c.ClassifySignal(s)
	info := c.stages.Info(s)

	d := Detail{
		ClassifiedSignal: cs,
		Lifecycle:        info,
		SLA:              lifecycle.SLAStatusAt(s, info.SLAHours, c.now()),
		Workflow:         lifecycle.WorkflowStageFor(s.Status),
	}
	if !s.Terminal() {
		d.Layer = cs.DecisionType.Layer()
	}
	return d
}

func (c *Classifier) dueLabel(s *signal.Signal) string {
	info := c.stages.Info(s)
	st := lifecycle.SLAStatusAt(s, info.SLAHours, c.now())
	if st == nil {
		return ""
	}
	return st.Label
}

func spendType(t signal.Type) bool {
	switch t {
	case signal.TypePurchase, signal.TypeResource, signal.TypeEvent:
		return true
	default:
		return false
	}
}

func awaitingDecision(s signal.Status) bool {
	return s == signal.StatusPending || s == signal.StatusNeedsClarity
}
