package triage

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/linnemanlabs/pulse/internal/lifecycle"
	"github.com/linnemanlabs/pulse/internal/signal"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func testClassifier() *Classifier {
	return NewClassifier(DefaultPolicy(), nil, func() time.Time { return testNow })
}

func TestClassifyRisk(t *testing.T) {
	t.Parallel()

	c := testClassifier()

	tests := []struct {
		name string
		sig  signal.Signal
		want RiskLevel
	}{
		{"no flag no confidence", signal.Signal{}, RiskLow},
		{"confident and clean", signal.Signal{Confidence: f64(94)}, RiskLow},
		{"confidence exactly 80", signal.Signal{Confidence: f64(80)}, RiskLow},
		{"confidence 79.9", signal.Signal{Confidence: f64(79.9)}, RiskMedium},
		{"confidence exactly 50", signal.Signal{Confidence: f64(50)}, RiskMedium},
		{"confidence 49", signal.Signal{Confidence: f64(49)}, RiskHigh},
		{"flag small amount", signal.Signal{FlagReason: "odd", Amount: f64(150)}, RiskMedium},
		{"flag at high-risk threshold", signal.Signal{FlagReason: "odd", Amount: f64(200)}, RiskMedium},
		{"flag above high-risk threshold", signal.Signal{FlagReason: "odd", Amount: f64(200.01)}, RiskHigh},
		{"flag no amount", signal.Signal{FlagReason: "odd"}, RiskMedium},
		{"flag negative amount", signal.Signal{FlagReason: "odd", Amount: f64(-5000)}, RiskMedium},
		{"flag NaN amount", signal.Signal{FlagReason: "odd", Amount: f64(math.NaN())}, RiskMedium},
		{"NaN confidence unflagged", signal.Signal{Confidence: f64(math.NaN())}, RiskLow},
		{"blank flag", signal.Signal{FlagReason: "  ", Amount: f64(900)}, RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.ClassifyRisk(&tt.sig); got != tt.want {
				t.Errorf("ClassifyRisk = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyRisk_MonotonicInConfidence(t *testing.T) {
	t.Parallel()

	c := testClassifier()

	for _, flag := range []string{"", "duplicate invoice"} {
		for _, amount := range []float64{0, 50, 150, 250, 5000} {
			prev := -1
			for conf := 100.0; conf >= 0; conf -= 0.5 {
				s := signal.Signal{FlagReason: flag, Amount: f64(amount), Confidence: f64(conf)}
				sev := c.ClassifyRisk(&s).Severity()
				if sev < prev {
					t.Fatalf("flag=%q amount=%v: risk decreased from %d to %d at confidence %v", flag, amount, prev, sev, conf)
				}
				prev = sev
			}
		}
	}
}

func TestMapUrgencyTier(t *testing.T) {
	t.Parallel()

	c := testClassifier()

	tests := []struct {
		name string
		sig  signal.Signal
		risk RiskLevel
		want UrgencyTier
	}{
		{"critical urgency", signal.Signal{Urgency: signal.UrgencyCritical}, RiskLow, TierCritical},
		{"high risk above approval threshold", signal.Signal{Amount: f64(100.01)}, RiskHigh, TierCritical},
		{"high risk at approval threshold", signal.Signal{Amount: f64(100)}, RiskHigh, TierHigh},
		{"high risk without amount", signal.Signal{}, RiskHigh, TierHigh},
		{"urgent", signal.Signal{Urgency: signal.UrgencyUrgent}, RiskLow, TierHigh},
		{"medium risk", signal.Signal{}, RiskMedium, TierHigh},
		{"normal", signal.Signal{Urgency: signal.UrgencyNormal}, RiskLow, TierNormal},
		{"unknown urgency", signal.Signal{Urgency: "yesterday"}, RiskLow, TierNormal},
		{"upper-case urgency", signal.Signal{Urgency: "CRITICAL"}, RiskLow, TierCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.MapUrgencyTier(&tt.sig, tt.risk); got != tt.want {
				t.Errorf("MapUrgencyTier = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyDecisionType(t *testing.T) {
	t.Parallel()

	c := testClassifier()

	tests := []struct {
		name string
		sig  signal.Signal
		want DecisionType
	}{
		{"shift handover even when flagged", signal.Signal{Type: signal.TypeShiftHandover, FlagReason: "x", Amount: f64(900)}, DecisionInformational},
		{"no amount no flag", signal.Signal{Type: signal.TypeMaintenance, Status: signal.StatusPending}, DecisionInformational},
		{"incident without amount", signal.Signal{Type: signal.TypeIncident, Status: signal.StatusPending}, DecisionException},
		{"compliance without amount", signal.Signal{Type: signal.TypeCompliance}, DecisionException},
		{"purchase above threshold", signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(250)}, DecisionApproval},
		{"resource needs clarity above threshold", signal.Signal{Type: signal.TypeResource, Status: signal.StatusNeedsClarity, Amount: f64(101)}, DecisionApproval},
		{"event above threshold", signal.Signal{Type: signal.TypeEvent, Status: signal.StatusPending, Amount: f64(1200)}, DecisionApproval},
		{"maintenance above threshold is not approval", signal.Signal{Type: signal.TypeMaintenance, Status: signal.StatusPending, Amount: f64(500)}, DecisionInformational},
		{"approved purchase above threshold", signal.Signal{Type: signal.TypePurchase, Status: signal.StatusApproved, Amount: f64(500)}, DecisionInformational},
		{"flagged small purchase", signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(20), FlagReason: "split order"}, DecisionException},
		{"flagged big purchase is approval first", signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(420), FlagReason: "x"}, DecisionApproval},
		{"needs clarity variance", signal.Signal{Type: signal.TypePurchase, Status: signal.StatusNeedsClarity, Amount: f64(40)}, DecisionException},
		{"low confidence small purchase", signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(30), Confidence: f64(65)}, DecisionAlert},
		{"critical small purchase", signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(30), Urgency: signal.UrgencyCritical}, DecisionAlert},
		{"unknown type with flag", signal.Signal{Type: "weird", FlagReason: "y"}, DecisionException},
		{"negative amount is no amount", signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(-300)}, DecisionInformational},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.ClassifyDecisionType(&tt.sig); got != tt.want {
				t.Errorf("ClassifyDecisionType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyDecisionType_ThresholdBoundary(t *testing.T) {
	t.Parallel()

	c := testClassifier()
	threshold := c.Policy().AutoApprovalThreshold

	at := signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(threshold)}
	if got := c.ClassifyDecisionType(&at); got == DecisionApproval {
		t.Errorf("amount == threshold classified as approval")
	}

	above := signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(threshold + 0.01)}
	if got := c.ClassifyDecisionType(&above); got != DecisionApproval {
		t.Errorf("amount == threshold+0.01 classified as %q, want approval", got)
	}
}

func TestClassifyDecisionType_Deterministic(t *testing.T) {
	t.Parallel()

	c := testClassifier()
	s := signal.Signal{Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(420), FlagReason: "x", Confidence: f64(60)}
	first := c.ClassifySignal(&s)
	for i := 0; i < 50; i++ {
		if got := c.ClassifySignal(&s); got != first {
			t.Fatalf("iteration %d: %+v != %+v", i, got, first)
		}
	}
}

// Totality over every combination of optional fields.
func TestClassifySignal_Totality(t *testing.T) {
	t.Parallel()

	c := testClassifier()

	amounts := []*float64{nil, f64(0), f64(34.5), f64(100), f64(420), f64(-1), f64(math.NaN()), f64(math.Inf(1))}
	confidences := []*float64{nil, f64(10), f64(60), f64(94), f64(math.NaN()), f64(150)}
	flags := []string{"", "non-contracted supplier"}
	types := append([]signal.Type{"", "unknown"}, signal.Types...)
	statuses := append([]signal.Status{"", "??"}, signal.Statuses...)
	urgencies := []signal.Urgency{"", "urgent", "critical", "meh"}

	validRisk := map[RiskLevel]bool{RiskLow: true, RiskMedium: true, RiskHigh: true}
	validTier := map[UrgencyTier]bool{TierNormal: true, TierHigh: true, TierCritical: true}
	validDecision := map[DecisionType]bool{DecisionApproval: true, DecisionException: true, DecisionAlert: true, DecisionInformational: true}

	for _, typ := range types {
		for _, st := range statuses {
			for _, u := range urgencies {
				for _, a := range amounts {
					for _, conf := range confidences {
						for _, fl := range flags {
							s := signal.Signal{Type: typ, Status: st, Urgency: u, Amount: a, Confidence: conf, FlagReason: fl}
							cs := c.ClassifySignal(&s)
							if !validRisk[cs.RiskLevel] || !validTier[cs.UrgencyTier] || !validDecision[cs.DecisionType] {
								t.Fatalf("out-of-domain classification %+v for %+v", cs, s)
							}
						}
					}
				}
			}
		}
	}
}

func TestClassifySignal_DueLabel(t *testing.T) {
	t.Parallel()

	c := testClassifier()

	s := signal.Signal{Type: signal.TypeIncident, Status: signal.StatusPending, CreatedAt: testNow.Add(-25 * time.Hour)}
	if got := c.ClassifySignal(&s).DueLabel; got != "1h overdue" {
		t.Errorf("DueLabel = %q, want %q", got, "1h overdue")
	}

	general := signal.Signal{Type: signal.TypeGeneral, Status: signal.StatusPending, CreatedAt: testNow}
	if got := c.ClassifySignal(&general).DueLabel; got != "" {
		t.Errorf("DueLabel for general = %q, want empty", got)
	}

	closed := signal.Signal{Type: signal.TypeIncident, Status: signal.StatusClosed, CreatedAt: testNow.Add(-100 * time.Hour)}
	if got := c.ClassifySignal(&closed).DueLabel; got != "" {
		t.Errorf("DueLabel for closed = %q, want empty", got)
	}
}

func TestClassifySignal_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	c := testClassifier()
	amount := 420.0
	s := signal.Signal{ID: "s-1", Type: signal.TypePurchase, Status: signal.StatusPending, Amount: &amount}
	before := fmt.Sprintf("%+v", s)
	_ = c.ClassifySignal(&s)
	_ = c.GroupByDecisionLayer([]signal.Signal{s})
	if after := fmt.Sprintf("%+v", s); after != before {
		t.Errorf("input mutated: %s -> %s", before, after)
	}
	if amount != 420.0 {
		t.Errorf("amount mutated to %v", amount)
	}
}

func TestDetail(t *testing.T) {
	t.Parallel()

	c := testClassifier()

	s := signal.Signal{
		Type:      signal.TypePurchase,
		Status:    signal.StatusAwaitingSupplier,
		Amount:    f64(60),
		CreatedAt: testNow.Add(-40 * time.Hour),
	}
	d := c.Detail(&s)

	if d.Lifecycle.CurrentStage != "ordered" {
		t.Errorf("CurrentStage = %q, want ordered", d.Lifecycle.CurrentStage)
	}
	if d.SLA == nil || !d.SLA.Warning || d.SLA.Label != "8h remaining" {
		t.Errorf("SLA = %+v, want warning 8h remaining", d.SLA)
	}
	if d.Workflow.Stage != 3 || d.Workflow.Total != 4 {
		t.Errorf("Workflow = %+v, want 3/4", d.Workflow)
	}
	if d.Layer != LayerInformational {
		t.Errorf("Layer = %q, want informational", d.Layer)
	}

	s.Status = signal.StatusDelivered
	d = c.Detail(&s)
	if d.Layer != "" {
		t.Errorf("terminal Layer = %q, want empty", d.Layer)
	}
	if d.SLA != nil {
		t.Errorf("terminal SLA = %+v, want nil", d.SLA)
	}
}

func TestDetail_LooseSpellingMatchesClassification(t *testing.T) {
	t.Parallel()

	c := testClassifier()

	for _, typ := range []signal.Type{"purchase", "Purchase"} {
		s := signal.Signal{Type: typ, Status: "IN_MOTION", CreatedAt: testNow.Add(-60 * time.Hour)}
		d := c.Detail(&s)

		if d.DueLabel != "12h overdue" {
			t.Errorf("type %q: DueLabel = %q, want 12h overdue", typ, d.DueLabel)
		}
		if d.Lifecycle.CurrentIndex != 2 || d.Lifecycle.CurrentStage != "ordered" {
			t.Errorf("type %q: lifecycle = %d/%q, want 2/ordered", typ, d.Lifecycle.CurrentIndex, d.Lifecycle.CurrentStage)
		}
		if d.Workflow != (lifecycle.WorkflowStage{Stage: 3, Total: 4}) {
			t.Errorf("type %q: Workflow = %+v, want 3/4", typ, d.Workflow)
		}
		if d.SLA == nil || !d.SLA.Overdue {
			t.Errorf("type %q: SLA = %+v, want overdue", typ, d.SLA)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	bad := []Policy{
		{AutoApprovalThreshold: -1, HighRiskAmountThreshold: 200, LowConfidence: 50, ReviewConfidence: 80},
		{AutoApprovalThreshold: 100, HighRiskAmountThreshold: math.NaN(), LowConfidence: 50, ReviewConfidence: 80},
		{AutoApprovalThreshold: 100, HighRiskAmountThreshold: 200, LowConfidence: 90, ReviewConfidence: 80},
		{AutoApprovalThreshold: 100, HighRiskAmountThreshold: 200, LowConfidence: 50, ReviewConfidence: 120},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, p)
		}
	}
}
