package triage

import (
	"sort"
	"time"

	"github.com/linnemanlabs/pulse/internal/signal"
)

// GroupByDecisionLayer classifies every non-terminal signal and partitions
// them into the judgment, exceptions and informational layers. Each input
// signal appears in at most one layer; terminal signals appear in none.
//
// Judgment is ordered most urgent first, then highest amount, then oldest.
// Exceptions list exceptions before alerts, then by urgency and age.
// Informational keeps input order. Lists are never capped here.
func (c *Classifier) GroupByDecisionLayer(signals []signal.Signal) DecisionLayers {
	layers := DecisionLayers{
		Judgment:      []ClassifiedSignal{},
		Exceptions:    []ClassifiedSignal{},
		Informational: []ClassifiedSignal{},
	}

	for i := range signals {
		s := &signals[i]
		if s.Terminal() {
			continue
		}
		cs := c.ClassifySignal(s)
		switch cs.DecisionType.Layer() {
		case LayerJudgment:
			layers.Judgment = append(layers.Judgment, cs)
		case LayerExceptions:
			layers.Exceptions = append(layers.Exceptions, cs)
		default:
			layers.Informational = append(layers.Informational, cs)
		}
	}

	sortJudgment(layers.Judgment)
	sortExceptions(layers.Exceptions)
	return layers
}

// ClassifyAndGroup is the flatter three-bucket view used by notification and
// automation callers. Approvals and Exceptions mirror the judgment and
// exceptions layers; Alerts is the subset of Exceptions at critical urgency
// or high risk.
func (c *Classifier) ClassifyAndGroup(signals []signal.Signal) Buckets {
	layers := c.GroupByDecisionLayer(signals)

	alerts := []ClassifiedSignal{}
	for _, cs := range layers.Exceptions {
		if cs.UrgencyTier == TierCritical || cs.RiskLevel == RiskHigh {
			alerts = append(alerts, cs)
		}
	}

	return Buckets{
		Approvals:  layers.Judgment,
		Exceptions: layers.Exceptions,
		Alerts:     alerts,
	}
}

func sortJudgment(s []ClassifiedSignal) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := &s[i], &s[j]
		if sa, sb := a.UrgencyTier.Severity(), b.UrgencyTier.Severity(); sa != sb {
			return sa > sb
		}
		if aa, ab := a.EffectiveAmount(), b.EffectiveAmount(); aa != ab {
			return aa > ab
		}
		return older(a.CreatedAt, b.CreatedAt)
	})
}

func sortExceptions(s []ClassifiedSignal) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := &s[i], &s[j]
		if ea, eb := a.DecisionType == DecisionException, b.DecisionType == DecisionException; ea != eb {
			return ea
		}
		if sa, sb := a.UrgencyTier.Severity(), b.UrgencyTier.Severity(); sa != sb {
			return sa > sb
		}
		return older(a.CreatedAt, b.CreatedAt)
	})
}

// older reports whether a sorts before b, oldest first. Missing timestamps
// sort after present ones.
func older(a, b time.Time) bool {
	if a.IsZero() != b.IsZero() {
		return !a.IsZero()
	}
	return a.Before(b)
}
