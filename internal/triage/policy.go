package triage

import (
	"errors"
	"fmt"
	"math"
)

// Policy holds the thresholds the classifier applies. It is the single
// source of truth for those values; callers inject it at construction.
type Policy struct {
	// AutoApprovalThreshold is the amount at or below which purchases do not
	// need a human decision.
	AutoApprovalThreshold float64

	// HighRiskAmountThreshold is the amount above which a flagged signal is high risk.
	HighRiskAmountThreshold float64

	// LowConfidence is the confidence below which a signal is high risk.
	LowConfidence float64

	// ReviewConfidence is the confidence below which a signal is at least medium risk.
	ReviewConfidence float64
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		AutoApprovalThreshold:   100,
		HighRiskAmountThreshold: 200,
		LowConfidence:           50,
		ReviewConfidence:        80,
	}
}

// Validate checks the thresholds are usable.
func (p Policy) Validate() error {
	var errs []error

	for name, v := range map[string]float64{
		"auto approval threshold":    p.AutoApprovalThreshold,
		"high risk amount threshold": p.HighRiskAmountThreshold,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			errs = append(errs, fmt.Errorf("invalid %s %v (must be a non-negative number)", name, v))
		}
	}

	if p.LowConfidence < 0 || p.LowConfidence > 100 || math.IsNaN(p.LowConfidence) {
		errs = append(errs, fmt.Errorf("invalid low confidence %v (must be 0..100)", p.LowConfidence))
	}
	if p.ReviewConfidence < 0 || p.ReviewConfidence > 100 || math.IsNaN(p.ReviewConfidence) {
		errs = append(errs, fmt.Errorf("invalid review confidence %v (must be 0..100)", p.ReviewConfidence))
	}
	if p.LowConfidence > p.ReviewConfidence {
		errs = append(errs, fmt.Errorf("low confidence %v must not exceed review confidence %v", p.LowConfidence, p.ReviewConfidence))
	}

	return errors.Join(errs...)
}
