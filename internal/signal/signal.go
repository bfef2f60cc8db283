// Package signal defines the operational request record ("signal") that Pulse
// triages, along with its enumerations. Records are owned by the store; the
// triage engine only reads them.
package signal

import (
	"math"
	"strings"
	"time"
)

// Type is the category of operational request.
type Type string

const (
	TypePurchase      Type = "purchase"
	TypeMaintenance   Type = "maintenance"
	TypeIncident      Type = "incident"
	TypeShiftHandover Type = "shift-handover"
	TypeCompliance    Type = "compliance"
	TypeEvent         Type = "event"
	TypeResource      Type = "resource"
	TypeGeneral       Type = "general"
)

// Types lists every known signal type in display order.
var Types = []Type{
	TypePurchase,
	TypeMaintenance,
	TypeIncident,
	TypeShiftHandover,
	TypeCompliance,
	TypeEvent,
	TypeResource,
	TypeGeneral,
}

// Status is where a signal sits in its externally driven workflow.
type Status string

const (
	StatusPending          Status = "pending"
	StatusNeedsClarity     Status = "needs-clarity"
	StatusApproved         Status = "approved"
	StatusAutoApproved     Status = "auto-approved"
	StatusRejected         Status = "rejected"
	StatusInMotion         Status = "in-motion"
	StatusAwaitingSupplier Status = "awaiting-supplier"
	StatusDelivered        Status = "delivered"
	StatusClosed           Status = "closed"
)

// Statuses lists every known status.
var Statuses = []Status{
	StatusPending,
	StatusNeedsClarity,
	StatusApproved,
	StatusAutoApproved,
	StatusRejected,
	StatusInMotion,
	StatusAwaitingSupplier,
	StatusDelivered,
	StatusClosed,
}

// Urgency is the urgency stated by the submitter (or proposed by the suggester).
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// Signal is a single operational request record.
type Signal struct {
	ID     string `json:"id"`
	Number int    `json:"signal_number"`

	Type       Type     `json:"signal_type"`
	Status     Status   `json:"status"`
	Urgency    Urgency  `json:"urgency"`
	Amount     *float64 `json:"amount,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	FlagReason string   `json:"flag_reason,omitempty"`

	// overrides; zero values mean "derive from the stage table"
	LifecycleStage string `json:"lifecycle_stage,omitempty"`
	SLAHours       *int   `json:"sla_hours,omitempty"`
	CurrentOwner   string `json:"current_owner,omitempty"`

	Title         string    `json:"title,omitempty"`
	Description   string    `json:"description,omitempty"`
	SubmitterName string    `json:"submitter_name"`
	Location      string    `json:"location"`
	CreatedAt     time.Time `json:"created_at"`
	FundingSource string    `json:"funding_source,omitempty"`
}

// Valid reports whether t is a known signal type.
func (t Type) Valid() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, k := range Statuses {
		if s == k {
			return true
		}
	}
	return false
}

// Terminal reports whether the status no longer needs active triage.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusClosed, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the signal's status, after normalisation, is terminal.
func (s *Signal) Terminal() bool {
	return ParseStatus(string(s.Status)).Terminal()
}

// Clone returns a deep copy of s, including its optional fields.
func (s *Signal) Clone() *Signal {
	cp := *s
	if s.Amount != nil {
		a := *s.Amount
		cp.Amount = &a
	}
	if s.Confidence != nil {
		c := *s.Confidence
		cp.Confidence = &c
	}
	if s.SLAHours != nil {
		h := *s.SLAHours
		cp.SLAHours = &h
	}
	return &cp
}

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyNormal, UrgencyUrgent, UrgencyCritical:
		return true
	default:
		return false
	}
}

// ParseType normalises s into a Type. Unknown values map to TypeGeneral.
func ParseType(s string) Type {
	t := Type(strings.ReplaceAll(normalize(s), "_", "-"))
	if !t.Valid() {
		return TypeGeneral
	}
	return t
}

// ParseStatus normalises s into a Status. Unknown values map to StatusPending.
func ParseStatus(s string) Status {
	st, ok := LookupStatus(s)
	if !ok {
		return StatusPending
	}
	return st
}

// LookupStatus normalises s and reports whether it names a known Status.
func LookupStatus(s string) (Status, bool) {
	st := Status(strings.ReplaceAll(normalize(s), "_", "-"))
	return st, st.Valid()
}

// ParseUrgency normalises s into an Urgency. Unknown values map to UrgencyNormal.
func ParseUrgency(s string) Urgency {
	u := Urgency(normalize(s))
	if !u.Valid() {
		return UrgencyNormal
	}
	return u
}

// EffectiveAmount returns the amount used for threshold comparisons.
// Missing, negative, NaN and infinite amounts are treated as 0.
func (s *Signal) EffectiveAmount() float64 {
	if s.Amount == nil {
		return 0
	}
	a := *s.Amount
	if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
		return 0
	}
	return a
}

// HasAmount reports whether the signal carries a positive amount.
func (s *Signal) HasAmount() bool {
	return s.EffectiveAmount() > 0
}

// EffectiveConfidence returns the confidence clamped to [0, 100] and whether
// one is present. NaN counts as absent.
func (s *Signal) EffectiveConfidence() (float64, bool) {
	if s.Confidence == nil || math.IsNaN(*s.Confidence) {
		return 0, false
	}
	c := *s.Confidence
	switch {
	case c < 0:
		return 0, true
	case c > 100:
		return 100, true
	}
	return c, true
}

// Flagged reports whether the signal carries a flag reason. Only presence
// matters, the content is never interpreted.
func (s *Signal) Flagged() bool {
	return strings.TrimSpace(s.FlagReason) != ""
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
